package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
)

type BadgerConnector struct {
	db       *badger.DB
	gcTicker *time.Ticker
	stopGC   chan struct{}
	stopOnce sync.Once
}

func NewBadgerConnector(cfg *config.BadgerConfig) (*BadgerConnector, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := cfg.Path
		if path == "" {
			path = filepath.Join(os.TempDir(), "tablecache-badger")
		}
		opts = badger.DefaultOptions(path)
		opts.ValueLogFileSize = 256 * 1024 * 1024 // 256MB
		opts.ValueThreshold = 1024                // Store values > 1024 bytes in value log
		opts.Compression = options.Snappy
	}
	opts.Logger = nil // Disable badger's internal logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	bc := &BadgerConnector{
		db:     db,
		stopGC: make(chan struct{}),
	}

	// value log GC is not available in memory mode
	if !cfg.InMemory {
		bc.gcTicker = time.NewTicker(60 * time.Second)
		go bc.runGC()
	}

	return bc, nil
}

func (bc *BadgerConnector) runGC() {
	for {
		select {
		case <-bc.gcTicker.C:
			err := bc.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				log.Debug().Err(err).Msg("BadgerDB GC error")
			}
		case <-bc.stopGC:
			return
		}
	}
}

func (bc *BadgerConnector) Close() error {
	bc.stopOnce.Do(func() {
		if bc.gcTicker != nil {
			bc.gcTicker.Stop()
		}
		close(bc.stopGC)
	})
	return bc.db.Close()
}

func (bc *BadgerConnector) CreateTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	return bc.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(tableKey(table)))
		if err == nil {
			return ErrTableExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(tableKey(table)), []byte{1})
	})
}

func (bc *BadgerConnector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	return bc.db.Update(func(txn *badger.Txn) error {
		if err := badgerCheckTable(txn, table); err != nil {
			return err
		}
		data, err := gobEncodeEntity(entity)
		if err != nil {
			return err
		}
		return txn.Set([]byte(entityKey(table, entity.PartitionKey, entity.RowKey)), data)
	})
}

func (bc *BadgerConnector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	var entity Entity
	err := bc.db.View(func(txn *badger.Txn) error {
		if err := badgerCheckTable(txn, table); err != nil {
			return err
		}
		item, err := txn.Get([]byte(entityKey(table, partitionKey, rowKey)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entity, err = gobDecodeEntity(val)
			return err
		})
	})
	return entity, err
}

func (bc *BadgerConnector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	return bc.db.Update(func(txn *badger.Txn) error {
		if err := badgerCheckTable(txn, table); err != nil {
			return err
		}
		key := []byte(entityKey(table, entity.PartitionKey, entity.RowKey))
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		data, err := gobEncodeEntity(entity)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (bc *BadgerConnector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	return bc.db.Update(func(txn *badger.Txn) error {
		if err := badgerCheckTable(txn, table); err != nil {
			return err
		}
		key := []byte(entityKey(table, partitionKey, rowKey))
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

func badgerCheckTable(txn *badger.Txn, table string) error {
	_, err := txn.Get([]byte(tableKey(table)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrTableNotFound
	}
	return err
}

func gobEncodeEntity(entity Entity) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entity); err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecodeEntity(data []byte) (Entity, error) {
	var entity Entity
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entity); err != nil {
		return Entity{}, fmt.Errorf("failed to decode entity: %w", err)
	}
	if entity.Properties == nil {
		entity.Properties = map[string]string{}
	}
	return entity, nil
}
