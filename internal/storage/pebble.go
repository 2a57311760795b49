package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	config "github.com/tablecache/tablecache/configs"
)

// PebbleConnector has no transactions, so check-then-write sequences are
// serialized by mu.
type PebbleConnector struct {
	db *pebble.DB
	mu sync.RWMutex
}

func NewPebbleConnector(cfg *config.PebbleConfig) (*PebbleConnector, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(os.TempDir(), "tablecache-pebble")
	}

	cache := pebble.NewCache(64 << 20) // 64MB block cache
	defer cache.Unref()

	opts := &pebble.Options{
		MemTableSize:                32 << 20, // 32MB per memtable
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
		Cache:                       cache,
	}
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
	}

	// Disable Pebble's verbose logging
	opts.Logger = nil

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	return &PebbleConnector{db: db}, nil
}

func (pc *PebbleConnector) Close() error {
	return pc.db.Close()
}

func (pc *PebbleConnector) CreateTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	exists, err := pc.has([]byte(tableKey(table)))
	if err != nil {
		return err
	}
	if exists {
		return ErrTableExists
	}
	return pc.db.Set([]byte(tableKey(table)), []byte{1}, pebble.Sync)
}

func (pc *PebbleConnector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if err := pc.checkTable(table); err != nil {
		return err
	}
	data, err := gobEncodeEntity(entity)
	if err != nil {
		return err
	}
	return pc.db.Set([]byte(entityKey(table, entity.PartitionKey, entity.RowKey)), data, pebble.Sync)
}

func (pc *PebbleConnector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if err := pc.checkTable(table); err != nil {
		return Entity{}, err
	}
	val, closer, err := pc.db.Get([]byte(entityKey(table, partitionKey, rowKey)))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entity{}, ErrNotFound
	}
	if err != nil {
		return Entity{}, err
	}
	defer closer.Close()

	return gobDecodeEntity(val)
}

func (pc *PebbleConnector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if err := pc.checkTable(table); err != nil {
		return err
	}
	key := []byte(entityKey(table, entity.PartitionKey, entity.RowKey))
	exists, err := pc.has(key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	data, err := gobEncodeEntity(entity)
	if err != nil {
		return err
	}
	return pc.db.Set(key, data, pebble.Sync)
}

func (pc *PebbleConnector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if err := pc.checkTable(table); err != nil {
		return err
	}
	key := []byte(entityKey(table, partitionKey, rowKey))
	exists, err := pc.has(key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return pc.db.Delete(key, pebble.Sync)
}

func (pc *PebbleConnector) checkTable(table string) error {
	exists, err := pc.has([]byte(tableKey(table)))
	if err != nil {
		return err
	}
	if !exists {
		return ErrTableNotFound
	}
	return nil
}

func (pc *PebbleConnector) has(key []byte) (bool, error) {
	_, closer, err := pc.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}
