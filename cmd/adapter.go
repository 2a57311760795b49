package cmd

import (
	"io"
	"time"

	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
	"github.com/tablecache/tablecache/internal/cache"
	"github.com/tablecache/tablecache/internal/publisher"
	"github.com/tablecache/tablecache/internal/storage"
)

const defaultTableName = "cache"

// newAdapter builds the adapter described by config.Cfg. The returned func
// releases the store and the change publisher.
func newAdapter() (*cache.Adapter, func(), error) {
	store, err := storage.NewConnector(&config.Cfg.Table.Storage)
	if err != nil {
		return nil, nil, err
	}

	closers := []io.Closer{}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Error().Err(err).Msg("Error closing resource")
			}
		}
	}

	if config.Cfg.Publisher.Kafka != nil {
		pub, err := publisher.NewKafkaPublisher(config.Cfg.Publisher.Kafka)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, pub)
		store = storage.NewPublishingStore(store, pub)
	}

	table := config.Cfg.Table.Name
	if table == "" {
		table = defaultTableName
	}
	timeout := time.Duration(config.Cfg.Table.RequestTimeout) * time.Millisecond

	return cache.New(store, table, cache.WithRequestTimeout(timeout)), cleanup, nil
}
