package storage

import (
	"context"
	"fmt"

	config "github.com/tablecache/tablecache/configs"
)

// Entity is a single row of a partitioned table.
type Entity struct {
	PartitionKey string
	RowKey       string
	Properties   map[string]string
}

// TableStore is the table storage capability the cache adapter is built on.
//
// Implementations must report a missing row as ErrNotFound from GetEntity,
// UpdateEntity and DeleteEntity, an existing table as ErrTableExists from
// CreateTable, and operations against an unknown table as ErrTableNotFound.
type TableStore interface {
	CreateTable(ctx context.Context, table string) error
	InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error
	GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error)
	UpdateEntity(ctx context.Context, table string, entity Entity) error
	DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error
}

func NewConnector(cfg *config.StorageConnectionConfig) (TableStore, error) {
	var conn TableStore
	var err error
	if cfg.Azure != nil {
		conn, err = NewAzureTableConnector(cfg.Azure)
	} else if cfg.Memory != nil {
		conn, err = NewMemoryConnector(cfg.Memory)
	} else if cfg.Redis != nil {
		conn, err = NewRedisConnector(cfg.Redis)
	} else if cfg.Badger != nil {
		conn, err = NewBadgerConnector(cfg.Badger)
	} else if cfg.Pebble != nil {
		conn, err = NewPebbleConnector(cfg.Pebble)
	} else if cfg.Postgres != nil {
		conn, err = NewPostgresConnector(cfg.Postgres)
	} else if cfg.Clickhouse != nil {
		conn, err = NewClickHouseConnector(cfg.Clickhouse)
	} else if cfg.S3 != nil {
		conn, err = NewS3Connector(cfg.S3)
	} else {
		return nil, fmt.Errorf("no storage driver configured")
	}

	if err != nil {
		return nil, err
	}
	return conn, nil
}
