package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
)

// ClickHouse server error codes
const (
	chUnknownTable       = 60
	chTableAlreadyExists = 57
)

// ClickHouseConnector stores rows in ReplacingMergeTree tables. Writes append
// a new version and deletes append a tombstone; reads use FINAL so only the
// latest version of a row is visible.
type ClickHouseConnector struct {
	conn     clickhouse.Conn
	database string
}

func NewClickHouseConnector(cfg *config.ClickhouseConfig) (*ClickHouseConnector, error) {
	database := cfg.Database
	if database == "" {
		database = "default"
	}

	options := &clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}
	if !cfg.DisableTLS {
		options.TLS = &tls.Config{} // enable secure TLS
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", database).Msg("Connected to ClickHouse")
	return &ClickHouseConnector{
		conn:     conn,
		database: database,
	}, nil
}

func (c *ClickHouseConnector) CreateTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE %s (
		partition_key String,
		row_key String,
		properties String,
		version UInt64,
		is_deleted UInt8
	) ENGINE = ReplacingMergeTree(version)
	ORDER BY (partition_key, row_key)`, c.tableName(table))

	return clickhouseError(c.conn.Exec(ctx, query))
}

func (c *ClickHouseConnector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	return c.insert(ctx, table, entity.PartitionKey, entity.RowKey, entity.Properties, false)
}

func (c *ClickHouseConnector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	if err := ValidateTableName(table); err != nil {
		return Entity{}, err
	}
	props, err := c.lookup(ctx, table, partitionKey, rowKey)
	if err != nil {
		return Entity{}, err
	}

	entity := Entity{PartitionKey: partitionKey, RowKey: rowKey}
	if err := json.Unmarshal([]byte(props), &entity.Properties); err != nil {
		return Entity{}, fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	return entity, nil
}

func (c *ClickHouseConnector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if _, err := c.lookup(ctx, table, entity.PartitionKey, entity.RowKey); err != nil {
		return err
	}
	return c.insert(ctx, table, entity.PartitionKey, entity.RowKey, entity.Properties, false)
}

func (c *ClickHouseConnector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if _, err := c.lookup(ctx, table, partitionKey, rowKey); err != nil {
		return err
	}
	return c.insert(ctx, table, partitionKey, rowKey, map[string]string{}, true)
}

func (c *ClickHouseConnector) Close() error {
	return c.conn.Close()
}

func (c *ClickHouseConnector) insert(ctx context.Context, table string, partitionKey string, rowKey string, properties map[string]string, deleted bool) error {
	props, err := json.Marshal(properties)
	if err != nil {
		return err
	}
	var isDeleted uint8
	if deleted {
		isDeleted = 1
	}
	query := fmt.Sprintf("INSERT INTO %s (partition_key, row_key, properties, version, is_deleted) VALUES (?, ?, ?, ?, ?)", c.tableName(table))
	err = c.conn.Exec(ctx, query, partitionKey, rowKey, string(props), uint64(time.Now().UnixNano()), isDeleted)
	return clickhouseError(err)
}

func (c *ClickHouseConnector) lookup(ctx context.Context, table string, partitionKey string, rowKey string) (string, error) {
	query := fmt.Sprintf("SELECT properties, is_deleted FROM %s FINAL WHERE partition_key = ? AND row_key = ? LIMIT 1", c.tableName(table))
	rows, err := c.conn.Query(ctx, query, partitionKey, rowKey)
	if err != nil {
		return "", clickhouseError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", clickhouseError(err)
		}
		return "", ErrNotFound
	}

	var props string
	var isDeleted uint8
	if err := rows.Scan(&props, &isDeleted); err != nil {
		return "", fmt.Errorf("failed to scan row: %w", err)
	}
	if isDeleted == 1 {
		return "", ErrNotFound
	}
	return props, nil
}

func (c *ClickHouseConnector) tableName(table string) string {
	return fmt.Sprintf("`%s`.`%s`", c.database, table)
}

func clickhouseError(err error) error {
	if err == nil {
		return nil
	}
	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		switch exception.Code {
		case chTableAlreadyExists:
			return fmt.Errorf("%w: %s", ErrTableExists, exception.Message)
		case chUnknownTable:
			return fmt.Errorf("%w: %s", ErrTableNotFound, exception.Message)
		}
	}
	return err
}
