package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
)

// Postgres error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pqDuplicateTable = "42P07"
	pqUndefinedTable = "42P01"
)

// PostgresConnector maps every table onto its own SQL table keyed by
// (partition_key, row_key).
type PostgresConnector struct {
	db *sql.DB
}

func NewPostgresConnector(cfg *config.PostgresConfig) (*PostgresConnector, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	// Default to "require" for security if SSL mode not specified
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
		log.Info().Msg("No SSL mode specified, defaulting to 'require' for secure connection")
	}
	connStr += fmt.Sprintf(" sslmode=%s", sslMode)

	if cfg.ConnectTimeout > 0 {
		connStr += fmt.Sprintf(" connect_timeout=%d", cfg.ConnectTimeout)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.MaxConnLifetime) * time.Second)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresConnector{
		db: db,
	}, nil
}

func (p *PostgresConnector) CreateTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE %s (
	          partition_key TEXT NOT NULL,
	          row_key TEXT NOT NULL,
	          properties JSONB NOT NULL,
	          updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	          PRIMARY KEY (partition_key, row_key))`, pq.QuoteIdentifier(table))

	_, err := p.db.ExecContext(ctx, query)
	return postgresError(err)
}

func (p *PostgresConnector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	props, err := json.Marshal(entity.Properties)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (partition_key, row_key, properties)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (partition_key, row_key)
	          DO UPDATE SET properties = EXCLUDED.properties, updated_at = NOW()`, pq.QuoteIdentifier(table))

	_, err = p.db.ExecContext(ctx, query, entity.PartitionKey, entity.RowKey, string(props))
	return postgresError(err)
}

func (p *PostgresConnector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	if err := ValidateTableName(table); err != nil {
		return Entity{}, err
	}
	query := fmt.Sprintf(`SELECT properties FROM %s
	          WHERE partition_key = $1 AND row_key = $2`, pq.QuoteIdentifier(table))

	var props string
	err := p.db.QueryRowContext(ctx, query, partitionKey, rowKey).Scan(&props)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, ErrNotFound
	}
	if err != nil {
		return Entity{}, postgresError(err)
	}

	entity := Entity{PartitionKey: partitionKey, RowKey: rowKey}
	if err := json.Unmarshal([]byte(props), &entity.Properties); err != nil {
		return Entity{}, fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	return entity, nil
}

func (p *PostgresConnector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	props, err := json.Marshal(entity.Properties)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET properties = $3, updated_at = NOW()
	          WHERE partition_key = $1 AND row_key = $2`, pq.QuoteIdentifier(table))

	res, err := p.db.ExecContext(ctx, query, entity.PartitionKey, entity.RowKey, string(props))
	if err != nil {
		return postgresError(err)
	}
	return requireAffected(res)
}

func (p *PostgresConnector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1 AND row_key = $2`, pq.QuoteIdentifier(table))

	res, err := p.db.ExecContext(ctx, query, partitionKey, rowKey)
	if err != nil {
		return postgresError(err)
	}
	return requireAffected(res)
}

func (p *PostgresConnector) Close() error {
	return p.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func postgresError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqDuplicateTable:
			return fmt.Errorf("%w: %s", ErrTableExists, pqErr.Message)
		case pqUndefinedTable:
			return fmt.Errorf("%w: %s", ErrTableNotFound, pqErr.Message)
		}
	}
	return err
}
