package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
)

type RedisConnector struct {
	client *redis.Client
}

var DEFAULT_REDIS_POOL_SIZE = 20

func NewRedisConnector(cfg *config.RedisConfig) (*RedisConnector, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DEFAULT_REDIS_POOL_SIZE
	}

	options := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	}
	if cfg.EnableTLS {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(options)

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return &RedisConnector{
		client: client,
	}, nil
}

func (r *RedisConnector) CreateTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	created, err := r.client.SetNX(ctx, tableKey(table), 1, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if !created {
		return ErrTableExists
	}
	return nil
}

func (r *RedisConnector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	if err := r.checkTable(ctx, table); err != nil {
		return err
	}
	data, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, entityKey(table, entity.PartitionKey, entity.RowKey), string(data), 0).Err()
}

func (r *RedisConnector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	if err := r.checkTable(ctx, table); err != nil {
		return Entity{}, err
	}
	value, err := r.client.Get(ctx, entityKey(table, partitionKey, rowKey)).Result()
	if errors.Is(err, redis.Nil) {
		return Entity{}, ErrNotFound
	}
	if err != nil {
		return Entity{}, fmt.Errorf("failed to get entity: %w", err)
	}
	return unmarshalEntity([]byte(value))
}

func (r *RedisConnector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	if err := r.checkTable(ctx, table); err != nil {
		return err
	}
	data, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	updated, err := r.client.SetXX(ctx, entityKey(table, entity.PartitionKey, entity.RowKey), string(data), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

func (r *RedisConnector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	if err := r.checkTable(ctx, table); err != nil {
		return err
	}
	deleted, err := r.client.Del(ctx, entityKey(table, partitionKey, rowKey)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisConnector) Close() error {
	return r.client.Close()
}

func (r *RedisConnector) checkTable(ctx context.Context, table string) error {
	n, err := r.client.Exists(ctx, tableKey(table)).Result()
	if err != nil {
		return fmt.Errorf("failed to check table: %w", err)
	}
	if n == 0 {
		return ErrTableNotFound
	}
	return nil
}
