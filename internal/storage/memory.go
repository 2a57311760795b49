package storage

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	config "github.com/tablecache/tablecache/configs"
)

const defaultMemoryMaxItems = 100000

// MemoryConnector keeps rows in a bounded LRU. Meant for tests and local
// development; rows beyond MaxItems are evicted.
type MemoryConnector struct {
	cache  *lru.Cache[string, string]
	mu     sync.RWMutex
	tables map[string]struct{}
}

func NewMemoryConnector(cfg *config.MemoryConfig) (*MemoryConnector, error) {
	maxItems := defaultMemoryMaxItems
	if cfg != nil && cfg.MaxItems > 0 {
		maxItems = cfg.MaxItems
	}

	cache, err := lru.New[string, string](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &MemoryConnector{
		cache:  cache,
		tables: make(map[string]struct{}),
	}, nil
}

func (m *MemoryConnector) CreateTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table]; ok {
		return ErrTableExists
	}
	m.tables[table] = struct{}{}
	return nil
}

func (m *MemoryConnector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable(table); err != nil {
		return err
	}
	data, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	m.cache.Add(entityKey(table, entity.PartitionKey, entity.RowKey), string(data))
	return nil
}

func (m *MemoryConnector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkTable(table); err != nil {
		return Entity{}, err
	}
	value, ok := m.cache.Get(entityKey(table, partitionKey, rowKey))
	if !ok {
		return Entity{}, ErrNotFound
	}
	return unmarshalEntity([]byte(value))
}

func (m *MemoryConnector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable(table); err != nil {
		return err
	}
	key := entityKey(table, entity.PartitionKey, entity.RowKey)
	if !m.cache.Contains(key) {
		return ErrNotFound
	}
	data, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	m.cache.Add(key, string(data))
	return nil
}

func (m *MemoryConnector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable(table); err != nil {
		return err
	}
	if !m.cache.Remove(entityKey(table, partitionKey, rowKey)) {
		return ErrNotFound
	}
	return nil
}

func (m *MemoryConnector) checkTable(table string) error {
	if _, ok := m.tables[table]; !ok {
		return ErrTableNotFound
	}
	return nil
}
