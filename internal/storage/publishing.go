package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type ChangeOp string

const (
	ChangeOpUpsert ChangeOp = "upsert"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

// ChangeEvent describes a row mutation that reached the store.
type ChangeEvent struct {
	Op           ChangeOp  `json:"op"`
	Table        string    `json:"table"`
	PartitionKey string    `json:"partition_key"`
	RowKey       string    `json:"row_key"`
	Timestamp    time.Time `json:"timestamp"`
}

type ChangePublisher interface {
	PublishChange(ctx context.Context, event ChangeEvent) error
}

// PublishingStore forwards every call to the wrapped store and announces
// successful writes. Publish failures are logged and never fail the write.
type PublishingStore struct {
	TableStore
	publisher ChangePublisher
}

func NewPublishingStore(store TableStore, publisher ChangePublisher) *PublishingStore {
	return &PublishingStore{TableStore: store, publisher: publisher}
}

func (p *PublishingStore) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	if err := p.TableStore.InsertOrReplaceEntity(ctx, table, entity); err != nil {
		return err
	}
	p.publish(ctx, ChangeOpUpsert, table, entity.PartitionKey, entity.RowKey)
	return nil
}

func (p *PublishingStore) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	if err := p.TableStore.UpdateEntity(ctx, table, entity); err != nil {
		return err
	}
	p.publish(ctx, ChangeOpUpdate, table, entity.PartitionKey, entity.RowKey)
	return nil
}

func (p *PublishingStore) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	if err := p.TableStore.DeleteEntity(ctx, table, partitionKey, rowKey); err != nil {
		return err
	}
	p.publish(ctx, ChangeOpDelete, table, partitionKey, rowKey)
	return nil
}

func (p *PublishingStore) publish(ctx context.Context, op ChangeOp, table string, partitionKey string, rowKey string) {
	event := ChangeEvent{
		Op:           op,
		Table:        table,
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Timestamp:    time.Now().UTC(),
	}
	if err := p.publisher.PublishChange(ctx, event); err != nil {
		log.Error().Err(err).Str("op", string(op)).Str("table", table).Str("key", partitionKey).Msg("Failed to publish change event")
	}
}
