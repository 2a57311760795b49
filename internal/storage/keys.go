package storage

import (
	"encoding/json"
	"fmt"
)

// Key layout shared by the key/value backends. The partition key is length
// prefixed so keys containing ':' cannot collide.
func tableKey(table string) string {
	return fmt.Sprintf("table:%s", table)
}

func entityKey(table string, partitionKey string, rowKey string) string {
	return fmt.Sprintf("row:%s:%d:%s:%s", table, len(partitionKey), partitionKey, rowKey)
}

type entityRecord struct {
	PartitionKey string            `json:"partition_key"`
	RowKey       string            `json:"row_key"`
	Properties   map[string]string `json:"properties"`
}

func marshalEntity(entity Entity) ([]byte, error) {
	return json.Marshal(entityRecord{
		PartitionKey: entity.PartitionKey,
		RowKey:       entity.RowKey,
		Properties:   entity.Properties,
	})
}

func unmarshalEntity(data []byte) (Entity, error) {
	var record entityRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return Entity{}, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	if record.Properties == nil {
		record.Properties = map[string]string{}
	}
	return Entity{
		PartitionKey: record.PartitionKey,
		RowKey:       record.RowKey,
		Properties:   record.Properties,
	}, nil
}
