package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
)

const defaultAzureProtocol = "http"

// Table service error codes
const (
	azureTableAlreadyExists = "TableAlreadyExists"
	azureTableNotFound      = "TableNotFound"
)

// ConnectionString builds the table service connection descriptor for an
// account. protocol is http or https and defaults to http.
func ConnectionString(protocol string, accountName string, accountKey string) string {
	if protocol == "" {
		protocol = defaultAzureProtocol
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=%s;AccountName=%s;AccountKey=%s", protocol, accountName, accountKey)
}

type AzureTableConnector struct {
	service *aztables.ServiceClient

	mu      sync.Mutex
	clients map[string]*aztables.Client
}

func NewAzureTableConnector(cfg *config.AzureConfig) (*AzureTableConnector, error) {
	connStr := cfg.ConnectionString
	if connStr == "" {
		if cfg.AccountName == "" || cfg.AccountKey == "" {
			return nil, fmt.Errorf("azure account name and key are required")
		}
		connStr = ConnectionString(cfg.Protocol, cfg.AccountName, cfg.AccountKey)
	}

	service, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create table service client: %w", err)
	}

	log.Info().Str("account", cfg.AccountName).Msg("Initialized Azure table service client")
	return &AzureTableConnector{
		service: service,
		clients: make(map[string]*aztables.Client),
	}, nil
}

func (a *AzureTableConnector) CreateTable(ctx context.Context, table string) error {
	_, err := a.service.CreateTable(ctx, table, nil)
	return azureError(err)
}

func (a *AzureTableConnector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	data, err := marshalEDMEntity(entity)
	if err != nil {
		return err
	}
	_, err = a.client(table).UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return azureError(err)
}

func (a *AzureTableConnector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	resp, err := a.client(table).GetEntity(ctx, partitionKey, rowKey, nil)
	if err != nil {
		return Entity{}, azureError(err)
	}

	var edm aztables.EDMEntity
	if err := json.Unmarshal(resp.Value, &edm); err != nil {
		return Entity{}, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	entity := Entity{
		PartitionKey: edm.PartitionKey,
		RowKey:       edm.RowKey,
		Properties:   make(map[string]string, len(edm.Properties)),
	}
	for name, value := range edm.Properties {
		if s, ok := value.(string); ok {
			entity.Properties[name] = s
		}
	}
	return entity, nil
}

func (a *AzureTableConnector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	data, err := marshalEDMEntity(entity)
	if err != nil {
		return err
	}
	etag := azcore.ETagAny
	_, err = a.client(table).UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	return azureError(err)
}

func (a *AzureTableConnector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	etag := azcore.ETagAny
	_, err := a.client(table).DeleteEntity(ctx, partitionKey, rowKey, &aztables.DeleteEntityOptions{
		IfMatch: &etag,
	})
	return azureError(err)
}

func (a *AzureTableConnector) client(table string) *aztables.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.clients[table]
	if !ok {
		c = a.service.NewClient(table)
		a.clients[table] = c
	}
	return c
}

func marshalEDMEntity(entity Entity) ([]byte, error) {
	props := make(map[string]any, len(entity.Properties))
	for name, value := range entity.Properties {
		props[name] = value
	}
	data, err := json.Marshal(aztables.EDMEntity{
		Entity: aztables.Entity{
			PartitionKey: entity.PartitionKey,
			RowKey:       entity.RowKey,
		},
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	return data, nil
}

func azureError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	switch respErr.ErrorCode {
	case azureTableAlreadyExists:
		return fmt.Errorf("%w: %s", ErrTableExists, respErr.ErrorCode)
	case azureTableNotFound:
		return fmt.Errorf("%w: %s", ErrTableNotFound, respErr.ErrorCode)
	}
	if respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, respErr.ErrorCode)
	}
	return err
}
