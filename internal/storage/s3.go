package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
)

const s3TableMarker = ".table"

// S3Connector stores each row as a JSON object under
// <prefix><table>/<partitionKey>/<rowKey>.json. A marker object records that
// the table exists.
type S3Connector struct {
	client *s3.Client
	config *config.S3Config
}

func NewS3Connector(cfg *config.S3Config) (*S3Connector, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Override with explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			}, nil
		})
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	log.Info().Str("bucket", cfg.Bucket).Msg("Initialized S3 table storage")
	return &S3Connector{
		client: s3Client,
		config: cfg,
	}, nil
}

func (s *S3Connector) CreateTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	marker := s.tablePrefix(table) + s3TableMarker
	exists, err := s.exists(ctx, marker)
	if err != nil {
		return err
	}
	if exists {
		return ErrTableExists
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(marker),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to create table marker: %w", err)
	}
	return nil
}

func (s *S3Connector) InsertOrReplaceEntity(ctx context.Context, table string, entity Entity) error {
	if err := s.checkTable(ctx, table); err != nil {
		return err
	}
	return s.put(ctx, table, entity)
}

func (s *S3Connector) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (Entity, error) {
	if err := s.checkTable(ctx, table); err != nil {
		return Entity{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(table, partitionKey, rowKey)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Entity{}, ErrNotFound
		}
		return Entity{}, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Entity{}, fmt.Errorf("failed to read object: %w", err)
	}
	return unmarshalEntity(data)
}

func (s *S3Connector) UpdateEntity(ctx context.Context, table string, entity Entity) error {
	if err := s.checkTable(ctx, table); err != nil {
		return err
	}
	exists, err := s.exists(ctx, s.objectKey(table, entity.PartitionKey, entity.RowKey))
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return s.put(ctx, table, entity)
}

func (s *S3Connector) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	if err := s.checkTable(ctx, table); err != nil {
		return err
	}
	key := s.objectKey(table, partitionKey, rowKey)
	exists, err := s.exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *S3Connector) put(ctx context.Context, table string, entity Entity) error {
	data, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.objectKey(table, entity.PartitionKey, entity.RowKey)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (s *S3Connector) checkTable(ctx context.Context, table string) error {
	exists, err := s.exists(ctx, s.tablePrefix(table)+s3TableMarker)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTableNotFound
	}
	return nil
}

func (s *S3Connector) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}

func (s *S3Connector) tablePrefix(table string) string {
	prefix := s.config.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + table + "/"
}

func (s *S3Connector) objectKey(table string, partitionKey string, rowKey string) string {
	return fmt.Sprintf("%s%s/%s.json", s.tablePrefix(table), url.PathEscape(partitionKey), url.PathEscape(rowKey))
}
