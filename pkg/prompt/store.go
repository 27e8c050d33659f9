// Package prompt loads versioned prompt templates from an object store and
// renders them against an enriched context map.
//
// Layout: templates live at {prefix}/{topic_id}/{role}/v{version}.tmpl and
// a pointer object {prefix}/{topic_id}/{role}/ACTIVE holds the version the
// engine should read. Resolved templates are cached for five minutes.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tractionlabs/aigateway/pkg/config"
)

// ErrObjectNotFound reports an absent object, as opposed to a store failure.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore reads template objects by key. Implemented by S3Store;
// tests use MemoryStore.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// S3Store reads templates from an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds the template store from the gateway config. A custom
// endpoint plus path-style addressing covers MinIO and localstack setups.
func NewS3Store(ctx context.Context, cfg *config.TemplateStoreConfig) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("template bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// GetObject implements ObjectStore.
func (s *S3Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrObjectNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && strings.EqualFold(apiErr.ErrorCode(), "NoSuchKey") {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3 get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// MemoryStore is an in-memory ObjectStore for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores an object.
func (m *MemoryStore) Put(key string, data []byte) {
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
}

// GetObject implements ObjectStore.
func (m *MemoryStore) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}
