// Package redisstore provides a Redis-backed publish record store.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/recordstore"
)

// DefaultKeyPrefix namespaces record keys.
const DefaultKeyPrefix = "docwatch:records:"

// Config selects the Redis server and key namespace.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store keeps one string value per record, written with SETNX.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ docs.RecordStore = (*Store)(nil)

// New dials Redis and checks the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("records.redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close closes the client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func (s *Store) key(k docs.PublishKey) string {
	return s.prefix + k.String()
}

// Get implements docs.RecordStore.
func (s *Store) Get(ctx context.Context, key docs.PublishKey) (docs.PublishRecord, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return docs.PublishRecord{}, docs.ErrRecordNotFound
		}
		return docs.PublishRecord{}, fmt.Errorf("get record %s: %w", key, err)
	}
	return recordstore.Unmarshal(data)
}

// Create implements docs.RecordStore.
func (s *Store) Create(ctx context.Context, rec docs.PublishRecord) error {
	payload, err := recordstore.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(rec.Key), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("setnx record %s: %w", rec.Key, err)
	}
	if !ok {
		return docs.ErrRecordExists
	}
	return nil
}
