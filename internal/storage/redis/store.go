// Package redis shares generated exercises between daemon instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Defaults for Config
const (
	DefaultTTL    = 24 * time.Hour
	DefaultPrefix = "coda:exercise:"
)

// Config holds connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// ExerciseStore keeps exercises as JSON values that expire after TTL
type ExerciseStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

// Open connects to Redis and verifies the connection
func Open(ctx context.Context, cfg Config) (*ExerciseStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewExerciseStore(client, cfg.TTL, cfg.Prefix), nil
}

// NewExerciseStore wraps an existing client
func NewExerciseStore(client goredis.UniversalClient, ttl time.Duration, prefix string) *ExerciseStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ExerciseStore{client: client, ttl: ttl, prefix: prefix}
}

func (s *ExerciseStore) key(id string) string { return s.prefix + id }

// Put stores e, replacing any previous value and resetting its TTL
func (s *ExerciseStore) Put(ctx context.Context, e *domain.Exercise) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal exercise: %w", err)
	}
	if err := s.client.Set(ctx, s.key(e.ID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("set exercise %s: %w", e.ID, err)
	}
	return nil
}

// Get returns the exercise or domain.ErrExerciseNotFound
func (s *ExerciseStore) Get(ctx context.Context, id string) (*domain.Exercise, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrExerciseNotFound
		}
		return nil, fmt.Errorf("get exercise %s: %w", id, err)
	}

	var e domain.Exercise
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("unmarshal exercise %s: %w", id, err)
	}
	return &e, nil
}

// Delete removes an exercise and reports whether it existed
func (s *ExerciseStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("delete exercise %s: %w", id, err)
	}
	return n > 0, nil
}

// Ping checks the connection
func (s *ExerciseStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *ExerciseStore) Close() error {
	return s.client.Close()
}
