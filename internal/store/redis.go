package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/kenneth/base64-type/internal/crypto"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces envelope keys.
const DefaultRedisPrefix = "keywrap:envelope:"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires envelopes after the given duration; zero keeps them forever.
	TTL   time.Duration
	Codec codecs.Codec
}

// RedisStore stores envelopes as encoded documents in Redis string keys.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	codec  codecs.Codec
}

var _ EnvelopeStore = (*RedisStore)(nil)

// NewRedisStore connects lazily; call Ping to verify the server is reachable.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address must be specified")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts), nil
}

// NewRedisStoreWithClient wraps an existing client. Addr, Password and DB in
// opts are ignored.
func NewRedisStoreWithClient(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	codec := opts.Codec
	if codec == nil {
		codec = codecs.NewJSONIter()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
		codec:  codec,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Put(ctx context.Context, id string, env *crypto.KeyEnvelope) error {
	if err := checkPut(id, env); err != nil {
		return err
	}
	data, err := s.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store envelope %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*crypto.KeyEnvelope, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to load envelope %s: %w", id, err)
	}

	var env crypto.KeyEnvelope
	if err := s.codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope %s: %w", id, err)
	}
	return &env, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete envelope %s: %w", id, err)
	}
	return nil
}

// Ping returns the Redis server liveliness response.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
