// Package session provides session-scoped registry backends shared by API
// replicas.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"chronicle/docsync/internal/docsync"
	"chronicle/docsync/internal/tree"
)

const defaultTTL = time.Hour

// ErrInvalidSessionID is returned for session ids outside ValidID's alphabet.
var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can name a session. Ids are used verbatim in key
// prefixes and SCAN patterns, so glob metacharacters are not allowed.
func ValidID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// binding is the JSON payload stored for each registered document
type binding struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	BoundAt time.Time `json:"bound_at"`
}

// RedisStore holds registries of publish sessions in Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed registry store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "registry:",
		ttl:    ttl,
	}
}

// Registry returns the registry of one store ("draft" or "published") within a
// publish session.
func (s *RedisStore) Registry(sessionID, storeName string) *RedisRegistry {
	return &RedisRegistry{store: s, scope: s.prefix + sessionID + ":" + storeName + ":"}
}

// Clear drops every binding of a session. It returns the number of keys removed.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) (int, error) {
	if !ValidID(sessionID) {
		return 0, fmt.Errorf("clear session %q: %w", sessionID, ErrInvalidSessionID)
	}
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+sessionID+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan session %s: %w", sessionID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return int(removed), nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ docsync.Registry = (*RedisRegistry)(nil)

// RedisRegistry is a docsync.Registry whose bindings expire with the session TTL.
type RedisRegistry struct {
	store *RedisStore
	scope string
}

func (r *RedisRegistry) key(doc docsync.Document) string {
	return r.scope + docsync.Key(doc)
}

func (r *RedisRegistry) Lookup(ctx context.Context, doc docsync.Document) (tree.NodeHandle, bool, error) {
	raw, err := r.store.client.Get(ctx, r.key(doc)).Result()
	if errors.Is(err, redis.Nil) {
		return tree.NodeHandle{}, false, nil
	}
	if err != nil {
		return tree.NodeHandle{}, false, fmt.Errorf("lookup binding: %w", err)
	}

	var data binding
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return tree.NodeHandle{}, false, fmt.Errorf("unmarshal binding: %w", err)
	}
	return tree.NodeHandle{Identifier: data.ID, Path: data.Path}, true, nil
}

func (r *RedisRegistry) Register(ctx context.Context, doc docsync.Document, node tree.NodeHandle) error {
	payload, err := json.Marshal(binding{ID: node.Identifier, Path: node.Path, BoundAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal binding: %w", err)
	}
	if err := r.store.client.Set(ctx, r.key(doc), payload, r.store.ttl).Err(); err != nil {
		return fmt.Errorf("save binding: %w", err)
	}
	return nil
}
