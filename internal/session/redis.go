package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

const defaultKeyPrefix = "contractd:session:"

// pinAttempts bounds SETNX and GET rounds when the key expires in between.
const pinAttempts = 2

// RedisStore is a [Store] shared by every worker behind the same Redis. The
// language pin uses SETNX so the first writer wins across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a [RedisStore].
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace. Default "contractd:session:".
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) { s.prefix = p }
}

// NewRedisStore connects to the Redis instance at url
// (redis://[:password@]host:port/db). ttl bounds how long an idle session
// survives; zero disables expiry.
func NewRedisStore(url string, ttl time.Duration, opts ...RedisOption) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(opt), ttl, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix, ttl: ttl}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) languageKey(id string) string { return s.prefix + id + ":language" }
func (s *RedisStore) typeKey(id string) string     { return s.prefix + id + ":active_type" }

// Load implements [Store].
func (s *RedisStore) Load(ctx context.Context, id string) (contract.Session, error) {
	vals, err := s.client.MGet(ctx, s.languageKey(id), s.typeKey(id)).Result()
	if err != nil {
		return contract.Session{}, fmt.Errorf("session: load %s: %w", id, err)
	}
	sess := contract.Session{ID: id}
	if v, ok := vals[0].(string); ok {
		sess.Language = v
	}
	if v, ok := vals[1].(string); ok {
		sess.ActiveType = contract.Type(v)
	}
	return sess, nil
}

// Language implements [Store].
func (s *RedisStore) Language(ctx context.Context, id string) (string, error) {
	lang, err := s.client.Get(ctx, s.languageKey(id)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && lang == "") {
		return "", contract.ErrSessionLanguageMissing
	}
	if err != nil {
		return "", fmt.Errorf("session: get language %s: %w", id, err)
	}
	return lang, nil
}

// PinLanguage implements [Store].
func (s *RedisStore) PinLanguage(ctx context.Context, id, lang string) (string, error) {
	if lang == "" {
		return "", contract.InvalidInput("empty language code")
	}
	key := s.languageKey(id)
	for range pinAttempts {
		set, err := s.client.SetNX(ctx, key, lang, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("session: pin language %s: %w", id, err)
		}
		if set {
			return lang, nil
		}
		pinned, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; try again as a fresh session.
			continue
		}
		if err != nil {
			return "", fmt.Errorf("session: get language %s: %w", id, err)
		}
		if s.ttl > 0 {
			if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
				observe.Logger(ctx).Warn("refreshing session language ttl failed", "session", id, "err", err)
			}
		}
		return pinned, nil
	}
	return "", fmt.Errorf("session: pin language %s: key expired on each of %d attempts", id, pinAttempts)
}

// SetActiveType implements [Store].
func (s *RedisStore) SetActiveType(ctx context.Context, id string, t contract.Type) error {
	if err := s.client.Set(ctx, s.typeKey(id), string(t), s.ttl).Err(); err != nil {
		return fmt.Errorf("session: set active type %s: %w", id, err)
	}
	return nil
}

// Ping checks connectivity. It backs the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
