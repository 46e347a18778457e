// ABOUTME: Redis implementation of SessionStore and Locker using go-redis
// ABOUTME: Keys are namespaced by a prefix; locks use SET NX PX, renewal while held, token-checked release

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lockRetryInterval is how long Lock waits between acquisition attempts.
const lockRetryInterval = 100 * time.Millisecond

// releaseScript deletes the lock key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the lock expiry out only if the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	LockTTL   time.Duration
}

// RedisStore implements SessionStore and Locker on top of Redis.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	s := NewRedisStoreFromClient(client, opts.KeyPrefix, opts.LockTTL, logger)
	if err := s.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	s.logger.Info("redis store initialized", "addr", opts.Addr, "prefix", s.prefix)
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, lockTTL time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		lockTTL: lockTTL,
		logger:  logger.With("component", "store", "backend", "redis"),
	}
}

func (s *RedisStore) key(kind, userID string) string {
	return s.prefix + ":" + kind + ":" + userID
}

// GetThread returns the stored thread id or ErrNotFound.
func (s *RedisStore) GetThread(ctx context.Context, userID string) (string, error) {
	threadID, err := s.client.Get(ctx, s.key("thread", userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting thread for %s: %w", userID, err)
	}
	if threadID == "" {
		return "", ErrNotFound
	}
	return threadID, nil
}

// SetThread stores the user's thread id.
func (s *RedisStore) SetThread(ctx context.Context, userID, threadID string) error {
	if err := s.client.Set(ctx, s.key("thread", userID), threadID, 0).Err(); err != nil {
		return fmt.Errorf("setting thread for %s: %w", userID, err)
	}
	return nil
}

// DeleteThread removes the user's thread id.
func (s *RedisStore) DeleteThread(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key("thread", userID)).Err(); err != nil {
		return fmt.Errorf("deleting thread for %s: %w", userID, err)
	}
	return nil
}

// GetMessageCount returns the counter, 0 when absent.
func (s *RedisStore) GetMessageCount(ctx context.Context, userID string) (int, error) {
	raw, err := s.client.Get(ctx, s.key("count", userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting message count for %s: %w", userID, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("corrupt message count, treating as zero", "user_id", userID, "value", raw)
		return 0, nil
	}
	return n, nil
}

// IncrementMessageCount atomically increments and returns the counter.
func (s *RedisStore) IncrementMessageCount(ctx context.Context, userID string) (int, error) {
	n, err := s.client.Incr(ctx, s.key("count", userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing message count for %s: %w", userID, err)
	}
	return int(n), nil
}

// ResetMessageCount sets the counter to 0.
func (s *RedisStore) ResetMessageCount(ctx context.Context, userID string) error {
	if err := s.client.Set(ctx, s.key("count", userID), 0, 0).Err(); err != nil {
		return fmt.Errorf("resetting message count for %s: %w", userID, err)
	}
	return nil
}

// GetRequestKind returns the stored request kind or "".
func (s *RedisStore) GetRequestKind(ctx context.Context, userID string) (string, error) {
	kind, err := s.client.Get(ctx, s.key("kind", userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting request kind for %s: %w", userID, err)
	}
	return kind, nil
}

// SetRequestKind stores the user's request kind.
func (s *RedisStore) SetRequestKind(ctx context.Context, userID, kind string) error {
	if err := s.client.Set(ctx, s.key("kind", userID), kind, 0).Err(); err != nil {
		return fmt.Errorf("setting request kind for %s: %w", userID, err)
	}
	return nil
}

// Lock acquires the user's distributed lock, retrying until ctx ends.
func (s *RedisStore) Lock(ctx context.Context, userID string) (func(context.Context) error, error) {
	key := s.key("lock", userID)
	token := uuid.New().String()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquiring lock for %s: %w", userID, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquiring lock for %s: %w: %w", userID, ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go s.renewLock(key, token, userID, stop, renewed)

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		<-renewed

		deleted, err := releaseScript.Run(ctx, s.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("releasing lock for %s: %w", userID, err)
		}
		if deleted == 0 {
			s.logger.Warn("lock expired before release", "user_id", userID)
		}
		return nil
	}
	return release, nil
}

// renewLock extends the lock every third of its TTL until stop closes or the
// key no longer carries token.
func (s *RedisStore) renewLock(key, token, userID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := s.lockTTL / 3
	if interval <= 0 {
		interval = s.lockTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := extendScript.Run(ctx, s.client, []string{key}, token, s.lockTTL.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			s.logger.Warn("renewing lock failed", "user_id", userID, "error", err)
		case extended == 0:
			s.logger.Warn("lock lost while held", "user_id", userID)
			return
		}
	}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	s.logger.Info("closing redis store")
	return s.client.Close()
}
