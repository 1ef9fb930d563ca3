package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/pkg/logger"
)

// RedisStore keeps sessions in Redis so transcripts survive process
// restarts. Redis TTLs provide the durable idle expiry; live Session objects
// are cached locally so per-exchange appends stay cheap, and Save pushes the
// transcript back out after each exchange. The local cache follows the same
// idle lifecycle: a janitor evicts entries idle past the TTL, and GetOrCreate
// drops a stale entry rather than serve turns whose Redis key has expired.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	cache map[string]*Session
}

type redisSession struct {
	Turns    []Turn    `json:"turns"`
	LastSeen time.Time `json:"last_seen"`
}

func NewRedisStore(host string, port int, password string, db int, maxTurns int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	logger.Info("Redis session store initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	s := &RedisStore{
		client:   client,
		maxTurns: maxTurns,
		ttl:      ttl,
		stop:     make(chan struct{}),
		cache:    make(map[string]*Session),
	}
	go s.janitor()
	return s, nil
}

func (s *RedisStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.client.Close()
}

func (s *RedisStore) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.cache[id]; ok {
		if time.Since(sess.LastSeen()) < s.ttl {
			return sess
		}
		// Idle past the TTL: the Redis key has expired, so the cached
		// transcript must not survive either.
		delete(s.cache, id)
		logger.Debug("Session expired", zap.String("session_id", id))
	}

	sess := New(id, s.maxTurns)
	data, err := s.client.Get(context.Background(), sessionKey(id)).Bytes()
	if err == nil {
		var stored redisSession
		if err := json.Unmarshal(data, &stored); err == nil {
			sess.restore(stored.Turns, stored.LastSeen)
		} else {
			logger.Warn("Failed to decode stored session, starting fresh",
				zap.String("session_id", id), zap.Error(err))
		}
	} else if err != redis.Nil {
		logger.Warn("Failed to load session from redis, starting fresh",
			zap.String("session_id", id), zap.Error(err))
	}

	s.cache[id] = sess
	return sess
}

// Save writes the session's transcript back to Redis and refreshes its TTL.
// Failures are logged, not fatal: the in-process session stays usable.
func (s *RedisStore) Save(sess *Session) {
	turns, lastSeen := sess.snapshot()
	data, err := json.Marshal(redisSession{Turns: turns, LastSeen: lastSeen})
	if err != nil {
		logger.Error("Failed to marshal session", zap.String("session_id", sess.ID()), zap.Error(err))
		return
	}
	if err := s.client.Set(context.Background(), sessionKey(sess.ID()), data, s.ttl).Err(); err != nil {
		logger.Warn("Failed to persist session", zap.String("session_id", sess.ID()), zap.Error(err))
	}
}

func (s *RedisStore) Clear(id string) {
	s.mu.Lock()
	sess, ok := s.cache[id]
	s.mu.Unlock()
	if ok {
		sess.Clear()
	}
	if err := s.client.Del(context.Background(), sessionKey(id)).Err(); err != nil {
		logger.Warn("Failed to clear stored session", zap.String("session_id", id), zap.Error(err))
	}
}

func (s *RedisStore) Delete(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	if err := s.client.Del(context.Background(), sessionKey(id)).Err(); err != nil {
		logger.Warn("Failed to delete stored session", zap.String("session_id", id), zap.Error(err))
	}
}

func (s *RedisStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

func (s *RedisStore) janitor() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *RedisStore) evictIdle() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.cache {
		if sess.LastSeen().Before(cutoff) {
			delete(s.cache, id)
			logger.Debug("Session expired", zap.String("session_id", id))
		}
	}
}

func sessionKey(id string) string {
	return "session:" + id
}
