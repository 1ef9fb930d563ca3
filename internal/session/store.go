package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apolo-agent/backend/pkg/logger"
)

// Store owns the sessionID -> Session mapping with an explicit lifecycle:
// sessions are created on first use and expire after sitting idle for the
// store's TTL.
type Store interface {
	GetOrCreate(id string) *Session
	// Save flushes a session to the backing store after an exchange.
	// In-memory stores have nothing to flush.
	Save(sess *Session)
	Clear(id string)
	Delete(id string)
	Len() int
}

const DefaultTTL = 30 * time.Minute

// MemoryStore keeps sessions in process memory. A background janitor evicts
// sessions idle past the TTL.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxTurns int
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryStore(maxTurns int, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = New(id, s.maxTurns)
		s.sessions[id] = sess
		logger.Debug("Session created", zap.String("session_id", id))
	}
	return sess
}

func (s *MemoryStore) Save(sess *Session) {}

func (s *MemoryStore) Clear(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.Clear()
	}
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor() {
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

func (s *MemoryStore) evictIdle() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.LastSeen().Before(cutoff) {
			delete(s.sessions, id)
			logger.Debug("Session expired", zap.String("session_id", id))
		}
	}
}
