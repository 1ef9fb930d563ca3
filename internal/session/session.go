package session

import (
	"strings"
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTurns bounds the transcript. Unbounded session growth leaks
// memory and blows up the prompt, so the oldest turns are evicted first.
const DefaultMaxTurns = 40

type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds one identity's ordered conversation history. A session is
// owned by the orchestrator for that identity and never shared across
// identities.
type Session struct {
	mu       sync.Mutex
	id       string
	maxTurns int
	turns    []Turn
	lastSeen time.Time
}

func New(id string, maxTurns int) *Session {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Session{id: id, maxTurns: maxTurns, lastSeen: time.Now()}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(turn)
}

// AppendExchange records a question/answer pair atomically, so a cancelled
// or failed exchange can never leave half a pair behind.
func (s *Session) AppendExchange(question, answer string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(Turn{Role: RoleUser, Content: question, Timestamp: now})
	s.append(Turn{Role: RoleAssistant, Content: answer, Timestamp: now})
}

func (s *Session) append(turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.turns = append(s.turns, turn)
	if len(s.turns) > s.maxTurns {
		// FIFO eviction: drop oldest first.
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
	s.lastSeen = time.Now()
}

// Transcript returns the turns in chronological order. The slice is a copy;
// callers cannot mutate session state through it.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.lastSeen = time.Now()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Formatted renders the transcript for prompt consumption.
func (s *Session) Formatted() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, turn := range s.turns {
		switch turn.Role {
		case RoleUser:
			b.WriteString("Cliente: ")
		case RoleAssistant:
			b.WriteString("Asistente: ")
		}
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Session) snapshot() ([]Turn, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out, s.lastSeen
}

func (s *Session) restore(turns []Turn, lastSeen time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = turns
	s.lastSeen = lastSeen
}
