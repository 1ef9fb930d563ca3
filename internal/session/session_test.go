package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendExchangeRoundtrip(t *testing.T) {
	s := New("s1", 0)

	s.AppendExchange("¿Tienen casas en el centro?", "Sí, tenemos varias opciones.")

	turns := s.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "¿Tienen casas en el centro?", turns[0].Content)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "Sí, tenemos varias opciones.", turns[1].Content)
}

func TestClear(t *testing.T) {
	s := New("s1", 0)
	s.AppendExchange("pregunta", "respuesta")

	s.Clear()
	assert.Empty(t, s.Transcript())

	// Subsequent exchanges start fresh.
	s.AppendExchange("otra", "cosa")
	assert.Len(t, s.Transcript(), 2)
}

func TestFIFOEviction(t *testing.T) {
	s := New("s1", 6)

	for i := 0; i < 10; i++ {
		s.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	turns := s.Transcript()
	require.Len(t, turns, 6, "transcript is capped at maxTurns")
	assert.Equal(t, "q7", turns[0].Content, "oldest turns are evicted first")
	assert.Equal(t, "a9", turns[5].Content)
}

func TestFormatted(t *testing.T) {
	s := New("s1", 0)
	s.AppendExchange("hola", "buenas tardes")

	got := s.Formatted()
	assert.Equal(t, "Cliente: hola\nAsistente: buenas tardes\n", got)
}

func TestTranscriptIsACopy(t *testing.T) {
	s := New("s1", 0)
	s.AppendExchange("q", "a")

	turns := s.Transcript()
	turns[0].Content = "mutated"

	assert.Equal(t, "q", s.Transcript()[0].Content)
}

func TestMemoryStoreGetOrCreate(t *testing.T) {
	store := NewMemoryStore(0, time.Minute)
	defer store.Close()

	a := store.GetOrCreate("s1")
	b := store.GetOrCreate("s1")
	assert.Same(t, a, b, "same id returns the same session")

	c := store.GetOrCreate("s2")
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStoreClearKeepsSession(t *testing.T) {
	store := NewMemoryStore(0, time.Minute)
	defer store.Close()

	s := store.GetOrCreate("s1")
	s.AppendExchange("q", "a")

	store.Clear("s1")
	assert.Empty(t, store.GetOrCreate("s1").Transcript())
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(0, time.Minute)
	defer store.Close()

	store.GetOrCreate("s1")
	store.Delete("s1")
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreEvictsIdleSessions(t *testing.T) {
	store := NewMemoryStore(0, 20*time.Millisecond)
	defer store.Close()

	store.GetOrCreate("s1")
	require.Equal(t, 1, store.Len())

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond, "idle sessions are evicted after the TTL")
}
