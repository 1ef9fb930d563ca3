package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apolo-agent/backend/internal/corpus"
	"github.com/apolo-agent/backend/internal/images"
	"github.com/apolo-agent/backend/internal/notify"
	"github.com/apolo-agent/backend/internal/prompt"
	"github.com/apolo-agent/backend/internal/session"
	"github.com/apolo-agent/backend/internal/vector"
)

type fakeLLM struct {
	answer      string
	embedErr    error
	completeErr error
	lastPayload string
	onComplete  func()
}

func (f *fakeLLM) Embed(context.Context, string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeLLM) Complete(_ context.Context, payload string) (string, error) {
	f.lastPayload = payload
	if f.onComplete != nil {
		f.onComplete()
	}
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.answer, nil
}

func testIndex(t *testing.T) *vector.Index {
	t.Helper()
	ix, err := vector.New(3)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(vector.Chunk{ID: 0, Text: "Casa con jardín en el centro."}, []float32{1, 0, 0}))
	require.NoError(t, ix.Insert(vector.Chunk{ID: 1, Text: "Departamento junto al parque."}, []float32{0, 1, 0}))
	return ix
}

func newTestEngine(t *testing.T, llm *fakeLLM, opts ...Option) (*Engine, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(0, time.Minute)
	t.Cleanup(store.Close)
	assembler := prompt.NewAssembler(prompt.RealEstateTemplate)
	return NewEngine(testIndex(t), llm, assembler, store, opts...), store
}

func TestAskHappyPath(t *testing.T) {
	llm := &fakeLLM{answer: "Tenemos una casa con jardín disponible."}
	engine, store := newTestEngine(t, llm)

	resp, err := engine.Ask(context.Background(), Request{SessionID: "s1", Question: "¿Tienen casas con jardín?"})
	require.NoError(t, err)

	assert.False(t, resp.Degraded)
	assert.Equal(t, "Tenemos una casa con jardín disponible.", resp.Answer)
	assert.Nil(t, resp.Lead)
	assert.NotEmpty(t, resp.ID)

	assert.Contains(t, llm.lastPayload, "Casa con jardín en el centro.",
		"retrieved context reaches the prompt")
	assert.Contains(t, llm.lastPayload, "¿Tienen casas con jardín?")

	turns := store.GetOrCreate("s1").Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, "¿Tienen casas con jardín?", turns[0].Content)
}

func TestAskSecondTurnSeesHistory(t *testing.T) {
	llm := &fakeLLM{answer: "Claro."}
	engine, _ := newTestEngine(t, llm)

	_, err := engine.Ask(context.Background(), Request{SessionID: "s1", Question: "primera pregunta"})
	require.NoError(t, err)
	_, err = engine.Ask(context.Background(), Request{SessionID: "s1", Question: "segunda pregunta"})
	require.NoError(t, err)

	assert.Contains(t, llm.lastPayload, "Cliente: primera pregunta",
		"the prior exchange appears in the prompt history")
}

func TestAskExtractsLead(t *testing.T) {
	llm := &fakeLLM{answer: `Un asesor te contactará.
{"lead_detected": true, "nombre": "Ana", "telefono": "555", "email": "", "mensaje": "visita"}`}

	sink := notify.NewLogSink()
	engine, store := newTestEngine(t, llm, WithNotifier(sink, []string{"agente-1"}))

	resp, err := engine.Ask(context.Background(), Request{SessionID: "s1", Question: "Soy Ana, mi tel es 555, quiero visitar"})
	require.NoError(t, err)

	require.NotNil(t, resp.Lead)
	assert.Equal(t, "Ana", resp.Lead.Name)
	assert.NotContains(t, resp.Answer, "lead_detected",
		"the contact blob never reaches the client")

	turns := store.GetOrCreate("s1").Transcript()
	require.Len(t, turns, 2)
	assert.NotContains(t, turns[1].Content, "lead_detected")
}

func TestAskDegradedOnEmbedFailure(t *testing.T) {
	llm := &fakeLLM{embedErr: errors.New("embedding provider down")}
	engine, store := newTestEngine(t, llm)

	resp, err := engine.Ask(context.Background(), Request{SessionID: "s1", Question: "hola"})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Equal(t, DegradedAnswer, resp.Answer)
	assert.Empty(t, store.GetOrCreate("s1").Transcript(),
		"a degraded exchange never mutates the session")
}

func TestAskDegradedOnCompleteFailure(t *testing.T) {
	llm := &fakeLLM{completeErr: errors.New("completion provider down")}
	engine, store := newTestEngine(t, llm)

	resp, err := engine.Ask(context.Background(), Request{SessionID: "s1", Question: "hola"})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Empty(t, store.GetOrCreate("s1").Transcript())
}

func TestAskCancellationLeavesSessionClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &fakeLLM{answer: "respuesta", onComplete: cancel}
	engine, store := newTestEngine(t, llm)

	_, err := engine.Ask(ctx, Request{SessionID: "s1", Question: "hola"})
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, store.GetOrCreate("s1").Transcript(),
		"cancellation never records half an exchange")
}

func TestAskValidatesInput(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeLLM{answer: "x"})

	_, err := engine.Ask(context.Background(), Request{SessionID: "s1", Question: "   "})
	assert.Error(t, err)

	_, err = engine.Ask(context.Background(), Request{Question: "hola"})
	assert.Error(t, err)
}

func TestAskSurfacesImages(t *testing.T) {
	llm := &fakeLLM{answer: "La figura 2 muestra el bisel."}
	catalog := []corpus.ImageRecord{
		{Filename: "image_1.png"},
		{Filename: "image_2.png"},
	}
	engine, _ := newTestEngine(t, llm, WithImages(images.NewEngine(catalog)))

	resp, err := engine.Ask(context.Background(), Request{SessionID: "s1", Question: "¿qué muestra la figura 2?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"image_2.png"}, resp.Images)
}
