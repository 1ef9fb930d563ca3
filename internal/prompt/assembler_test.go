package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesAllSlots(t *testing.T) {
	a := NewAssembler("Fecha: {current_date}\nHistorial:\n{chat_history}\nContexto:\n{context}\nPregunta: {question}")

	out, err := a.Render(Bindings{
		CurrentDate: "2026-08-31",
		ChatHistory: "Cliente: hola\n",
		Context:     "chunk uno",
		Question:    "¿precio?",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Fecha: 2026-08-31")
	assert.Contains(t, out, "Cliente: hola")
	assert.Contains(t, out, "chunk uno")
	assert.Contains(t, out, "Pregunta: ¿precio?")
	assert.NotContains(t, out, "{", "no unexpanded slots remain")
}

func TestRenderDeterministic(t *testing.T) {
	a := NewAssembler(DocumentTemplate)
	b := Bindings{CurrentDate: "2026-08-31", Question: "¿qué es el bisel?"}

	first, err := a.Render(b)
	require.NoError(t, err)
	second, err := a.Render(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderUnknownSlot(t *testing.T) {
	a := NewAssembler("Hola {unknown_slot}")

	_, err := a.Render(Bindings{CurrentDate: "2026-08-31", Question: "q"})
	assert.ErrorIs(t, err, ErrMissingBinding)
}

func TestRenderRequiresDateAndQuestion(t *testing.T) {
	a := NewAssembler(DocumentTemplate)

	_, err := a.Render(Bindings{Question: "q"})
	assert.ErrorIs(t, err, ErrMissingBinding)

	_, err = a.Render(Bindings{CurrentDate: "2026-08-31"})
	assert.ErrorIs(t, err, ErrMissingBinding)
}

func TestRenderEmptyHistoryAndContextAllowed(t *testing.T) {
	a := NewAssembler(RealEstateTemplate)

	out, err := a.Render(Bindings{CurrentDate: "2026-08-31", Question: "¿tienen casas?"})
	require.NoError(t, err)
	assert.Contains(t, out, "¿tienen casas?")
}

func TestJoinContext(t *testing.T) {
	assert.Equal(t, "", JoinContext(nil))
	assert.Equal(t, "a", JoinContext([]string{"a"}))
	assert.Equal(t, "a"+ContextSeparator+"b", JoinContext([]string{"a", "b"}))
}

func TestRealEstateTemplateKeepsLeadContractLiteral(t *testing.T) {
	a := NewAssembler(RealEstateTemplate)

	out, err := a.Render(Bindings{CurrentDate: "2026-08-31", Question: "q"})
	require.NoError(t, err)
	assert.Contains(t, out, `"lead_detected": true`,
		"the embedded JSON contract must survive slot substitution")
}
