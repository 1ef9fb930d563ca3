package images

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apolo-agent/backend/internal/corpus"
	"github.com/apolo-agent/backend/internal/metrics"
)

func testCatalog(n int) []corpus.ImageRecord {
	catalog := make([]corpus.ImageRecord, n)
	names := []string{"image_1.png", "image_2.png", "image_3.png", "image_4.png"}
	for i := range catalog {
		catalog[i] = corpus.ImageRecord{Filename: names[i], StoragePath: "/img/" + names[i]}
	}
	return catalog
}

type fakeClassifier struct {
	reply      string
	err        error
	visionText string
	visionErr  error
	calls      int
}

func (f *fakeClassifier) Complete(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeClassifier) CompleteWithImage(context.Context, string, []byte) (string, error) {
	return f.visionText, f.visionErr
}

func TestRuleFigureTwo(t *testing.T) {
	e := NewEngine(testCatalog(4))

	got := e.Select(context.Background(), "¿Qué muestra la figura 2?", "La figura 2 muestra el bisel.")
	assert.Equal(t, []string{"image_2.png"}, got)
}

func TestRuleFigureOne(t *testing.T) {
	e := NewEngine(testCatalog(4))

	got := e.Select(context.Background(), "explícame la figura 1", "")
	assert.Equal(t, []string{"image_1.png", "image_4.png"}, got,
		"figure 1 surfaces the first and last images")
}

func TestRuleFirstMatchWins(t *testing.T) {
	e := NewEngine(testCatalog(4))

	// Mentions both figure 2 and the process keyword; the figure rule has
	// priority and results are not merged.
	got := e.Select(context.Background(), "¿la figura 2 describe el proceso?", "")
	assert.Equal(t, []string{"image_2.png"}, got)
}

func TestRuleProcess(t *testing.T) {
	e := NewEngine(testCatalog(4))

	got := e.Select(context.Background(), "¿cómo es el proceso de tallado?", "")
	assert.Equal(t, []string{"image_2.png"}, got)
}

func TestRuleAllFigures(t *testing.T) {
	e := NewEngine(testCatalog(3))

	got := e.Select(context.Background(), "muéstrame todas las figuras", "")
	assert.Equal(t, []string{"image_1.png", "image_2.png", "image_3.png"}, got)
}

func TestRuleInabilityFallback(t *testing.T) {
	e := NewEngine(testCatalog(3))

	got := e.Select(context.Background(), "muéstrame el diagrama", "Lo siento, no puedo mostrar imágenes directamente.")
	assert.Equal(t, []string{"image_1.png"}, got)
}

func TestRuleIgnoresUnknownFigureNumber(t *testing.T) {
	e := NewEngine(testCatalog(3))

	got := e.Select(context.Background(), "¿qué muestra la figura 12?", "")
	assert.Empty(t, got, "figure references match whole numbers only")

	got = e.Select(context.Background(), "ver la figura 20", "")
	assert.Empty(t, got)
}

func TestNoRuleMatches(t *testing.T) {
	e := NewEngine(testCatalog(3))

	got := e.Select(context.Background(), "¿cuánto cuesta?", "El precio depende del material.")
	assert.Empty(t, got)
}

func TestEmptyCatalog(t *testing.T) {
	e := NewEngine(nil)

	got := e.Select(context.Background(), "figura 2", "figura 2")
	assert.Empty(t, got)
}

func TestConfirmStrategyParsesOrdinals(t *testing.T) {
	classifier := &fakeClassifier{reply: "1, 3"}
	e := NewEngine(testCatalog(4),
		WithStrategy(StrategyConfirm),
		WithClassifier(classifier),
	)

	got := e.Select(context.Background(), "¿qué imágenes aplican?", "respuesta")
	assert.Equal(t, []string{"image_1.png", "image_3.png"}, got)
	assert.Equal(t, 1, classifier.calls)
}

func TestConfirmStrategyNone(t *testing.T) {
	classifier := &fakeClassifier{reply: "ninguna"}
	e := NewEngine(testCatalog(4),
		WithStrategy(StrategyConfirm),
		WithClassifier(classifier),
	)

	got := e.Select(context.Background(), "figura 2", "figura 2")
	assert.Empty(t, got, "an explicit none beats the rule table")
}

func TestConfirmStrategyDiscardsOutOfRange(t *testing.T) {
	classifier := &fakeClassifier{reply: "2, 9"}
	e := NewEngine(testCatalog(3),
		WithStrategy(StrategyConfirm),
		WithClassifier(classifier),
	)

	got := e.Select(context.Background(), "pregunta", "respuesta")
	assert.Equal(t, []string{"image_2.png"}, got,
		"out-of-range ordinals are discarded, not errors")
}

func TestConfirmStrategyFallsBackOnError(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("provider down")}
	e := NewEngine(testCatalog(4),
		WithStrategy(StrategyConfirm),
		WithClassifier(classifier),
	)

	got := e.Select(context.Background(), "figura 2", "")
	assert.Equal(t, []string{"image_2.png"}, got,
		"a failed confirmation falls back to the rules, never to nothing")
}

func TestConfirmStrategyFallsBackOnGarbage(t *testing.T) {
	classifier := &fakeClassifier{reply: "creo que la del bisel"}
	e := NewEngine(testCatalog(4),
		WithStrategy(StrategyConfirm),
		WithClassifier(classifier),
	)

	got := e.Select(context.Background(), "figura 1", "")
	assert.Equal(t, []string{"image_1.png", "image_4.png"}, got)
}

func TestSurfacedCounterLabelsStrategy(t *testing.T) {
	rulesBefore := testutil.ToFloat64(metrics.ImagesSurfaced.WithLabelValues(StrategyRules))
	confirmBefore := testutil.ToFloat64(metrics.ImagesSurfaced.WithLabelValues(StrategyConfirm))

	e := NewEngine(testCatalog(4),
		WithStrategy(StrategyConfirm),
		WithClassifier(&fakeClassifier{reply: "1, 3"}),
	)
	require.Len(t, e.Select(context.Background(), "pregunta", "respuesta"), 2)

	assert.Equal(t, confirmBefore+2,
		testutil.ToFloat64(metrics.ImagesSurfaced.WithLabelValues(StrategyConfirm)))
	assert.Equal(t, rulesBefore,
		testutil.ToFloat64(metrics.ImagesSurfaced.WithLabelValues(StrategyRules)),
		"a confirmed selection is not counted against the rule strategy")
}

func TestParseOrdinals(t *testing.T) {
	cases := []struct {
		reply string
		want  []int
		ok    bool
	}{
		{"1,2,3", []int{1, 2, 3}, true},
		{" 2 , 4 ", []int{2, 4}, true},
		{"1.", []int{1}, true},
		{"ninguna", nil, true},
		{"None", nil, true},
		{"", nil, false},
		{"la primera", nil, false},
	}

	for _, tc := range cases {
		got, ok := parseOrdinals(tc.reply)
		assert.Equal(t, tc.ok, ok, "reply %q", tc.reply)
		if tc.ok {
			assert.Equal(t, tc.want, got, "reply %q", tc.reply)
		}
	}
}

func TestSupplementAppendsVisionParagraph(t *testing.T) {
	classifier := &fakeClassifier{visionText: "La figura muestra el ángulo del bisel."}
	e := NewEngine(testCatalog(3),
		WithClassifier(classifier),
		WithImageReader(func(string) ([]byte, error) { return []byte{0x89}, nil }),
	)

	got := e.Supplement(context.Background(), "¿qué muestra la figura 2?", "Respuesta base.")
	assert.Equal(t, "Respuesta base.\n\nLa figura muestra el ángulo del bisel.", got)
}

func TestSupplementNoFigureReference(t *testing.T) {
	classifier := &fakeClassifier{visionText: "no debería llamarse"}
	e := NewEngine(testCatalog(3),
		WithClassifier(classifier),
		WithImageReader(func(string) ([]byte, error) { return []byte{0x89}, nil }),
	)

	got := e.Supplement(context.Background(), "¿cuánto cuesta?", "Respuesta base.")
	assert.Equal(t, "Respuesta base.", got)
}

func TestSupplementDegradesOnFailure(t *testing.T) {
	classifier := &fakeClassifier{visionErr: errors.New("vision down")}
	e := NewEngine(testCatalog(3),
		WithClassifier(classifier),
		WithImageReader(func(string) ([]byte, error) { return []byte{0x89}, nil }),
	)

	got := e.Supplement(context.Background(), "figura 1", "Respuesta base.")
	assert.Equal(t, "Respuesta base.", got, "a vision failure never blocks the answer")
}

func TestSupplementOutOfRangeFigure(t *testing.T) {
	e := NewEngine(testCatalog(2),
		WithClassifier(&fakeClassifier{visionText: "x"}),
		WithImageReader(func(string) ([]byte, error) { return nil, errors.New("unused") }),
	)

	got := e.Supplement(context.Background(), "figura 9", "Respuesta base.")
	require.Equal(t, "Respuesta base.", got)
}
