// Package images decides which of a corpus's extracted images to surface
// alongside an answer.
package images

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/corpus"
	"github.com/apolo-agent/backend/internal/metrics"
	"github.com/apolo-agent/backend/pkg/logger"
)

// Strategy names accepted by configuration.
const (
	StrategyRules   = "rules"
	StrategyConfirm = "confirm"
)

// Rule maps a text predicate to a selection policy over an ordered catalog of
// n images. Pick returns 0-based indexes; out-of-range indexes are dropped by
// the engine. Rules are evaluated in order and the first match wins.
type Rule struct {
	Name  string
	Match func(text string) bool
	Pick  func(n int) []int
}

// Classifier is the model call used by the confirmatory strategy and the
// vision supplement. *llm.Client satisfies it.
type Classifier interface {
	Complete(ctx context.Context, payload string) (string, error)
	CompleteWithImage(ctx context.Context, payload string, imageBytes []byte) (string, error)
}

// ImageReader loads raw image bytes for the vision supplement.
type ImageReader func(storagePath string) ([]byte, error)

// Engine selects images for a (question, answer) pair. The catalog order is
// meaningful: rule policies address images by position.
type Engine struct {
	catalog    []corpus.ImageRecord
	rules      []Rule
	strategy   string
	classifier Classifier
	readImage  ImageReader
}

type Option func(*Engine)

// WithStrategy selects "rules" (default) or "confirm".
func WithStrategy(strategy string) Option {
	return func(e *Engine) {
		if strategy == StrategyConfirm {
			e.strategy = StrategyConfirm
		}
	}
}

// WithClassifier enables the confirmatory strategy and the vision supplement.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithImageReader supplies the loader used to attach image bytes to vision
// calls.
func WithImageReader(r ImageReader) Option {
	return func(e *Engine) { e.readImage = r }
}

// WithRules replaces the default rule table. The table is a per-corpus
// artifact: the defaults fit a document whose second figure is the central
// diagram, other corpora tune their own.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

func NewEngine(catalog []corpus.ImageRecord, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		rules:    DefaultRules(),
		strategy: StrategyRules,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultRules is the built-in priority table. Matching is against the
// lowercased concatenation of question and answer.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "figure-two",
			Match: matchesPattern(`\bfigura\s+(2|dos)\b`),
			Pick:  func(n int) []int { return []int{1} },
		},
		{
			Name:  "figure-one",
			Match: matchesPattern(`\bfigura\s+(1|uno)\b`),
			Pick:  func(n int) []int { return []int{0, n - 1} },
		},
		{
			Name:  "process",
			Match: containsAny("proceso", "procedimiento", "técnica", "tecnica", "cómo se hace", "como se hace"),
			Pick:  func(n int) []int { return []int{1} },
		},
		{
			Name:  "all-figures",
			Match: containsAny("todas las figuras", "todas las imágenes", "todas las imagenes", "ver las figuras"),
			Pick: func(n int) []int {
				all := make([]int, n)
				for i := range all {
					all[i] = i
				}
				return all
			},
		},
		{
			Name:  "inability-fallback",
			Match: containsAny("no puedo mostrar", "no puedo enseñar", "no es posible mostrar"),
			Pick:  func(n int) []int { return []int{0} },
		},
	}
}

func containsAny(phrases ...string) func(string) bool {
	return func(text string) bool {
		for _, p := range phrases {
			if strings.Contains(text, p) {
				return true
			}
		}
		return false
	}
}

// matchesPattern anchors figure references on word boundaries so "figura 12"
// does not trip the "figura 1" rule.
func matchesPattern(expr string) func(string) bool {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

// Select returns the filenames of images to surface, possibly empty. The
// confirmatory strategy falls back to rules on any failure, never to an
// empty selection.
func (e *Engine) Select(ctx context.Context, question, answer string) []string {
	if len(e.catalog) == 0 {
		return nil
	}
	if e.strategy == StrategyConfirm && e.classifier != nil {
		if names, ok := e.confirm(ctx, question, answer); ok {
			return names
		}
	}
	return e.applyRules(question, answer)
}

func (e *Engine) applyRules(question, answer string) []string {
	text := strings.ToLower(question + " " + answer)
	for _, rule := range e.rules {
		if !rule.Match(text) {
			continue
		}
		names := e.filenames(rule.Pick(len(e.catalog)))
		logger.Debug("Image rule matched",
			zap.String("rule", rule.Name),
			zap.Int("selected", len(names)),
		)
		if len(names) > 0 {
			metrics.ImagesSurfaced.WithLabelValues(StrategyRules).Add(float64(len(names)))
		}
		return names
	}
	return nil
}

func (e *Engine) filenames(indexes []int) []string {
	seen := make(map[int]bool, len(indexes))
	var names []string
	for _, i := range indexes {
		if i < 0 || i >= len(e.catalog) || seen[i] {
			continue
		}
		seen[i] = true
		names = append(names, e.catalog[i].Filename)
	}
	return names
}

const confirmTemplate = `Eres un clasificador. Dispones del siguiente catálogo de imágenes de un documento:

%s

Pregunta del usuario: %s
Respuesta del asistente: %s

Indica qué imágenes del catálogo son relevantes para esta respuesta. Responde ÚNICAMENTE con los números separados por comas (por ejemplo: 1,3) o con la palabra "ninguna".`

// confirm asks the model which catalog entries fit. It parses 1-based
// ordinals; "none"/"ninguna" is an explicit empty selection.
func (e *Engine) confirm(ctx context.Context, question, answer string) ([]string, bool) {
	var b strings.Builder
	for i, rec := range e.catalog {
		fmt.Fprintf(&b, "%d. %s", i+1, rec.Filename)
		if rec.Description != "" {
			fmt.Fprintf(&b, ": %s", rec.Description)
		}
		b.WriteByte('\n')
	}

	payload := fmt.Sprintf(confirmTemplate, b.String(), question, answer)
	reply, err := e.classifier.Complete(ctx, payload)
	if err != nil {
		logger.Warn("Image confirmation call failed, falling back to rules", zap.Error(err))
		return nil, false
	}

	ordinals, ok := parseOrdinals(reply)
	if !ok {
		logger.Warn("Unparseable image confirmation reply, falling back to rules",
			zap.String("reply", reply))
		return nil, false
	}
	indexes := make([]int, 0, len(ordinals))
	for _, ord := range ordinals {
		indexes = append(indexes, ord-1)
	}
	names := e.filenames(indexes)
	if len(names) > 0 {
		metrics.ImagesSurfaced.WithLabelValues(StrategyConfirm).Add(float64(len(names)))
	}
	return names, true
}

// parseOrdinals extracts a comma-separated list of 1-based ordinals from a
// classification reply. Returns an empty list for an explicit "none".
func parseOrdinals(reply string) ([]int, bool) {
	reply = strings.ToLower(strings.TrimSpace(reply))
	if reply == "" {
		return nil, false
	}
	if strings.Contains(reply, "ninguna") || strings.Contains(reply, "none") {
		return nil, true
	}

	var ordinals []int
	for _, part := range strings.Split(reply, ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "."))
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, false
		}
		ordinals = append(ordinals, n)
	}
	return ordinals, len(ordinals) > 0
}

var figureRefPattern = regexp.MustCompile(`(?i)figura\s+(\d+)`)

const supplementTemplate = `Describe brevemente el contenido de esta imagen en el contexto de la siguiente pregunta, como un párrafo complementario a la respuesta ya dada.

Pregunta: %s`

// Supplement appends a vision-model description when the question names a
// specific figure that exists in the catalog. Any failure returns the answer
// unchanged.
func (e *Engine) Supplement(ctx context.Context, question, answer string) string {
	if e.classifier == nil || e.readImage == nil {
		return answer
	}
	m := figureRefPattern.FindStringSubmatch(question)
	if m == nil {
		return answer
	}
	ord, err := strconv.Atoi(m[1])
	if err != nil || ord < 1 || ord > len(e.catalog) {
		return answer
	}

	rec := e.catalog[ord-1]
	data, err := e.readImage(rec.StoragePath)
	if err != nil {
		logger.Warn("Failed to read image for vision supplement",
			zap.String("path", rec.StoragePath), zap.Error(err))
		return answer
	}

	extra, err := e.classifier.CompleteWithImage(ctx, fmt.Sprintf(supplementTemplate, question), data)
	if err != nil {
		logger.Warn("Vision supplement call failed", zap.Error(err))
		return answer
	}
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return answer
	}
	return answer + "\n\n" + extra
}
