// Package query orchestrates one conversational exchange end to end:
// retrieval, prompt assembly, completion, lead capture, and image selection.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/images"
	"github.com/apolo-agent/backend/internal/lead"
	"github.com/apolo-agent/backend/internal/metrics"
	"github.com/apolo-agent/backend/internal/notify"
	"github.com/apolo-agent/backend/internal/prompt"
	"github.com/apolo-agent/backend/internal/session"
	"github.com/apolo-agent/backend/internal/storage/models"
	"github.com/apolo-agent/backend/internal/storage/sqlite"
	"github.com/apolo-agent/backend/internal/vector"
	"github.com/apolo-agent/backend/pkg/logger"
)

// DegradedAnswer is returned when the completion or embedding provider is
// unavailable. The exchange is not recorded in the session.
const DegradedAnswer = "Lo siento, en este momento no puedo procesar tu consulta. Por favor, inténtalo de nuevo en unos minutos."

const defaultRetrievalK = 10

// LLM is the slice of the completion client the engine needs.
type LLM interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, payload string) (string, error)
}

type Engine struct {
	index        *vector.Index
	llm          LLM
	assembler    *prompt.Assembler
	sessions     session.Store
	images       *images.Engine
	db           *sqlite.Client
	notifier     notify.Sink
	destinations []string
	retrievalK   int
}

type Request struct {
	SessionID string
	Question  string
}

type Response struct {
	ID        string
	SessionID string
	Answer    string
	Lead      *lead.Record
	Images    []string
	Degraded  bool
	LatencyMS int64
}

type Option func(*Engine)

// WithImages wires the image-relevance engine. Without it no images are
// surfaced.
func WithImages(e *images.Engine) Option {
	return func(eng *Engine) { eng.images = e }
}

// WithPersistence records exchanges and leads in SQLite. Best effort: a
// storage failure never fails the exchange.
func WithPersistence(db *sqlite.Client) Option {
	return func(eng *Engine) { eng.db = db }
}

// WithNotifier dispatches captured leads to the given destinations.
func WithNotifier(sink notify.Sink, destinations []string) Option {
	return func(eng *Engine) {
		eng.notifier = sink
		eng.destinations = destinations
	}
}

// WithRetrievalK overrides the number of neighbors pulled per question.
func WithRetrievalK(k int) Option {
	return func(eng *Engine) {
		if k > 0 {
			eng.retrievalK = k
		}
	}
}

func NewEngine(index *vector.Index, client LLM, assembler *prompt.Assembler, sessions session.Store, opts ...Option) *Engine {
	e := &Engine{
		index:      index,
		llm:        client,
		assembler:  assembler,
		sessions:   sessions,
		retrievalK: defaultRetrievalK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask runs one full exchange for the session. Provider outages produce a
// degraded response with no session mutation; a canceled context aborts
// before anything is recorded.
func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	exchangeID := uuid.New().String()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.New("empty question")
	}
	if req.SessionID == "" {
		return nil, errors.New("empty session id")
	}

	logger.Info("Processing question",
		zap.String("exchange_id", exchangeID),
		zap.String("session_id", req.SessionID),
	)

	sess := e.sessions.GetOrCreate(req.SessionID)
	history := sess.Formatted()

	embedding, err := e.llm.Embed(ctx, question)
	if err != nil {
		return e.degraded(ctx, exchangeID, req.SessionID, "embed", err)
	}

	results, err := e.index.Query(embedding, e.retrievalK)
	if err != nil {
		logger.Warn("Vector query failed, answering without corpus context",
			zap.String("exchange_id", exchangeID), zap.Error(err))
	}
	metrics.VectorResultsCount.Observe(float64(len(results)))

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Text
	}

	payload, err := e.assembler.Render(prompt.Bindings{
		CurrentDate: time.Now().Format("2006-01-02"),
		ChatHistory: history,
		Context:     prompt.JoinContext(contexts),
		Question:    question,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble prompt: %w", err)
	}

	raw, err := e.llm.Complete(ctx, payload)
	if err != nil {
		return e.degraded(ctx, exchangeID, req.SessionID, "complete", err)
	}

	record, err := lead.Extract(raw)
	if err != nil {
		logger.Warn("Malformed lead payload in answer, treating as no lead",
			zap.String("exchange_id", exchangeID), zap.Error(err))
	}

	answer := lead.StripJSON(raw)

	var imageNames []string
	if e.images != nil {
		imageNames = e.images.Select(ctx, question, answer)
		answer = e.images.Supplement(ctx, question, answer)
	}

	// A cancellation observed here aborts before the session is touched so
	// a half exchange is never recorded.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess.AppendExchange(question, answer)
	e.sessions.Save(sess)

	latency := time.Since(startTime).Milliseconds()

	resp := &Response{
		ID:        exchangeID,
		SessionID: req.SessionID,
		Answer:    answer,
		Images:    imageNames,
		LatencyMS: latency,
	}
	if record.Detected {
		resp.Lead = &record
		metrics.LeadsDetected.Inc()
		e.handleLead(ctx, exchangeID, req.SessionID, record)
	}

	e.persistExchange(&models.Exchange{
		ID:            exchangeID,
		SessionID:     req.SessionID,
		Question:      question,
		Answer:        answer,
		VectorResults: len(results),
		LeadDetected:  record.Detected,
		ImageCount:    len(imageNames),
		LatencyMS:     latency,
		CreatedAt:     time.Now(),
	})

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues("total").Observe(time.Since(startTime).Seconds())
	metrics.ActiveSessions.Set(float64(e.sessions.Len()))

	logger.Info("Question answered",
		zap.String("exchange_id", exchangeID),
		zap.Int("vector_results", len(results)),
		zap.Bool("lead_detected", record.Detected),
		zap.Int("images", len(imageNames)),
		zap.Int64("latency_ms", latency),
	)

	return resp, nil
}

// degraded maps a provider outage to an apology answer. The session stays
// untouched so the failed turn can be retried cleanly.
func (e *Engine) degraded(ctx context.Context, exchangeID, sessionID, stage string, cause error) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Error("Provider failure, returning degraded answer",
		zap.String("exchange_id", exchangeID),
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
		zap.Error(cause),
	)
	metrics.QueryTotal.WithLabelValues("degraded").Inc()
	return &Response{
		ID:        exchangeID,
		SessionID: sessionID,
		Answer:    DegradedAnswer,
		Degraded:  true,
	}, nil
}

func (e *Engine) handleLead(ctx context.Context, exchangeID, sessionID string, record lead.Record) {
	leadID := uuid.New().String()
	notified := false

	if e.notifier != nil && len(e.destinations) > 0 {
		message := lead.FormatAgentMessage(record, time.Now())
		if err := e.notifier.Send(ctx, message, e.destinations); err != nil {
			logger.Error("Lead notification failed",
				zap.String("lead_id", leadID), zap.Error(err))
		} else {
			notified = true
		}
	}

	if e.db != nil {
		err := e.db.InsertLead(&models.Lead{
			ID:        leadID,
			SessionID: sessionID,
			Name:      record.Name,
			Phone:     record.Phone,
			Email:     record.Email,
			Message:   record.Message,
			Notified:  notified,
			CreatedAt: time.Now(),
		})
		if err != nil {
			logger.Error("Failed to persist lead",
				zap.String("lead_id", leadID), zap.Error(err))
		}
	}

	logger.Info("Lead captured",
		zap.String("lead_id", leadID),
		zap.String("exchange_id", exchangeID),
		zap.Bool("notified", notified),
	)
}

func (e *Engine) persistExchange(ex *models.Exchange) {
	if e.db == nil {
		return
	}
	if err := e.db.InsertExchange(ex); err != nil {
		logger.Error("Failed to persist exchange",
			zap.String("exchange_id", ex.ID), zap.Error(err))
	}
}
