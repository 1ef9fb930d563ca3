package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/session"
	"github.com/apolo-agent/backend/internal/storage/sqlite"
	"github.com/apolo-agent/backend/pkg/logger"
)

const historyLimit = 100

type SessionHandler struct {
	sessions session.Store
	db       *sqlite.Client
}

func NewSessionHandler(sessions session.Store, db *sqlite.Client) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		db:       db,
	}
}

// GetHistory returns the live transcript of a session.
func (h *SessionHandler) GetHistory(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	sess := h.sessions.GetOrCreate(sessionID)
	transcript := sess.Transcript()

	turns := make([]fiber.Map, len(transcript))
	for i, t := range transcript {
		turns[i] = fiber.Map{
			"role":      t.Role,
			"content":   t.Content,
			"timestamp": t.Timestamp.Unix(),
		}
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// GetArchivedHistory returns the persisted exchange records for a session.
func (h *SessionHandler) GetArchivedHistory(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}
	if h.db == nil {
		return c.JSON(fiber.Map{"session_id": sessionID, "exchanges": []fiber.Map{}})
	}

	exchanges, err := h.db.GetSessionHistory(sessionID, historyLimit)
	if err != nil {
		logger.Error("Failed to load session archive",
			zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	records := make([]fiber.Map, len(exchanges))
	for i, ex := range exchanges {
		records[i] = fiber.Map{
			"id":         ex.ID,
			"question":   ex.Question,
			"answer":     ex.Answer,
			"latency_ms": ex.LatencyMS,
			"created_at": ex.CreatedAt.Unix(),
		}
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"exchanges":  records,
	})
}

// ClearSession wipes the transcript but keeps the session alive.
func (h *SessionHandler) ClearSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	h.sessions.Clear(sessionID)
	logger.Info("Session cleared", zap.String("session_id", sessionID))

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"status":     "cleared",
	})
}
