package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/query"
	"github.com/apolo-agent/backend/pkg/logger"
)

type QueryHandler struct {
	queryEngine *query.Engine
}

func NewQueryHandler(queryEngine *query.Engine) *QueryHandler {
	return &QueryHandler{
		queryEngine: queryEngine,
	}
}

func (h *QueryHandler) HandleAsk(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"session_id"`
		Question  string `json:"question"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	response, err := h.queryEngine.Ask(c.Context(), query.Request{
		SessionID: req.SessionID,
		Question:  req.Question,
	})
	if err != nil {
		logger.Error("Failed to process question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	body := fiber.Map{
		"id":              response.ID,
		"session_id":      response.SessionID,
		"answer":          response.Answer,
		"relevant_images": imageList(response.Images),
		"degraded":        response.Degraded,
		"latency_ms":      response.LatencyMS,
	}
	if response.Lead != nil {
		body["lead"] = fiber.Map{
			"nombre":   response.Lead.Name,
			"telefono": response.Lead.Phone,
			"email":    response.Lead.Email,
			"mensaje":  response.Lead.Message,
		}
	}

	return c.JSON(body)
}

// imageList keeps the JSON field an array even when nothing was selected.
func imageList(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
