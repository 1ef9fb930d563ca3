package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/apolo-agent/backend/pkg/logger"
)

// Sink delivers a formatted human-readable message to a list of destination
// identifiers. The actual messaging channel (WhatsApp, SMS, ...) lives
// behind this interface; delivery failures are logged by callers, never
// fatal to the exchange that produced the message.
type Sink interface {
	Send(ctx context.Context, message string, destinations []string) error
}

// LogSink writes notifications to the structured log. It is the default
// sink for deployments without an outbound messaging channel configured.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Send(_ context.Context, message string, destinations []string) error {
	logger.Info("Lead notification",
		zap.Strings("destinations", destinations),
		zap.String("message", message),
	)
	return nil
}
