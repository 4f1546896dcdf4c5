package meter

import (
	"log/slog"

	"github.com/edukia/chatrelay"
)

// LogMeter logs relay events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ chatrelay.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnRoute(e chatrelay.RouteEvent) {
	m.Logger.Info("route",
		"provider", e.Provider,
		"model", e.Model,
		"user", e.Username,
		"course", e.CourseID,
		"downgraded", e.Downgraded,
		"prompt_tokens", e.PromptTokens,
	)
}

func (m *LogMeter) OnResult(e chatrelay.ResultEvent) {
	if e.Error == nil {
		m.Logger.Info("stream_ended",
			"provider", e.Provider,
			"model", e.Model,
			"user", e.Username,
			"course", e.CourseID,
			"outcome", e.Outcome.String(),
			"token_count", e.Tokens,
			"duration_ms", e.Duration.Milliseconds(),
		)
	} else {
		m.Logger.Warn("stream_failed",
			"provider", e.Provider,
			"model", e.Model,
			"user", e.Username,
			"course", e.CourseID,
			"outcome", e.Outcome.String(),
			"token_count", e.Tokens,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}
