package chatrelay

import "time"

// Meter observes relay events for monitoring/logging.
type Meter interface {
	// OnRoute is called once per admitted request, when the backend has
	// been selected and before the upstream stream is opened.
	OnRoute(event RouteEvent)

	// OnResult is called once per admitted request when the session
	// reaches a terminal state.
	OnResult(event ResultEvent)
}

// RouteEvent describes a backend selection.
type RouteEvent struct {
	Provider     string
	Model        string
	UserID       string
	Username     string
	CourseID     string
	Downgraded   bool
	PromptTokens int64
}

// ResultEvent describes the terminal outcome of a stream session.
type ResultEvent struct {
	Provider string
	Model    string
	UserID   string
	Username string
	CourseID string
	Outcome  Status
	Tokens   int64
	Duration time.Duration
	Error    error
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnRoute(RouteEvent)   {}
func (noopMeter) OnResult(ResultEvent) {}
