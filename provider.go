package chatrelay

import "context"

// Provider is the interface upstream model backends must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "azure").
	Name() string

	// Open starts a streaming completion. It returns an error if the
	// upstream request itself fails; once an EventStream is returned the
	// request is committed and any later failure surfaces through Next.
	Open(ctx context.Context, req StreamRequest) (EventStream, error)
}

// StreamRequest is the request sent to a provider.
type StreamRequest struct {
	Model      string
	Deployment string // upstream deployment identifier, used by gated backends
	Messages   []Message
}

// EventStream is a finite sequence of upstream events.
type EventStream interface {
	// Next returns the next event. Returns io.EOF when the upstream
	// stream ends.
	Next() (Event, error)

	// Close releases the underlying connection.
	Close() error
}
