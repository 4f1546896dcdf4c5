// Package mock provides a scriptable upstream provider for testing.
package mock

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edukia/chatrelay"
)

// Provider is a mock upstream backend for testing.
type Provider struct {
	name       string
	events     []chatrelay.Event
	openErr    error
	failAfter  int // events delivered before a mid-stream failure (0 = never)
	failErr    error
	eventDelay time.Duration
	openCount  atomic.Int64

	mu      sync.Mutex
	lastReq chatrelay.StreamRequest
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{name: "mock"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithEvents sets the scripted event sequence.
func WithEvents(events ...chatrelay.Event) Option {
	return func(p *Provider) { p.events = events }
}

// WithScript sets the event sequence from fragments, one single-choice
// event per fragment.
func WithScript(fragments ...string) Option {
	return func(p *Provider) {
		p.events = p.events[:0]
		for _, f := range fragments {
			p.events = append(p.events, chatrelay.Event{
				Choices: []chatrelay.EventChoice{{Delta: chatrelay.Delta{Content: f}}},
			})
		}
	}
}

// WithOpenError makes Open always fail with err.
func WithOpenError(err error) Option {
	return func(p *Provider) { p.openErr = err }
}

// WithFailAfter makes the stream fail with err after n events instead of
// ending cleanly.
func WithFailAfter(n int, err error) Option {
	return func(p *Provider) { p.failAfter = n; p.failErr = err }
}

// WithEventDelay adds simulated latency before each event.
func WithEventDelay(d time.Duration) Option {
	return func(p *Provider) { p.eventDelay = d }
}

func (p *Provider) Name() string { return p.name }

// OpenCount returns the number of Open calls made.
func (p *Provider) OpenCount() int64 { return p.openCount.Load() }

// LastRequest returns the most recent request passed to Open.
func (p *Provider) LastRequest() chatrelay.StreamRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

// Open returns a scripted stream, or the configured open error.
func (p *Provider) Open(ctx context.Context, req chatrelay.StreamRequest) (chatrelay.EventStream, error) {
	p.openCount.Add(1)
	p.mu.Lock()
	p.lastReq = req
	p.mu.Unlock()

	if p.openErr != nil {
		return nil, p.openErr
	}

	return &stream{
		ctx:       ctx,
		events:    p.events,
		failAfter: p.failAfter,
		failErr:   p.failErr,
		delay:     p.eventDelay,
	}, nil
}

type stream struct {
	ctx       context.Context
	events    []chatrelay.Event
	failAfter int
	failErr   error
	delay     time.Duration
	index     int
}

func (s *stream) Next() (chatrelay.Event, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return chatrelay.Event{}, s.ctx.Err()
		}
	}
	if err := s.ctx.Err(); err != nil {
		return chatrelay.Event{}, err
	}
	if s.failAfter > 0 && s.index >= s.failAfter {
		return chatrelay.Event{}, s.failErr
	}
	if s.index >= len(s.events) {
		return chatrelay.Event{}, io.EOF
	}
	ev := s.events[s.index]
	s.index++
	return ev, nil
}

func (s *stream) Close() error { return nil }
