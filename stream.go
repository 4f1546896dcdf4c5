package chatrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Session is one admitted streaming request: the chosen backend, the
// upstream event stream, and the running token total. It is ephemeral;
// after the usage commit it is spent.
type Session struct {
	relay    *Relay
	identity Identity
	target   QuotaTarget
	provider Provider
	model    ModelConfig
	paced    bool
	enc      Encoding
	events   EventStream
	tokens   int64 // billed prompt count, then accumulated with delivery
	status   Status
	idemKey  string
	started  time.Time
	finished bool
}

// Status returns the session's completion status.
func (s *Session) Status() Status { return s.status }

// TokenCount returns the session's accumulated token total.
func (s *Session) TokenCount() int64 { return s.tokens }

// Model returns the effective model name.
func (s *Session) Model() string { return s.model.Name }

// ProviderName returns the chosen provider's name.
func (s *Session) ProviderName() string { return s.provider.Name() }

// Serve drains the upstream stream into w and settles the session.
//
// Fragments are delivered in receipt order. On the gated path each
// upstream event grows an accumulated delay and every fragment is written
// once its ready-at time arrives; a single writer goroutine serializes the
// delayed writes so pacing never reorders them. The direct path writes
// immediately.
//
// Only fragments actually written to the caller are billed. A client
// disconnect stops upstream reads and drops pending writes; an upstream
// failure mid-stream truncates the body. Both are terminal and billable
// for what was delivered. The usage commit runs unconditionally, exactly
// once, on every exit path.
func (s *Session) Serve(ctx context.Context, w io.Writer) error {
	if s.finished {
		return fmt.Errorf("chatrelay: session already finished")
	}
	s.finished = true
	defer s.enc.Release()
	defer s.events.Close()

	pw := newPacedWriter(ctx, w)

	step := s.relay.cfg.Pacing.Step
	if s.model.TopTier {
		step = s.relay.cfg.Pacing.TopTierStep
	}
	eventDelay := time.Duration(step) * s.relay.cfg.Pacing.Unit

	var delay time.Duration
	var streamErr error

read:
	for {
		select {
		case <-ctx.Done():
			s.status = StatusClientAborted
			break read
		default:
		}

		ev, err := s.events.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.status = StatusSuccess
			case ctx.Err() != nil:
				s.status = StatusClientAborted
			default:
				s.status = StatusUpstreamError
				streamErr = &RelayError{
					Err:      fmt.Errorf("%w: %v", ErrUpstreamStream, err),
					Provider: s.provider.Name(),
					Model:    s.model.Name,
					UserID:   s.identity.ID,
				}
			}
			break read
		}

		if s.paced {
			delay += eventDelay
		}

		for _, choice := range ev.Choices {
			text := choice.Delta.Content
			if text == "" {
				continue
			}
			frag := fragment{text: text, tokens: clampTokens(s.enc.Count(text))}
			if s.paced {
				frag.readyAt = time.Now().Add(delay)
			}
			if !pw.enqueue(frag) {
				s.status = StatusClientAborted
				break read
			}
		}
	}

	// Wait for the last scheduled write so the accounted total matches
	// bytes actually delivered.
	delivered, writeErr := pw.close()
	s.tokens += delivered
	if writeErr != nil && s.status == StatusSuccess {
		s.status = StatusClientAborted
	}

	commitErr := s.relay.commitUsage(s.target, s.tokens, s.idemKey)

	s.relay.meter.OnResult(ResultEvent{
		Provider: s.provider.Name(),
		Model:    s.model.Name,
		UserID:   s.identity.ID,
		Username: s.identity.Username,
		CourseID: s.target.CourseID,
		Outcome:  s.status,
		Tokens:   s.tokens,
		Duration: time.Since(s.started),
		Error:    firstErr(streamErr, commitErr),
	})

	if streamErr != nil {
		return streamErr
	}
	return commitErr
}

// Close abandons a session that was never served. The upstream stream was
// already opened, so the prompt is still billed.
func (s *Session) Close() error {
	if s.finished {
		return nil
	}
	s.finished = true
	s.enc.Release()
	_ = s.events.Close()
	s.status = StatusClientAborted

	commitErr := s.relay.commitUsage(s.target, s.tokens, s.idemKey)

	s.relay.meter.OnResult(ResultEvent{
		Provider: s.provider.Name(),
		Model:    s.model.Name,
		UserID:   s.identity.ID,
		Username: s.identity.Username,
		CourseID: s.target.CourseID,
		Outcome:  s.status,
		Tokens:   s.tokens,
		Duration: time.Since(s.started),
		Error:    commitErr,
	})

	return commitErr
}

// fragment is one queued write. A zero readyAt means write immediately.
type fragment struct {
	text    string
	tokens  int64
	readyAt time.Time
}

// pacedWriter serializes delayed fragment writes. A single goroutine
// drains the queue in FIFO order, sleeping until each fragment's ready-at
// time, so delivery order always matches receipt order no matter how the
// delays land.
type pacedWriter struct {
	ctx   context.Context
	w     io.Writer
	queue chan fragment
	done  chan struct{}

	// stopped is closed on the first write failure; enqueue stops
	// accepting and drain discards the rest.
	stopped  chan struct{}
	stopOnce sync.Once

	// Written only by the drain goroutine; read after done closes.
	delivered int64
	writeErr  error
}

func newPacedWriter(ctx context.Context, w io.Writer) *pacedWriter {
	pw := &pacedWriter{
		ctx:     ctx,
		w:       w,
		queue:   make(chan fragment, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go pw.drain()
	return pw
}

// enqueue submits a fragment for ordered delivery. It returns false once
// the caller is gone or writing has failed.
func (pw *pacedWriter) enqueue(frag fragment) bool {
	if pw.ctx.Err() != nil || pw.failed() {
		return false
	}
	select {
	case pw.queue <- frag:
		return true
	case <-pw.ctx.Done():
		return false
	case <-pw.stopped:
		return false
	}
}

func (pw *pacedWriter) drain() {
	defer close(pw.done)
	for frag := range pw.queue {
		if pw.ctx.Err() != nil || pw.failed() {
			continue // cancelled: drop pending writes, keep draining
		}
		if wait := time.Until(frag.readyAt); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-pw.ctx.Done():
				t.Stop()
				continue
			}
		}
		if _, err := pw.w.Write([]byte(frag.text)); err != nil {
			pw.writeErr = err
			pw.stopOnce.Do(func() { close(pw.stopped) })
			continue
		}
		pw.delivered += frag.tokens
	}
}

func (pw *pacedWriter) failed() bool {
	select {
	case <-pw.stopped:
		return true
	default:
		return false
	}
}

// close stops accepting fragments, waits for the last scheduled write to
// complete, and returns the token total actually delivered.
func (pw *pacedWriter) close() (int64, error) {
	close(pw.queue)
	<-pw.done
	return pw.delivered, pw.writeErr
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
