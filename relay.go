package chatrelay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Relay is the usage-metered streaming completion relay. It admits a
// request, counts the assembled context, selects an upstream backend,
// streams generated fragments to the caller and commits consumed tokens
// against the caller's quota.
type Relay struct {
	cfg       Config
	direct    Provider
	gated     Provider
	directory Directory
	encoders  EncoderFactory
	meter     Meter
}

// Option configures a Relay.
type Option func(*Relay)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(r *Relay) { r.meter = m }
}

// WithEncoderFactory sets the token encoder factory.
func WithEncoderFactory(f EncoderFactory) Option {
	return func(r *Relay) { r.encoders = f }
}

// New creates a Relay routing to the given direct and gated providers and
// billing through the given directory. Default components (heuristic
// encoder factory, no-op meter) are used unless overridden via options.
func New(cfg Config, direct, gated Provider, directory Directory, opts ...Option) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if direct == nil || gated == nil {
		return nil, fmt.Errorf("chatrelay: both providers are required")
	}
	if directory == nil {
		return nil, fmt.Errorf("chatrelay: a directory is required")
	}

	r := &Relay{
		cfg:       cfg,
		direct:    direct,
		gated:     gated,
		directory: directory,
	}

	for _, opt := range opts {
		opt(r)
	}

	// Apply defaults after options.
	if r.encoders == nil {
		r.encoders = heuristicFactory{}
	}
	if r.meter == nil {
		r.meter = noopMeter{}
	}

	return r, nil
}

// OpenStream runs the pre-flight request lifecycle: admission, context
// accounting, backend selection and the upstream stream open. Every
// failure here is structured and unbilled: no bytes have been written to
// the caller.
//
// On success the caller owns the returned Session and must finish it with
// either Serve or Close, which settles billing and releases the encoder.
func (r *Relay) OpenStream(ctx context.Context, identity Identity, courseID string, opts ChatOptions) (*Session, error) {
	if identity.ID == "" {
		return nil, ErrUnauthenticated
	}

	target := QuotaTarget{UserID: identity.ID, CourseID: courseID}

	if err := r.admit(ctx, target); err != nil {
		return nil, err
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = r.cfg.DefaultModel
	}
	model, ok := r.cfg.Model(modelName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, modelName)
	}

	enc, err := r.encoders.Acquire(model.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownModel, model.Name, err)
	}
	opened := false
	defer func() {
		if !opened {
			enc.Release()
		}
	}()

	promptTokens := CountPrompt(opts.Messages, enc)
	if err := checkContext(promptTokens, model); err != nil {
		return nil, err
	}

	sel := r.selectBackend(identity, model, courseID, promptTokens)

	r.meter.OnRoute(RouteEvent{
		Provider:     sel.provider.Name(),
		Model:        sel.model.Name,
		UserID:       identity.ID,
		Username:     identity.Username,
		CourseID:     courseID,
		Downgraded:   sel.downgraded,
		PromptTokens: promptTokens,
	})

	events, err := sel.provider.Open(ctx, StreamRequest{
		Model:      sel.model.Name,
		Deployment: sel.model.Deployment,
		Messages:   opts.Messages,
	})
	if err != nil {
		return nil, &RelayError{
			Err:      fmt.Errorf("%w: %v", ErrUpstreamOpenFailed, err),
			Provider: sel.provider.Name(),
			Model:    sel.model.Name,
			UserID:   identity.ID,
		}
	}

	opened = true
	return &Session{
		relay:    r,
		identity: identity,
		target:   target,
		provider: sel.provider,
		model:    sel.model,
		paced:    sel.paced,
		enc:      enc,
		events:   events,
		tokens:   sel.billed,
		status:   StatusPending,
		idemKey:  uuid.New().String(),
		started:  time.Now(),
	}, nil
}
