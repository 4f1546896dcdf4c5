// Package server exposes the relay over HTTP: a plain-text streaming
// completion endpoint, user- or course-scoped.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edukia/chatrelay"
)

// Server wires the relay into HTTP handlers.
type Server struct {
	relay *chatrelay.Relay
	log   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.log = logger }
}

// New creates a Server for the given relay.
func New(relay *chatrelay.Relay, opts ...Option) *Server {
	s := &Server{relay: relay}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Routes returns the relay's HTTP routes.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stream", s.handleStream)
	r.Post("/stream/{courseID}", s.handleStream)
	return r
}

// streamBody is the inbound request body.
type streamBody struct {
	Options chatrelay.ChatOptions `json:"options"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.ID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	courseID := chi.URLParam(r, "courseID")

	var body streamBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := s.relay.OpenStream(ctx, identity, courseID, body.Options)
	if err != nil {
		s.log.Info("stream rejected",
			"user", identity.Username,
			"course", courseID,
			"error", err,
		)
		http.Error(w, rejectionReason(err), chatrelay.HTTPStatus(err))
		return
	}

	// From here on the response is committed: only fragment bytes or a
	// connection close may follow.
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	out := io.Writer(w)
	if f, ok := w.(http.Flusher); ok {
		out = flushWriter{w: w, f: f}
	}

	if err := session.Serve(ctx, out); err != nil {
		// Body already streaming; nothing structured can be sent.
		s.log.Warn("stream aborted",
			"user", identity.Username,
			"course", courseID,
			"outcome", session.Status().String(),
			"error", err,
		)
	}
}

// rejectionReason maps a pre-stream error to the plain-text body of the
// rejection response.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, chatrelay.ErrUnauthenticated):
		return "Unauthorized"
	case errors.Is(err, chatrelay.ErrQuotaExceeded):
		return "Usage limit reached"
	case errors.Is(err, chatrelay.ErrContextExceeded):
		return "Model maximum context reached"
	case errors.Is(err, chatrelay.ErrUnknownModel):
		return "Unknown model"
	case errors.Is(err, chatrelay.ErrUpstreamOpenFailed):
		return "Error connecting to the model"
	default:
		return "Request failed"
	}
}

// flushWriter flushes after every write so fragments reach the client as
// they are paced out, not when the response buffer fills.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}
