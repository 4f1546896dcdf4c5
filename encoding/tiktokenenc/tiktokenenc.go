// Package tiktokenenc provides an exact token EncoderFactory backed by
// tiktoken BPE encodings. Encodings are model-family specific; the
// factory is configured with a model-to-encoding map and falls back to
// tiktoken's own model table for anything not mapped.
package tiktokenenc

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/edukia/chatrelay"
)

// Factory produces per-request encodings for configured models.
type Factory struct {
	models map[string]string // model name -> encoding name

	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

var _ chatrelay.EncoderFactory = (*Factory)(nil)

// New creates a Factory with the given model-to-encoding map, e.g.
// {"gpt-4": "cl100k_base"}.
func New(models map[string]string) *Factory {
	return &Factory{
		models: models,
		cache:  make(map[string]*tiktoken.Tiktoken),
	}
}

// FromConfig builds a Factory from the relay's model configuration.
func FromConfig(cfg chatrelay.Config) *Factory {
	models := make(map[string]string, len(cfg.Models))
	for _, m := range cfg.Models {
		if m.Encoding != "" {
			models[m.Name] = m.Encoding
		}
	}
	return New(models)
}

// Acquire returns an encoding for the given model.
//
// A model the factory cannot place is an error; a configured model whose
// BPE tables cannot be loaded gets the heuristic fallback instead, since
// a skewed count must not fail the request.
func (f *Factory) Acquire(model string) (chatrelay.Encoding, error) {
	name, configured := f.models[model]
	if !configured {
		tk, err := tiktoken.EncodingForModel(model)
		if err != nil {
			return nil, fmt.Errorf("tiktokenenc: unknown model %q: %w", model, err)
		}
		return &encoding{tk: tk}, nil
	}

	tk, err := f.get(name)
	if err != nil {
		return heuristic{}, nil
	}
	return &encoding{tk: tk}, nil
}

func (f *Factory) get(name string) (*tiktoken.Tiktoken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if tk, ok := f.cache[name]; ok {
		return tk, nil
	}
	tk, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	f.cache[name] = tk
	return tk, nil
}

// encoding wraps a tiktoken encoder. The underlying tables are shareable
// and held by the factory cache; Release satisfies the per-request scope
// contract of the Encoding interface.
type encoding struct {
	tk *tiktoken.Tiktoken
}

func (e *encoding) Count(text string) int {
	return len(e.tk.Encode(text, nil, nil))
}

func (e *encoding) Release() {}

type heuristic struct{}

func (heuristic) Count(text string) int { return chatrelay.HeuristicCount(text) }
func (heuristic) Release()              {}
