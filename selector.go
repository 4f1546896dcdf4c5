package chatrelay

import "strings"

// selection is the outcome of backend selection for one request.
type selection struct {
	provider   Provider
	model      ModelConfig
	billed     int64 // prompt token count, possibly rescaled by downgrade
	paced      bool
	downgraded bool
}

// selectBackend picks the provider and effective model for a request.
// All selection logic lives here; the streaming path never re-derives it.
//
// Rules, in order: privileged identities go to the direct provider with
// the requested model unchanged; everyone else goes to the gated provider
// with paced delivery; course-scoped long conversations on the downgrade
// model are served by the cheaper tier, with the billed prompt count
// rescaled to reflect the cheaper model's cost. The rescale is a cost
// accounting compensation, not a tokenizer re-run.
func (r *Relay) selectBackend(identity Identity, model ModelConfig, courseID string, promptTokens int64) selection {
	if r.isPrivileged(identity) {
		return selection{provider: r.direct, model: model, billed: promptTokens}
	}

	sel := selection{provider: r.gated, model: model, billed: promptTokens, paced: true}

	d := r.cfg.Downgrade
	if courseID != "" && d.Enabled() && model.Name == d.Model && promptTokens > d.Threshold {
		if to, ok := r.cfg.Model(d.To); ok {
			sel.model = to
			sel.billed = roundDiv(promptTokens, d.Divisor)
			sel.downgraded = true
		}
	}

	return sel
}

// isPrivileged reports whether any of the identity's groups matches a
// configured privileged group fragment.
func (r *Relay) isPrivileged(identity Identity) bool {
	for _, g := range identity.Groups {
		for _, frag := range r.cfg.PrivilegedGroups {
			if frag != "" && strings.Contains(g, frag) {
				return true
			}
		}
	}
	return false
}

// roundDiv divides n by d, rounding half up.
func roundDiv(n, d int64) int64 {
	if d <= 1 {
		return n
	}
	return (n + d/2) / d
}
