package chatrelay

import (
	"context"
	"fmt"
)

// admit performs the pre-flight quota check for a target. It runs before
// any tokenization work so requests that will be rejected cost nothing.
// The check is advisory: it reads the counter once and does not reserve.
func (r *Relay) admit(ctx context.Context, target QuotaTarget) error {
	quota, err := r.directory.GetQuota(ctx, target)
	if err != nil {
		// A directory the relay cannot read cannot admit; deny rather
		// than stream unbilled tokens.
		return fmt.Errorf("%w: directory: %v", ErrQuotaExceeded, err)
	}
	if quota.Exceeded() {
		return ErrQuotaExceeded
	}
	return nil
}

// checkContext is the second admission gate, after tokenization: the
// assembled context must fit the model's window.
func checkContext(promptTokens int64, model ModelConfig) error {
	if promptTokens > model.Context {
		return fmt.Errorf("%w: %d tokens over %s limit %d",
			ErrContextExceeded, promptTokens, model.Name, model.Context)
	}
	return nil
}
