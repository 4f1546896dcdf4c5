package chatrelay

import (
	"context"
	"fmt"
	"time"
)

const commitTimeout = 10 * time.Second

// commitUsage settles a session's token total against its quota target.
// It runs on a background context so a disconnected client cannot abort
// billing: tokens already delivered are real upstream cost.
//
// The increment is a single authoritative attempt with no client-side
// retry; the per-session idempotency key keeps any store-side redelivery
// from double-counting.
func (r *Relay) commitUsage(target QuotaTarget, tokens int64, idemKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	if err := r.directory.IncrementUsage(ctx, target, tokens, idemKey); err != nil {
		return fmt.Errorf("chatrelay: usage commit: %w", err)
	}
	return nil
}
