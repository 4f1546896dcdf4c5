package chatrelay

import "context"

// Directory resolves quota state and applies usage increments. It is the
// relay's only view of the user/course store; the relay reads counters and
// requests increments, never writes them directly.
type Directory interface {
	// GetQuota returns the current counters for a target. Targets the
	// directory does not know are unlimited.
	GetQuota(ctx context.Context, target QuotaTarget) (Quota, error)

	// IncrementUsage atomically adds delta to the target's usage counter.
	// The increment must be a single read-modify-write at the store, never
	// a read followed by a later write, so concurrent streams for the same
	// target cannot lose updates. A non-empty idempotencyKey makes a
	// retried commit a no-op rather than a double increment.
	IncrementUsage(ctx context.Context, target QuotaTarget, delta int64, idempotencyKey string) error
}
