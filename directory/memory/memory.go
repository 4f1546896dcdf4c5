// Package memory provides an in-memory Directory for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/edukia/chatrelay"
)

// Directory is an in-memory usage directory. Increments are applied under
// one lock, so concurrent streams for the same target never lose updates.
type Directory struct {
	mu           sync.Mutex
	entries      map[string]*entry
	seen         map[string]bool // idempotency key dedup
	defaultLimit *int64
}

type entry struct {
	count      int64
	limit      *int64
	resetEvery time.Duration
	resetAt    time.Time
}

var _ chatrelay.Directory = (*Directory)(nil)

// Option configures a Directory.
type Option func(*Directory)

// WithDefaultLimit sets the usage limit applied to targets that were
// never configured. Without it unknown targets are unlimited.
func WithDefaultLimit(limit int64) Option {
	return func(d *Directory) { d.defaultLimit = &limit }
}

// New creates an in-memory directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		entries: make(map[string]*entry),
		seen:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetLimit configures a finite usage limit for a target.
func (d *Directory) SetLimit(target chatrelay.QuotaTarget, limit int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getOrCreate(target).limit = &limit
}

// SetUnlimited removes a target's usage limit.
func (d *Directory) SetUnlimited(target chatrelay.QuotaTarget) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getOrCreate(target).limit = nil
}

// SetUsage overwrites a target's usage counter.
func (d *Directory) SetUsage(target chatrelay.QuotaTarget, count int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getOrCreate(target).count = count
}

// SetResetSchedule makes a target's counter reset every interval, checked
// lazily on access.
func (d *Directory) SetResetSchedule(target chatrelay.QuotaTarget, every time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.getOrCreate(target)
	e.resetEvery = every
	e.resetAt = time.Now().Add(every)
}

// Usage returns a target's current usage counter.
func (d *Directory) Usage(target chatrelay.QuotaTarget) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[target.Key()]
	if !ok {
		return 0
	}
	d.maybeReset(e)
	return e.count
}

// GetQuota returns the current counters for a target.
func (d *Directory) GetQuota(_ context.Context, target chatrelay.QuotaTarget) (chatrelay.Quota, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[target.Key()]
	if !ok {
		return chatrelay.Quota{UsageLimit: d.defaultLimit}, nil
	}
	d.maybeReset(e)
	return chatrelay.Quota{UsageCount: e.count, UsageLimit: e.limit}, nil
}

// IncrementUsage atomically adds delta to the target's counter. A repeated
// idempotency key is a no-op, making retried commits safe.
func (d *Directory) IncrementUsage(_ context.Context, target chatrelay.QuotaTarget, delta int64, idempotencyKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if idempotencyKey != "" {
		if d.seen[idempotencyKey] {
			return nil // already applied
		}
		d.seen[idempotencyKey] = true
	}

	e := d.getOrCreate(target)
	d.maybeReset(e)
	e.count += delta
	return nil
}

// getOrCreate must be called with the lock held.
func (d *Directory) getOrCreate(target chatrelay.QuotaTarget) *entry {
	key := target.Key()
	e, ok := d.entries[key]
	if !ok {
		e = &entry{limit: d.defaultLimit}
		d.entries[key] = e
	}
	return e
}

// maybeReset must be called with the lock held.
func (d *Directory) maybeReset(e *entry) {
	if e.resetEvery <= 0 {
		return
	}
	now := time.Now()
	if now.After(e.resetAt) {
		e.count = 0
		e.resetAt = now.Add(e.resetEvery)
	}
}
