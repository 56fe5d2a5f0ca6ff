package fulfill

import (
	"sync"
	"time"
)

const sweepAfterWindows = 10

// cooldownEntry tracks the last successful submission for one product.
// Its mutex serialises the whole check-then-act span: the holder keeps it
// locked from the cooldown check through the upstream submission.
type cooldownEntry struct {
	mu          sync.Mutex
	lastSuccess time.Time
	holders     int
}

// CooldownRegistry bounds duplicate submissions per product id. Entries
// older than ten windows are swept opportunistically so the map cannot
// grow without bound.
type CooldownRegistry struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*cooldownEntry
	now     func() time.Time
}

// NewCooldownRegistry constructs a registry with the given window.
func NewCooldownRegistry(window time.Duration) *CooldownRegistry {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &CooldownRegistry{
		window:  window,
		entries: make(map[string]*cooldownEntry),
		now:     time.Now,
	}
}

// Ticket represents an in-flight submission slot for one product. Commit
// records the success timestamp; Close releases the slot either way.
type Ticket struct {
	registry *CooldownRegistry
	entry    *cooldownEntry
	closed   bool
}

// Begin acquires the submission slot for productID. While another
// submission for the same product is in flight, Begin blocks; once
// acquired, it rejects with *ThrottledError if the last success is still
// within the cooldown window.
func (r *CooldownRegistry) Begin(productID string) (*Ticket, error) {
	r.mu.Lock()
	r.sweepLocked()
	e, ok := r.entries[productID]
	if !ok {
		e = &cooldownEntry{}
		r.entries[productID] = e
	}
	e.holders++
	r.mu.Unlock()

	e.mu.Lock()

	if !e.lastSuccess.IsZero() {
		elapsed := r.now().Sub(e.lastSuccess)
		if elapsed < r.window {
			e.mu.Unlock()
			r.release(e)
			return nil, &ThrottledError{ProductID: productID, RetryAfter: r.window - elapsed}
		}
	}

	return &Ticket{registry: r, entry: e}, nil
}

// Commit records a successful submission. Failed or ambiguous attempts
// never commit, so a prompt retry stays possible.
func (t *Ticket) Commit() {
	t.entry.lastSuccess = t.registry.now()
}

// Close releases the slot. Safe to call exactly once, typically deferred.
func (t *Ticket) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.entry.mu.Unlock()
	t.registry.release(t.entry)
}

func (r *CooldownRegistry) release(e *cooldownEntry) {
	r.mu.Lock()
	e.holders--
	r.mu.Unlock()
}

// sweepLocked drops idle entries whose last success is older than ten
// cooldown windows. Caller holds r.mu.
func (r *CooldownRegistry) sweepLocked() {
	cutoff := r.now().Add(-sweepAfterWindows * r.window)
	for id, e := range r.entries {
		if e.holders == 0 && !e.lastSuccess.IsZero() && e.lastSuccess.Before(cutoff) {
			delete(r.entries, id)
		}
	}
}
