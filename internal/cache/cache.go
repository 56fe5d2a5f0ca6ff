package cache

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"skindrop/internal/catalog"
	"skindrop/internal/feed"
)

// Snapshot is the immutable, atomically-published catalog+balance state
// used for all reads. Items keep upstream feed order. Balance and items
// are fetched in separate upstream calls and may legitimately be one
// refresh cycle apart.
type Snapshot struct {
	Items      []catalog.Item
	Balance    *feed.Balance
	CapturedAt *time.Time
}

// Loaded reports whether at least one successful item refresh has been
// published.
func (s *Snapshot) Loaded() bool {
	return s.CapturedAt != nil
}

// FindItem returns the item matching productID by its authoritative key,
// or false when the snapshot does not carry it.
func (s *Snapshot) FindItem(productID string) (catalog.Item, bool) {
	for _, item := range s.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return catalog.Item{}, false
}

// Available returns the available settlement balance, or zero before the
// first balance refresh.
func (s *Snapshot) Available() decimal.Decimal {
	if s.Balance == nil {
		return decimal.Zero
	}
	return s.Balance.Available
}

// Cache holds the current Snapshot. Exactly one writer (the refresh loop)
// replaces the snapshot wholesale; any number of readers load it without
// locking. Published snapshots are never mutated in place.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

// New constructs a cache primed with the not-yet-loaded sentinel.
func New() *Cache {
	c := &Cache{}
	c.current.Store(&Snapshot{Items: []catalog.Item{}})
	return c
}

// Snapshot returns the current snapshot. It never blocks on I/O and never
// returns nil: before the first refresh the sentinel snapshot (empty
// items, nil balance, nil timestamp) is returned.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// PublishItems swaps in a snapshot carrying the new item list and the
// previously published balance.
func (c *Cache) PublishItems(items []catalog.Item) {
	prev := c.current.Load()
	now := time.Now().UTC()
	c.current.Store(&Snapshot{
		Items:      items,
		Balance:    prev.Balance,
		CapturedAt: &now,
	})
}

// PublishBalance swaps in a snapshot carrying the new balance and the
// previously published item list.
func (c *Cache) PublishBalance(bal feed.Balance) {
	prev := c.current.Load()
	c.current.Store(&Snapshot{
		Items:      prev.Items,
		Balance:    &bal,
		CapturedAt: prev.CapturedAt,
	})
}
