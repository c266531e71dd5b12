package catalog

import (
	"context"
	"sync"
	"time"
)

// Cache keeps the available slots of one court/date selection. Asking for a
// different court or date replaces the cached entry.
type Cache struct {
	cat *Catalog

	mu    sync.Mutex
	key   string
	slots []TimeSlot
}

func NewCache(cat *Catalog) *Cache { return &Cache{cat: cat} }

func (c *Cache) Slots(ctx context.Context, courtID string, date time.Time) ([]TimeSlot, error) {
	key := courtID + "|" + date.Format("2006-01-02")

	c.mu.Lock()
	if c.key == key {
		s := c.slots
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	slots, err := c.cat.ListSlotsForCourtAndDate(ctx, courtID, date)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.key, c.slots = key, slots
	c.mu.Unlock()
	return slots, nil
}

// Invalidate drops the cached entry, e.g. after a submission was rejected
// because a slot was taken.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.key, c.slots = "", nil
	c.mu.Unlock()
}
