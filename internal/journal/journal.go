// Package journal keeps a local record of every order this client created
// and the outcome it resolved to.
package journal

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

var ErrNotFound = errors.New("journal: order not found")

type Entry struct {
	OrderCode    string
	CourtID      string
	BookingDate  time.Time
	SlotIDs      []string
	CustomerName string
	Phone        string
	Email        string
	Amount       int64
	CheckoutURL  string

	Status     order.Status
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

type Journal interface {
	Record(ctx context.Context, e Entry) error
	Resolve(ctx context.Context, code string, status order.Status, attempts int) error
	Get(ctx context.Context, code string) (Entry, error)
	List(ctx context.Context, limit int) ([]Entry, error)
	// Pending returns every order still awaiting an outcome, oldest first.
	Pending(ctx context.Context) ([]Entry, error)
}

func joinIDs(ids []string) string {
	var cleaned []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitIDs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Memory is an in-process Journal for runs without a database.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}, now: time.Now}
}

// Record stores e once; a second Record for the same code is ignored.
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.OrderCode]; ok {
		return nil
	}
	now := m.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = order.StatusPending
	}
	e.SlotIDs = append([]string(nil), e.SlotIDs...)
	m.entries[e.OrderCode] = e
	return nil
}

func (m *Memory) Resolve(_ context.Context, code string, status order.Status, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[code]
	if !ok {
		return ErrNotFound
	}
	now := m.now().UTC()
	e.Status = status
	e.Attempts = attempts
	e.UpdatedAt = now
	if status.Terminal() {
		e.ResolvedAt = &now
	}
	m.entries[code] = e
	return nil
}

func (m *Memory) Get(_ context.Context, code string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[code]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Pending(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Status == order.StatusPending {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].OrderCode < out[j].OrderCode
	})
	return out, nil
}

func sortNewestFirst(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.After(es[j].CreatedAt)
		}
		return es[i].OrderCode > es[j].OrderCode
	})
}
