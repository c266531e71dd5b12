package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/backend"
)

// ErrNotFound matches fetches the backend answered with 404.
var ErrNotFound = backend.ErrNotFound

// FetchError wraps every failed catalog read. The adapter never retries.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return "catalog: " + e.Op + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// TimeSlot is one bookable interval on a single day. Start < End always holds
// for slots returned by Catalog.
type TimeSlot struct {
	ID    string
	Start TimeOfDay
	End   TimeOfDay
}

// Display is the human-readable form the selection screens use.
func (s TimeSlot) Display() string {
	return s.Start.String() + " - " + s.End.String()
}

func (s TimeSlot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

type Partner struct {
	ID      string
	Name    string
	Address string
}

type Court struct {
	ID           string
	PartnerID    string
	Name         string
	PricePerHour int64
}

// Source is the slice of the backend API the catalog reads from.
type Source interface {
	TimeSlots(ctx context.Context) ([]backend.TimeSlot, error)
	AvailableTimeSlots(ctx context.Context, courtID string, date time.Time) ([]backend.TimeSlot, error)
	Partners(ctx context.Context) ([]backend.Partner, error)
	Courts(ctx context.Context, partnerID string, date time.Time) ([]backend.Court, error)
}

type Catalog struct {
	src Source
}

func New(src Source) *Catalog { return &Catalog{src: src} }

func (c *Catalog) ListAllSlots(ctx context.Context) ([]TimeSlot, error) {
	wire, err := c.src.TimeSlots(ctx)
	if err != nil {
		return nil, &FetchError{Op: "list slots", Err: err}
	}
	slots, err := normalize(wire)
	if err != nil {
		return nil, &FetchError{Op: "list slots", Err: err}
	}
	return slots, nil
}

// ListSlotsForCourtAndDate returns the slots still available on courtID for
// date. The backend has already removed slots taken by other bookings.
func (c *Catalog) ListSlotsForCourtAndDate(ctx context.Context, courtID string, date time.Time) ([]TimeSlot, error) {
	op := fmt.Sprintf("list slots court=%s date=%s", courtID, date.Format("2006-01-02"))
	wire, err := c.src.AvailableTimeSlots(ctx, courtID, date)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	slots, err := normalize(wire)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	return slots, nil
}

func (c *Catalog) ListPartners(ctx context.Context) ([]Partner, error) {
	wire, err := c.src.Partners(ctx)
	if err != nil {
		return nil, &FetchError{Op: "list partners", Err: err}
	}
	out := make([]Partner, 0, len(wire))
	for _, p := range wire {
		out = append(out, Partner{ID: p.ID.String(), Name: p.Name, Address: p.Address})
	}
	return out, nil
}

func (c *Catalog) ListCourts(ctx context.Context, partnerID string, date time.Time) ([]Court, error) {
	wire, err := c.src.Courts(ctx, partnerID, date)
	if err != nil {
		return nil, &FetchError{Op: "list courts partner=" + partnerID, Err: err}
	}
	out := make([]Court, 0, len(wire))
	for _, ct := range wire {
		pid := ct.PartnerID.String()
		if pid == "" {
			pid = partnerID
		}
		out = append(out, Court{ID: ct.ID.String(), PartnerID: pid, Name: ct.Name, PricePerHour: ct.PricePerHour})
	}
	return out, nil
}

// normalize parses wire slots, drops duplicate ids (first wins) and orders the
// result by start time.
func normalize(wire []backend.TimeSlot) ([]TimeSlot, error) {
	seen := make(map[string]bool, len(wire))
	out := make([]TimeSlot, 0, len(wire))
	for _, w := range wire {
		id := w.ID.String()
		if id == "" {
			return nil, fmt.Errorf("slot without id")
		}
		if seen[id] {
			continue
		}
		start, err := ParseTimeOfDay(w.StartTime)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", id, err)
		}
		end, err := ParseTimeOfDay(w.EndTime)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", id, err)
		}
		if start >= end {
			return nil, fmt.Errorf("slot %s: start %s not before end %s", id, start, end)
		}
		seen[id] = true
		out = append(out, TimeSlot{ID: id, Start: start, End: end})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// SlotIDForDisplayTime maps a display string back to its slot id. It accepts
// "09:00 - 10:00", "09:00-10:00" or just the start time "09:00".
func SlotIDForDisplayTime(display string, slots []TimeSlot) (string, bool) {
	startStr, endStr, hasEnd := strings.Cut(display, "-")
	start, err := ParseTimeOfDay(startStr)
	if err != nil {
		return "", false
	}
	var end TimeOfDay
	if hasEnd {
		end, err = ParseTimeOfDay(endStr)
		if err != nil {
			return "", false
		}
	}
	for _, s := range slots {
		if s.Start != start {
			continue
		}
		if hasEnd && s.End != end {
			continue
		}
		return s.ID, true
	}
	return "", false
}

// DisplayTimesForSlotIDs maps ids to display strings, keeping the order of
// ids. Ids missing from slots are skipped.
func DisplayTimesForSlotIDs(ids []string, slots []TimeSlot) []string {
	byID := make(map[string]TimeSlot, len(slots))
	for _, s := range slots {
		byID[s.ID] = s
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s.Display())
		}
	}
	return out
}
