// Package draft holds the in-progress booking selection shared by the steps
// of the booking flow.
package draft

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/catalog"
)

var ErrNoCourt = errors.New("select a court before choosing time slots")

type Customer struct {
	Name  string
	Phone string
	Email string
}

// Options are ancillary add-ons. They travel with the draft to the receipt
// but do not change the order amount.
type Options struct {
	Beverage bool
}

type selection struct {
	courtID string
	slot    catalog.TimeSlot
}

// Draft is the mutable booking aggregate. One step writes at a time; readers
// take a Snapshot.
type Draft struct {
	mu sync.RWMutex

	partner  catalog.Partner
	date     time.Time
	court    catalog.Court
	slots    []selection
	customer Customer
	options  Options
}

func New() *Draft { return &Draft{} }

// SetPartner selects a partner. Switching partners drops the court and its
// slots since courts belong to one partner.
func (d *Draft) SetPartner(p catalog.Partner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.partner.ID != p.ID {
		d.court = catalog.Court{}
		d.slots = nil
	}
	d.partner = p
}

// SetDate selects the calendar day. Availability is per court/date, so a
// different day drops the selected slots.
func (d *Draft) SetDate(day time.Time) {
	y, m, dd := day.Date()
	day = time.Date(y, m, dd, 0, 0, 0, 0, day.Location())

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.date.Equal(day) {
		d.slots = nil
	}
	d.date = day
}

// SetCourt selects a court and drops every slot chosen for another court.
func (d *Draft) SetCourt(c catalog.Court) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.court = c
	kept := d.slots[:0]
	for _, s := range d.slots {
		if s.courtID == c.ID {
			kept = append(kept, s)
		}
	}
	d.slots = kept
}

// SetSlots replaces the slot selection for the current court. Order is kept;
// repeated ids are ignored.
func (d *Draft) SetSlots(slots []catalog.TimeSlot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.court.ID == "" {
		return ErrNoCourt
	}
	d.slots = d.slots[:0]
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		d.slots = append(d.slots, selection{courtID: d.court.ID, slot: s})
	}
	return nil
}

// ToggleSlot adds slot to the end of the selection, or removes it when it is
// already selected. It reports whether the slot is selected afterwards.
func (d *Draft) ToggleSlot(slot catalog.TimeSlot) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.court.ID == "" {
		return false, ErrNoCourt
	}
	for i, s := range d.slots {
		if s.slot.ID == slot.ID {
			d.slots = append(d.slots[:i], d.slots[i+1:]...)
			return false, nil
		}
	}
	d.slots = append(d.slots, selection{courtID: d.court.ID, slot: slot})
	return true, nil
}

func (d *Draft) SetCustomer(c Customer) {
	d.mu.Lock()
	d.customer = c
	d.mu.Unlock()
}

func (d *Draft) SetOptions(o Options) {
	d.mu.Lock()
	d.options = o
	d.mu.Unlock()
}

// Reset clears the whole aggregate.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.partner = catalog.Partner{}
	d.date = time.Time{}
	d.court = catalog.Court{}
	d.slots = nil
	d.customer = Customer{}
	d.options = Options{}
}

// Snapshot is a read-only copy of the draft.
type Snapshot struct {
	Partner  catalog.Partner
	Date     time.Time
	Court    catalog.Court
	Slots    []catalog.TimeSlot // selection order
	Customer Customer
	Options  Options
}

func (d *Draft) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Snapshot{
		Partner:  d.partner,
		Date:     d.date,
		Court:    d.court,
		Customer: d.customer,
		Options:  d.options,
	}
	for _, sel := range d.slots {
		if sel.courtID == d.court.ID {
			s.Slots = append(s.Slots, sel.slot)
		}
	}
	return s
}

// Finalized returns a copy whose slots are ordered by start time, which is the
// order the confirmation screen and the order payload use.
func (s Snapshot) Finalized() Snapshot {
	out := s
	out.Slots = append([]catalog.TimeSlot(nil), s.Slots...)
	sort.SliceStable(out.Slots, func(i, j int) bool { return out.Slots[i].Start < out.Slots[j].Start })
	return out
}

func (s Snapshot) SlotIDs() []string {
	ids := make([]string, 0, len(s.Slots))
	for _, sl := range s.Slots {
		ids = append(ids, sl.ID)
	}
	return ids
}

func (s Snapshot) DisplayTimes() []string {
	return catalog.DisplayTimesForSlotIDs(s.SlotIDs(), s.Slots)
}
