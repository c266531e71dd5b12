package order

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ParseStatus maps the backend/gateway spellings onto Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "processing", "created":
		return StatusPending, nil
	case "paid", "success", "successful":
		return StatusPaid, nil
	case "cancelled", "canceled", "failed":
		return StatusCancelled, nil
	case "expired":
		return StatusExpired, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

// Order is the client's view of a pending booking plus payment intent. The
// backend owns it; the client only refreshes Status from the backend.
type Order struct {
	Code        string
	Amount      int64
	CheckoutURL string
	Status      Status

	CourtID   string
	Date      time.Time
	SlotIDs   []string
	CreatedAt time.Time
}
