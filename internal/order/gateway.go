package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/backend"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/draft"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/logger"
)

var (
	ErrValidation         = errors.New("booking is incomplete")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
)

// ValidationError names the first missing draft field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string { return e.Field + " is required" }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RejectedError is a backend refusal (for example a slot that was taken in
// the meantime). Message is shown to the user as-is.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

type Creator interface {
	CreatePayment(ctx context.Context, req backend.CreatePaymentRequest, idempotencyKey string) (backend.CreatePaymentResponse, error)
}

// Gateway turns a completed draft into an order. It lets only one submission
// run at a time.
type Gateway struct {
	api       Creator
	returnURL string
	cancelURL string
	now       func() time.Time
	log       *slog.Logger

	inFlight atomic.Bool
}

type Option func(*Gateway)

// WithReturnURLs sets where the hosted checkout sends the browser back to.
func WithReturnURLs(returnURL, cancelURL string) Option {
	return func(g *Gateway) { g.returnURL, g.cancelURL = returnURL, cancelURL }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func NewGateway(api Creator, opts ...Option) *Gateway {
	g := &Gateway{api: api, now: time.Now, log: logger.Log}
	for _, o := range opts {
		o(g)
	}
	g.log = g.log.With("component", "order")
	return g
}

// Validate checks the submission preconditions in screen order.
func Validate(s draft.Snapshot) error {
	switch {
	case s.Date.IsZero():
		return &ValidationError{Field: "date"}
	case s.Court.ID == "":
		return &ValidationError{Field: "court"}
	case len(s.Slots) == 0:
		return &ValidationError{Field: "time slot"}
	case strings.TrimSpace(s.Customer.Name) == "":
		return &ValidationError{Field: "name"}
	case strings.TrimSpace(s.Customer.Phone) == "":
		return &ValidationError{Field: "phone"}
	case strings.TrimSpace(s.Customer.Email) == "":
		return &ValidationError{Field: "email"}
	}
	return nil
}

// Amount is the court's hourly price times the number of selected slots.
func Amount(s draft.Snapshot) int64 {
	return s.Court.PricePerHour * int64(len(s.Slots))
}

// Submit validates s and creates the order. Validation failures never reach
// the network. The draft itself is never modified here.
func (g *Gateway) Submit(ctx context.Context, s draft.Snapshot) (Order, error) {
	if err := Validate(s); err != nil {
		return Order{}, err
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		return Order{}, ErrSubmissionInFlight
	}
	defer g.inFlight.Store(false)

	fin := s.Finalized()
	req := backend.CreatePaymentRequest{
		CourtID:      fin.Court.ID,
		BookingDate:  fin.Date.Format("2006-01-02"),
		CustomerName: strings.TrimSpace(fin.Customer.Name),
		Phone:        strings.TrimSpace(fin.Customer.Phone),
		Email:        strings.TrimSpace(fin.Customer.Email),
		Amount:       Amount(fin),
		TimeSlotIDs:  fin.SlotIDs(),
		ReturnURL:    g.returnURL,
		CancelURL:    g.cancelURL,
	}
	key := uuid.NewString()

	g.log.Info("submitting order", "court_id", req.CourtID, "date", req.BookingDate, "slots", len(req.TimeSlotIDs), "amount", req.Amount)
	res, err := g.api.CreatePayment(ctx, req, key)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			g.log.Warn("order rejected", "status", apiErr.Status, "message", apiErr.Message)
			return Order{}, &RejectedError{Status: apiErr.Status, Message: apiErr.Message}
		}
		return Order{}, fmt.Errorf("submit order: %w", err)
	}
	if res.OrderCode == "" {
		return Order{}, errors.New("submit order: backend returned no order code")
	}

	amount := res.Amount
	if amount <= 0 {
		amount = req.Amount
	}
	o := Order{
		Code:        res.OrderCode.String(),
		Amount:      amount,
		CheckoutURL: res.CheckoutURL,
		Status:      StatusPending,
		CourtID:     req.CourtID,
		Date:        fin.Date,
		SlotIDs:     req.TimeSlotIDs,
		CreatedAt:   g.now().UTC(),
	}
	g.log.Info("order created", "order_code", o.Code, "amount", o.Amount)
	return o, nil
}

// InFlight reports whether a submission is running, so a UI can disable its
// submit control.
func (g *Gateway) InFlight() bool { return g.inFlight.Load() }
