// Package flow runs one checkout: submit the draft, hand the user to the
// gateway, and wait for the order to resolve.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/draft"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/handoff"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/journal"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/logger"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/notify"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/poller"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/receipt"
)

// Screen is where the booking UI goes next.
type Screen string

const (
	ScreenPaid               Screen = "paid"
	ScreenCancelled          Screen = "cancelled"
	ScreenExpired            Screen = "expired"
	ScreenBackToCustomerInfo Screen = "customer-info"
)

type Outcome struct {
	Screen      Screen
	Order       order.Order
	Result      poller.Result
	ReceiptPath string
}

type Submitter interface {
	Submit(ctx context.Context, s draft.Snapshot) (order.Order, error)
}

type Opener interface {
	Open(o order.Order) (*handoff.Handoff, error)
}

type Poller interface {
	Poll(ctx context.Context, code string, hints <-chan struct{}) (poller.Result, error)
}

type Flow struct {
	Orders   Submitter
	Surface  Opener
	Poller   Poller
	Journal  journal.Journal // optional
	Notifier notify.Notifier // optional

	// ReceiptDir receives <order code>.pdf for paid orders when set.
	ReceiptDir string
	// OnOpen is told the local checkout page once the handoff is open.
	OnOpen func(url string)

	Logger *slog.Logger
	Now    func() time.Time
}

func (f *Flow) log() *slog.Logger {
	l := f.Logger
	if l == nil {
		l = logger.Log
	}
	return l.With("component", "flow")
}

func (f *Flow) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// Checkout submits d and blocks until the order is paid, cancelled, expired
// or abandoned by the user. Submission errors are returned unchanged and the
// draft is left alone. The draft is reset only when the order is paid.
func (f *Flow) Checkout(ctx context.Context, d *draft.Draft) (Outcome, error) {
	log := f.log()
	snap := d.Snapshot()

	o, err := f.Orders.Submit(ctx, snap)
	if err != nil {
		return Outcome{}, err
	}
	log = log.With("order_code", o.Code)
	f.record(ctx, log, o, snap)

	h, err := f.Surface.Open(o)
	if err != nil {
		return Outcome{Order: o}, fmt.Errorf("open checkout: %w", err)
	}
	defer h.Close()
	if f.OnOpen != nil {
		f.OnOpen(h.URL())
	}

	pctx, stop := context.WithCancel(ctx)
	defer stop()
	hints := make(chan struct{}, 1)
	left := make(chan handoff.SignalKind, 1)
	go relay(h.Signals(), hints, left, stop)

	res, err := f.Poller.Poll(pctx, o.Code, hints)
	if err != nil {
		var kind handoff.SignalKind
		select {
		case kind = <-left:
		default:
		}
		if kind == "" || ctx.Err() != nil {
			return Outcome{Order: o, Result: res}, err
		}
		return f.abandoned(ctx, log, h, o, res, kind), nil
	}

	out := Outcome{Order: o, Result: res}
	switch res.Outcome {
	case poller.Paid:
		out.Screen, out.Order.Status = ScreenPaid, order.StatusPaid
		h.Resolve(handoff.OutcomePaid)
	case poller.Cancelled:
		out.Screen, out.Order.Status = ScreenCancelled, order.StatusCancelled
		h.Resolve(handoff.OutcomeCancelled)
	default:
		out.Screen, out.Order.Status = ScreenExpired, order.StatusExpired
		h.Resolve(handoff.OutcomeExpired)
	}
	log.Info("checkout resolved", "screen", out.Screen, "attempts", res.Attempts)

	f.resolve(ctx, log, out.Order, res.Attempts)
	f.notify(ctx, log, out.Order, res.Attempts)
	if out.Screen == ScreenPaid {
		out.ReceiptPath = f.writeReceipt(log, out.Order, snap)
		d.Reset()
	}
	return out, nil
}

// relay turns handoff signals into poller hints. A cancel or exit stops
// polling; relay returns when the handoff closes.
func relay(signals <-chan handoff.Signal, hints chan<- struct{}, left chan<- handoff.SignalKind, stop context.CancelFunc) {
	for sig := range signals {
		switch sig.Kind {
		case handoff.SignalSuccess:
			select {
			case hints <- struct{}{}:
			default:
			}
		case handoff.SignalCancel, handoff.SignalExit:
			select {
			case left <- sig.Kind:
			default:
			}
			stop()
			return
		}
	}
}

// abandoned handles a user cancel or exit: back to the customer-info step
// with the draft intact.
func (f *Flow) abandoned(ctx context.Context, log *slog.Logger, h *handoff.Handoff, o order.Order, res poller.Result, kind handoff.SignalKind) Outcome {
	log.Info("checkout abandoned", "signal", kind, "attempts", res.Attempts)
	if kind == handoff.SignalCancel {
		h.Resolve(handoff.OutcomeCancelled)
		o.Status = order.StatusCancelled
		f.resolve(ctx, log, o, res.Attempts)
		f.notify(ctx, log, o, res.Attempts)
	} else {
		h.Resolve(handoff.OutcomeExited)
		f.resolve(ctx, log, o, res.Attempts)
	}
	return Outcome{Screen: ScreenBackToCustomerInfo, Order: o, Result: res}
}

func (f *Flow) record(ctx context.Context, log *slog.Logger, o order.Order, snap draft.Snapshot) {
	if f.Journal == nil {
		return
	}
	err := f.Journal.Record(ctx, journal.Entry{
		OrderCode:    o.Code,
		CourtID:      o.CourtID,
		BookingDate:  o.Date,
		SlotIDs:      o.SlotIDs,
		CustomerName: snap.Customer.Name,
		Phone:        snap.Customer.Phone,
		Email:        snap.Customer.Email,
		Amount:       o.Amount,
		CheckoutURL:  o.CheckoutURL,
		Status:       o.Status,
	})
	if err != nil {
		log.Warn("journal record failed", "err", err)
	}
}

func (f *Flow) resolve(ctx context.Context, log *slog.Logger, o order.Order, attempts int) {
	if f.Journal == nil {
		return
	}
	if err := f.Journal.Resolve(ctx, o.Code, o.Status, attempts); err != nil && !errors.Is(err, journal.ErrNotFound) {
		log.Warn("journal resolve failed", "err", err)
	}
}

func (f *Flow) notify(ctx context.Context, log *slog.Logger, o order.Order, attempts int) {
	if f.Notifier == nil {
		return
	}
	if err := f.Notifier.Notify(ctx, notify.NewBookingResolved(o, attempts, f.now())); err != nil {
		log.Warn("publish outcome failed", "err", err)
	}
}

func (f *Flow) writeReceipt(log *slog.Logger, o order.Order, snap draft.Snapshot) string {
	if f.ReceiptDir == "" {
		return ""
	}
	fin := snap.Finalized()
	r := receipt.Receipt{
		OrderCode:   o.Code,
		PartnerName: fin.Partner.Name,
		CourtName:   fin.Court.Name,
		Date:        fin.Date,
		Slots:       fin.DisplayTimes(),
		Customer:    fin.Customer.Name,
		Phone:       fin.Customer.Phone,
		Email:       fin.Customer.Email,
		Amount:      o.Amount,
		Beverage:    fin.Options.Beverage,
		PaidAt:      f.now(),
	}
	// the order code comes from the backend; it must name a file inside ReceiptDir
	name := o.Code + ".pdf"
	if o.Code == "" || filepath.Base(name) != name || strings.ContainsAny(o.Code, `/\`) {
		log.Warn("receipt skipped, order code is not a file name")
		return ""
	}
	if err := os.MkdirAll(f.ReceiptDir, 0o755); err != nil {
		log.Warn("receipt dir", "err", err)
		return ""
	}
	path := filepath.Join(f.ReceiptDir, name)
	if err := receipt.WriteFile(path, r); err != nil {
		log.Warn("receipt failed", "err", err)
		return ""
	}
	return path
}
