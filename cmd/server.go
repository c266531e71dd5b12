package cmd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/handoff"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/journal"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/notify"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/poller"
)

func newServerCmd() *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the checkout pages and resume pending journal orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			surface, err := a.surface()
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			if resume && a.cfg.DatabaseURL != "" {
				r, err := newResumer(ctx, a, surface)
				if err != nil {
					return err
				}
				if err := r.run(ctx, &wg); err != nil {
					return err
				}
			}

			a.log.Info("serving checkout pages", "addr", a.cfg.ListenAddr, "mode", a.cfg.HandoffMode)
			err = handoff.Start(ctx, a.cfg.ListenAddr, surface.Routes())
			cancel()
			wg.Wait()
			return err
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", true, "reopen and keep polling orders the journal still has as pending")
	return cmd
}

// resumer picks up orders a previous run left pending. Each one only gets
// what is left of the poll budget since it was created.
type resumer struct {
	log     *slog.Logger
	surface *handoff.Surface
	journal journal.Journal
	notify  notify.Notifier
	src     poller.StatusSource
	opts    poller.Options
	now     func() time.Time
}

func newResumer(ctx context.Context, a *app, surface *handoff.Surface) (*resumer, error) {
	j, err := a.journal(ctx)
	if err != nil {
		return nil, err
	}
	src, err := a.statusSource()
	if err != nil {
		return nil, err
	}
	return &resumer{
		log:     a.log,
		surface: surface,
		journal: j,
		notify:  a.notifier(),
		src:     src,
		opts:    a.pollOptions(),
		now:     time.Now,
	}, nil
}

// run resolves every pending order whose budget is already spent and polls
// the rest, each in its own goroutine tracked by wg.
func (r *resumer) run(ctx context.Context, wg *sync.WaitGroup) error {
	es, err := r.journal.Pending(ctx)
	if err != nil {
		return err
	}
	for _, e := range es {
		o := order.Order{
			Code:        e.OrderCode,
			Amount:      e.Amount,
			CheckoutURL: e.CheckoutURL,
			Status:      e.Status,
			CourtID:     e.CourtID,
			Date:        e.BookingDate,
			SlotIDs:     e.SlotIDs,
			CreatedAt:   e.CreatedAt,
		}
		left := r.opts.Budget - r.now().Sub(e.CreatedAt)
		if left <= 0 || o.CheckoutURL == "" {
			o.Status = order.StatusExpired
			r.finish(ctx, o, e.Attempts)
			continue
		}
		h, err := r.surface.Open(o)
		if err != nil {
			r.log.Warn("resume failed", "order_code", o.Code, "err", err)
			continue
		}
		r.log.Info("resuming order", "order_code", o.Code, "url", h.URL(), "budget", left)

		opts := r.opts
		opts.Budget = left
		p := poller.New(r.src, opts)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer h.Close()
			r.watch(ctx, p, h, o)
		}()
	}
	return nil
}

func (r *resumer) watch(ctx context.Context, p *poller.Poller, h *handoff.Handoff, o order.Order) {
	hints := make(chan struct{}, 1)
	go func() {
		for range h.Signals() {
			select {
			case hints <- struct{}{}:
			default:
			}
		}
	}()

	on := func(st order.Status, out handoff.Outcome) func(poller.Result) {
		return func(res poller.Result) {
			h.Resolve(out)
			o.Status = st
			r.finish(ctx, o, res.Attempts)
		}
	}
	err := p.Watch(ctx, o.Code, hints, poller.Handlers{
		OnPaid:      on(order.StatusPaid, handoff.OutcomePaid),
		OnCancelled: on(order.StatusCancelled, handoff.OutcomeCancelled),
		OnExpired:   on(order.StatusExpired, handoff.OutcomeExpired),
	})
	if err != nil {
		r.log.Info("stopped watching order", "order_code", o.Code, "err", err)
	}
}

func (r *resumer) finish(ctx context.Context, o order.Order, attempts int) {
	if err := r.journal.Resolve(ctx, o.Code, o.Status, attempts); err != nil {
		r.log.Warn("journal resolve failed", "order_code", o.Code, "err", err)
	}
	if err := r.notify.Notify(ctx, notify.NewBookingResolved(o, attempts, r.now())); err != nil {
		r.log.Warn("publish outcome failed", "order_code", o.Code, "err", err)
	}
}
