// Package poller resolves an order to a terminal outcome by asking a status
// source on a fixed interval until the budget runs out.
package poller

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/logger"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/obs"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

const (
	DefaultBudget   = 300 * time.Second
	DefaultInterval = 3 * time.Second
)

type Outcome string

const (
	Paid      Outcome = "paid"
	Cancelled Outcome = "cancelled"
	Expired   Outcome = "expired"
)

type StatusSource interface {
	Status(ctx context.Context, orderCode string) (order.Status, error)
}

// StatusFunc adapts a plain function to StatusSource.
type StatusFunc func(ctx context.Context, orderCode string) (order.Status, error)

func (f StatusFunc) Status(ctx context.Context, orderCode string) (order.Status, error) {
	return f(ctx, orderCode)
}

type Options struct {
	Budget        time.Duration
	Interval      time.Duration
	CountdownStep time.Duration // defaults to Interval
	CheckTimeout  time.Duration // per status request; defaults to Interval

	// Progress is called with the remaining budget after every countdown step.
	Progress func(remaining time.Duration)

	Clock  Clock
	Logger *slog.Logger
}

type Result struct {
	Outcome    Outcome
	LastStatus order.Status
	Attempts   int
	Remaining  time.Duration
}

type Poller struct {
	src    StatusSource
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer
}

func New(src StatusSource, opts Options) *Poller {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CountdownStep <= 0 {
		opts.CountdownStep = opts.Interval
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = opts.Interval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	l := opts.Logger
	if l == nil {
		l = logger.Log
	}
	return &Poller{
		src:    src,
		opts:   opts,
		log:    l.With("component", "poller"),
		tracer: obs.Tracer("poller"),
	}
}

// Poll checks once immediately and then on every interval tick until the
// source reports a terminal status or the budget runs out. A receive on hints
// triggers an extra check right away. Checks run off the loop, one at a time,
// so a slow status source never holds back the countdown. Cancelling ctx
// stops polling and returns ctx.Err() with no outcome.
func (p *Poller) Poll(ctx context.Context, code string, hints <-chan struct{}) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "poll", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()
	ctx, abandon := context.WithCancel(ctx)
	defer abandon()

	deadline := p.opts.Clock.Now().Add(p.opts.Budget)
	check := p.opts.Clock.NewTicker(p.opts.Interval)
	defer check.Stop()
	countdown := p.opts.Clock.NewTicker(p.opts.CountdownStep)
	defer countdown.Stop()

	res := Result{LastStatus: order.StatusPending, Remaining: p.opts.Budget}
	log := p.log.With("order_code", code)
	log.Info("polling started", "budget", p.opts.Budget, "interval", p.opts.Interval)

	finish := func() (Result, error) {
		span.SetAttributes(attribute.Int("poll.attempts", res.Attempts), attribute.String("poll.outcome", string(res.Outcome)))
		log.Info("polling finished", "outcome", res.Outcome, "attempts", res.Attempts, "remaining", res.Remaining)
		return res, nil
	}
	stopped := func() (Result, error) {
		log.Info("polling stopped", "attempts", res.Attempts, "err", ctx.Err())
		return res, ctx.Err()
	}

	// done has room for the single check that may be in flight, so an
	// abandoned check never blocks its goroutine.
	done := make(chan checked, 1)
	inFlight, queued := false, false
	launch := func() {
		if inFlight {
			queued = true
			return
		}
		inFlight = true
		res.Attempts++
		go p.check(ctx, code, done)
	}

	launch()
	for {
		select {
		case <-ctx.Done():
			return stopped()

		case <-countdown.C():
			if p.step(&res, deadline) {
				return finish()
			}

		case <-check.C():
			// a due countdown step is applied before the check
			select {
			case <-countdown.C():
				if p.step(&res, deadline) {
					return finish()
				}
			default:
			}
			launch()

		case _, ok := <-hints:
			if !ok {
				hints = nil
				continue
			}
			log.Debug("hint received, checking now")
			launch()

		case c := <-done:
			inFlight = false
			if ctx.Err() != nil {
				return stopped()
			}
			if p.apply(log, c, &res) {
				return finish()
			}
			if queued {
				queued = false
				launch()
			}
		}
	}
}

// step advances the countdown and reports whether the budget is spent. The
// remaining budget never exceeds what is left until deadline, so ticks that
// arrive late or not at all cannot stretch it.
func (p *Poller) step(res *Result, deadline time.Time) bool {
	res.Remaining -= p.opts.CountdownStep
	if left := deadline.Sub(p.opts.Clock.Now()); left < res.Remaining {
		res.Remaining = left
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if p.opts.Progress != nil {
		p.opts.Progress(res.Remaining)
	}
	if res.Remaining == 0 {
		res.Outcome = Expired
		return true
	}
	return false
}

type checked struct {
	st  order.Status
	err error
}

func (p *Poller) check(ctx context.Context, code string, done chan<- checked) {
	cctx, cancel := context.WithTimeout(ctx, p.opts.CheckTimeout)
	defer cancel()
	st, err := p.src.Status(cctx, code)
	done <- checked{st: st, err: err}
}

// apply records one check result and reports whether it is terminal.
func (p *Poller) apply(log *slog.Logger, c checked, res *Result) bool {
	if c.err != nil {
		log.Warn("status check failed", "attempt", res.Attempts, "err", c.err)
		return false
	}
	res.LastStatus = c.st
	switch c.st {
	case order.StatusPaid:
		res.Outcome = Paid
	case order.StatusCancelled:
		res.Outcome = Cancelled
	case order.StatusExpired:
		res.Outcome = Expired
	default:
		log.Debug("order still pending", "attempt", res.Attempts)
		return false
	}
	return true
}

type Handlers struct {
	OnPaid      func(Result)
	OnCancelled func(Result)
	OnExpired   func(Result)
}

// Watch is Poll in callback form. Exactly one handler runs when polling
// resolves; none runs when ctx is cancelled first.
func (p *Poller) Watch(ctx context.Context, code string, hints <-chan struct{}, h Handlers) error {
	res, err := p.Poll(ctx, code, hints)
	if err != nil {
		return err
	}
	var fn func(Result)
	switch res.Outcome {
	case Paid:
		fn = h.OnPaid
	case Cancelled:
		fn = h.OnCancelled
	case Expired:
		fn = h.OnExpired
	}
	if fn != nil {
		fn(res)
	}
	return nil
}
