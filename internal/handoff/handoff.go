// Package handoff hosts the local pages that hand the user over to the
// payment gateway's checkout and turns the browser's return into signals.
package handoff

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/logger"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

var (
	ErrMissingCheckoutURL = errors.New("order has no checkout url")
	ErrAlreadyOpen        = errors.New("checkout already open for this order")
)

type Mode string

const (
	ModeEmbed    Mode = "embed"
	ModeRedirect Mode = "redirect"
)

// Sandbox is the iframe sandbox the embedded checkout runs under.
const Sandbox = "allow-scripts allow-same-origin allow-forms allow-popups allow-top-navigation"

type SignalKind string

const (
	SignalSuccess SignalKind = "success" // a hint only; the status source decides
	SignalCancel  SignalKind = "cancel"
	SignalExit    SignalKind = "exit"
)

type Signal struct {
	Kind      SignalKind
	OrderCode string
}

// Outcome is what the result page shows for an order.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomePaid      Outcome = "paid"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	OutcomeExited    Outcome = "exited"
)

type Options struct {
	Mode     Mode
	BaseURL  string
	HashKey  []byte
	BlockKey []byte
	Logger   *slog.Logger

	// CookieMaxAge bounds how long a browser stays bound to its checkout.
	CookieMaxAge time.Duration
	// Retain is how long a closed handoff keeps serving its result page
	// before it is forgotten.
	Retain time.Duration
}

// Surface tracks the open handoffs and serves their pages.
type Surface struct {
	mode     Mode
	baseURL  string
	sessions *Sessions
	log      *slog.Logger
	retain   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	handoffs map[string]*Handoff
}

func New(opts Options) *Surface {
	if opts.Mode == "" {
		opts.Mode = ModeEmbed
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = time.Hour
	}
	if opts.Retain <= 0 {
		opts.Retain = 15 * time.Minute
	}
	l := opts.Logger
	if l == nil {
		l = logger.Log
	}
	return &Surface{
		mode:     opts.Mode,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		sessions: NewSessions(opts.HashKey, opts.BlockKey, opts.CookieMaxAge),
		log:      l.With("component", "handoff"),
		retain:   opts.Retain,
		now:      time.Now,
		handoffs: map[string]*Handoff{},
	}
}

// ReturnURL and CancelURL are what the gateway redirects the browser to.
func (s *Surface) ReturnURL() string { return s.baseURL + "/payment/return" }
func (s *Surface) CancelURL() string { return s.baseURL + "/payment/cancel" }

// Open registers o and returns the handoff whose page the user should visit.
func (s *Surface) Open(o order.Order) (*Handoff, error) {
	if strings.TrimSpace(o.CheckoutURL) == "" {
		return nil, ErrMissingCheckoutURL
	}
	if _, err := url.ParseRequestURI(o.CheckoutURL); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	if h, ok := s.handoffs[o.Code]; ok && !h.isClosed() {
		return nil, ErrAlreadyOpen
	}
	h := &Handoff{
		order:   o,
		url:     s.baseURL + "/checkout/" + url.PathEscape(o.Code),
		signals: make(chan Signal, 4),
		outcome: OutcomePending,
		log:     s.log.With("order_code", o.Code),
		now:     s.now,
	}
	s.handoffs[o.Code] = h
	h.log.Info("checkout opened", "mode", s.mode)
	return h, nil
}

func (s *Surface) lookup(code string) (*Handoff, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	h, ok := s.handoffs[code]
	return h, ok
}

// prune forgets handoffs closed longer than the retention window. Callers
// hold s.mu.
func (s *Surface) prune() {
	cutoff := s.now().Add(-s.retain)
	for code, h := range s.handoffs {
		if h.closedBefore(cutoff) {
			delete(s.handoffs, code)
		}
	}
}

// Handoff is one order's trip through the hosted checkout.
type Handoff struct {
	order order.Order
	url   string
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	signals  chan Signal
	closed   bool
	closedAt time.Time
	outcome  Outcome
}

func (h *Handoff) Order() order.Order { return h.order }

// URL is the local page that shows (or redirects to) the checkout.
func (h *Handoff) URL() string { return h.url }

// Signals delivers browser events. It is closed by Close.
func (h *Handoff) Signals() <-chan Signal { return h.signals }

// Resolve records the outcome the result page shows.
func (h *Handoff) Resolve(o Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcome = o
}

func (h *Handoff) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Close stops signal delivery. The result page keeps working.
func (h *Handoff) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.closedAt = h.now()
	close(h.signals)
}

func (h *Handoff) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handoff) closedBefore(t time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed && h.closedAt.Before(t)
}

// emit drops the signal when the handoff is closed or nobody is draining it.
func (h *Handoff) emit(kind SignalKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.signals <- Signal{Kind: kind, OrderCode: h.order.Code}:
		h.log.Info("signal", "kind", kind)
		return true
	default:
		h.log.Warn("signal dropped", "kind", kind)
		return false
	}
}
