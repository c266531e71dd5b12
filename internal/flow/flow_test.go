package flow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/catalog"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/draft"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/handoff"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/journal"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/logger"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/notify"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/poller"
)

type stubOrders struct {
	o     order.Order
	err   error
	calls int
}

func (s *stubOrders) Submit(ctx context.Context, snap draft.Snapshot) (order.Order, error) {
	s.calls++
	if err := order.Validate(snap); err != nil {
		return order.Order{}, err
	}
	return s.o, s.err
}

type recorder struct {
	mu     sync.Mutex
	events []notify.BookingResolved
}

func (r *recorder) Notify(_ context.Context, ev notify.BookingResolved) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Event)
	}
	return out
}

// statuses answers from the list in order and then repeats the last answer.
func statuses(seq ...order.Status) (poller.StatusFunc, *atomic.Int32) {
	var n atomic.Int32
	return func(context.Context, string) (order.Status, error) {
		i := int(n.Add(1)) - 1
		if i >= len(seq) {
			i = len(seq) - 1
		}
		return seq[i], nil
	}, &n
}

var pb123 = order.Order{
	Code:        "PB123",
	Amount:      240000,
	CheckoutURL: "https://pay.example/web/PB123",
	Status:      order.StatusPending,
	CourtID:     "C1",
	Date:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	SlotIDs:     []string{"S1", "S2"},
}

func fullDraft(t *testing.T) *draft.Draft {
	t.Helper()
	d := draft.New()
	d.SetPartner(catalog.Partner{ID: "P1", Name: "Pickle Hub"})
	d.SetDate(pb123.Date)
	d.SetCourt(catalog.Court{ID: "C1", PartnerID: "P1", Name: "Court 1", PricePerHour: 120000})
	require.NoError(t, d.SetSlots([]catalog.TimeSlot{
		{ID: "S1", Start: 9 * 60, End: 10 * 60},
		{ID: "S2", Start: 10 * 60, End: 11 * 60},
	}))
	d.SetCustomer(draft.Customer{Name: "A", Phone: "0900000000", Email: "a@x.com"})
	return d
}

type harness struct {
	flow    *Flow
	surface *handoff.Surface
	journal *journal.Memory
	events  *recorder
}

func newHarness(t *testing.T, src poller.StatusSource, budget time.Duration) *harness {
	surface := handoff.New(handoff.Options{
		BaseURL:  "http://localhost:8090",
		HashKey:  securecookie.GenerateRandomKey(32),
		BlockKey: securecookie.GenerateRandomKey(32),
		Logger:   logger.Discard(),
	})
	h := &harness{surface: surface, journal: journal.NewMemory(), events: &recorder{}}
	h.flow = &Flow{
		Orders:   &stubOrders{o: pb123},
		Surface:  surface,
		Poller:   poller.New(src, poller.Options{Budget: budget, Interval: 5 * time.Millisecond, Logger: logger.Discard()}),
		Journal:  h.journal,
		Notifier: h.events,
		Logger:   logger.Discard(),
	}
	return h
}

// browse plays the user's browser against the handoff pages.
func (h *harness) browse(t *testing.T, pageURL string, then string) {
	routes := h.surface.Routes()
	u, err := url.Parse(pageURL)
	if !assert.NoError(t, err) {
		return
	}
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.Path, nil))
	cookies := rec.Result().Cookies()

	method := http.MethodGet
	if then == u.Path+"/exit" {
		method = http.MethodPost
	}
	req := httptest.NewRequest(method, then, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestCheckoutPaid(t *testing.T) {
	src, calls := statuses(order.StatusPending, order.StatusPaid)
	h := newHarness(t, src, time.Minute)
	h.flow.ReceiptDir = t.TempDir()
	var opened string
	h.flow.OnOpen = func(u string) { opened = u }
	d := fullDraft(t)

	out, err := h.flow.Checkout(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, ScreenPaid, out.Screen)
	assert.Equal(t, poller.Paid, out.Result.Outcome)
	assert.Equal(t, order.StatusPaid, out.Order.Status)
	assert.Equal(t, "http://localhost:8090/checkout/PB123", opened)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))

	assert.Equal(t, draft.Snapshot{}, d.Snapshot(), "paid resets the draft")

	e, err := h.journal.Get(context.Background(), "PB123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, e.Status)
	assert.Equal(t, "a@x.com", e.Email)
	assert.Equal(t, []string{"booking.paid"}, h.events.keys())

	require.NotEmpty(t, out.ReceiptPath)
	_, err = os.Stat(out.ReceiptPath)
	assert.NoError(t, err)
}

func TestCheckoutExpiredKeepsDraft(t *testing.T) {
	src, _ := statuses(order.StatusPending)
	h := newHarness(t, src, 20*time.Millisecond)
	d := fullDraft(t)
	before := d.Snapshot()

	out, err := h.flow.Checkout(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, ScreenExpired, out.Screen)
	assert.Equal(t, before, d.Snapshot())
	assert.Empty(t, out.ReceiptPath)
	assert.Equal(t, []string{"booking.expired"}, h.events.keys())
}

func TestCheckoutGatewayCancelled(t *testing.T) {
	src, _ := statuses(order.StatusCancelled)
	h := newHarness(t, src, time.Minute)
	d := fullDraft(t)

	out, err := h.flow.Checkout(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, ScreenCancelled, out.Screen)
	assert.NotEqual(t, draft.Snapshot{}, d.Snapshot())

	e, err := h.journal.Get(context.Background(), "PB123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, e.Status)
}

func TestUserCancelReturnsToCustomerInfo(t *testing.T) {
	src, _ := statuses(order.StatusPending)
	h := newHarness(t, src, time.Minute)
	h.flow.OnOpen = func(u string) {
		go h.browse(t, u, "/payment/return?orderCode=PB123&cancel=true")
	}
	d := fullDraft(t)
	before := d.Snapshot()

	out, err := h.flow.Checkout(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, ScreenBackToCustomerInfo, out.Screen)
	assert.Equal(t, before, d.Snapshot())
	assert.Equal(t, []string{"booking.cancelled"}, h.events.keys())
}

func TestUserExitReturnsToCustomerInfo(t *testing.T) {
	src, _ := statuses(order.StatusPending)
	h := newHarness(t, src, time.Minute)
	h.flow.OnOpen = func(u string) {
		go h.browse(t, u, "/checkout/PB123/exit")
	}
	d := fullDraft(t)

	out, err := h.flow.Checkout(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, ScreenBackToCustomerInfo, out.Screen)
	assert.Empty(t, h.events.keys())

	e, err := h.journal.Get(context.Background(), "PB123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, e.Status)
}

func TestSuccessReturnIsOnlyAHint(t *testing.T) {
	src, _ := statuses(order.StatusPending, order.StatusPending, order.StatusPaid)
	h := newHarness(t, src, time.Minute)
	h.flow.OnOpen = func(u string) {
		go h.browse(t, u, "/payment/return?orderCode=PB123&status=PAID")
	}

	out, err := h.flow.Checkout(context.Background(), fullDraft(t))
	require.NoError(t, err)
	assert.Equal(t, ScreenPaid, out.Screen)
	assert.GreaterOrEqual(t, out.Result.Attempts, 3)
}

func TestValidationErrorStopsBeforeHandoff(t *testing.T) {
	src, calls := statuses(order.StatusPaid)
	h := newHarness(t, src, time.Minute)
	opened := false
	h.flow.OnOpen = func(string) { opened = true }
	d := fullDraft(t)
	d.SetCustomer(draft.Customer{Name: "A"})

	_, err := h.flow.Checkout(context.Background(), d)
	assert.ErrorIs(t, err, order.ErrValidation)
	assert.False(t, opened)
	assert.Zero(t, calls.Load())
	assert.Equal(t, "A", d.Snapshot().Customer.Name)
}

func TestCallerCancelReturnsContextError(t *testing.T) {
	src, _ := statuses(order.StatusPending)
	h := newHarness(t, src, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	h.flow.OnOpen = func(string) {
		time.AfterFunc(20*time.Millisecond, cancel)
	}

	out, err := h.flow.Checkout(ctx, fullDraft(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "PB123", out.Order.Code)
	assert.Empty(t, h.events.keys())
}

func TestBackendRejectionIsVerbatimAndKeepsDraft(t *testing.T) {
	src, calls := statuses(order.StatusPaid)
	h := newHarness(t, src, time.Minute)
	h.flow.Orders = &stubOrders{err: &order.RejectedError{Status: 409, Message: "Khung giờ 09:00 - 10:00 đã có người đặt"}}
	opened := false
	h.flow.OnOpen = func(string) { opened = true }
	d := fullDraft(t)
	before := d.Snapshot()

	_, err := h.flow.Checkout(context.Background(), d)
	var rej *order.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Khung giờ 09:00 - 10:00 đã có người đặt", rej.Message)
	assert.Equal(t, before, d.Snapshot())
	assert.False(t, opened)
	assert.Zero(t, calls.Load())
	list, err := h.journal.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReceiptStaysInsideReceiptDir(t *testing.T) {
	src, _ := statuses(order.StatusPaid)
	h := newHarness(t, src, time.Minute)
	evil := pb123
	evil.Code = "../escaped"
	h.flow.Orders = &stubOrders{o: evil}
	root := t.TempDir()
	h.flow.ReceiptDir = filepath.Join(root, "receipts")

	out, err := h.flow.Checkout(context.Background(), fullDraft(t))
	require.NoError(t, err)
	assert.Equal(t, ScreenPaid, out.Screen)
	assert.Empty(t, out.ReceiptPath)
	_, err = os.Stat(filepath.Join(root, "escaped.pdf"))
	assert.True(t, os.IsNotExist(err))
}
