package handoff

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

//go:embed templates/*.html
var fs embed.FS

type pageData struct {
	Title   string
	Code    string
	Amount  int64
	URL     string
	Sandbox string
	Outcome Outcome
	Flash   string
	Retry   string
}

func (s *Surface) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/payment/return", s.handleReturn)
	r.Get("/payment/cancel", s.handleCancel)

	r.Route("/checkout/{code}", func(r chi.Router) {
		r.Get("/", s.handleCheckout)
		r.Post("/exit", s.handleExit)
		r.Get("/result", s.handleResult)
	})
	return r
}

func (s *Surface) handleCheckout(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h, ok := s.lookup(code)
	if !ok {
		s.renderError(w, http.StatusNotFound, "We could not find this payment. It may have expired.", r.URL.Path)
		return
	}
	if err := s.sessions.Bind(w, r, code); err != nil {
		s.log.Error("bind checkout cookie", "order_code", code, "err", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start the payment. Please try again.", r.URL.Path)
		return
	}
	o := h.Order()
	if s.mode == ModeRedirect {
		http.Redirect(w, r, o.CheckoutURL, http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "templates/checkout.html", pageData{
		Title:   "Payment",
		Code:    o.Code,
		Amount:  o.Amount,
		URL:     o.CheckoutURL,
		Sandbox: Sandbox,
	})
}

// handleReturn is the gateway's return URL. The gateway reports a cancel with
// cancel=true or status=CANCELLED; anything else is only a success hint.
func (s *Surface) handleReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := SignalSuccess
	if strings.EqualFold(q.Get("cancel"), "true") || strings.EqualFold(q.Get("status"), "CANCELLED") {
		kind = SignalCancel
	}
	s.signalFromGateway(w, r, kind)
}

func (s *Surface) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.signalFromGateway(w, r, SignalCancel)
}

func (s *Surface) signalFromGateway(w http.ResponseWriter, r *http.Request, kind SignalKind) {
	bound, ok := s.sessions.Bound(r)
	if !ok {
		s.renderError(w, http.StatusForbidden, "This payment was started in another browser.", "")
		return
	}
	code := r.URL.Query().Get("orderCode")
	if code == "" {
		code = bound
	}
	if code != bound {
		s.log.Warn("order code mismatch on return", "bound", bound, "got", code)
		s.renderError(w, http.StatusForbidden, "This payment was started in another browser.", "")
		return
	}
	s.deliver(w, r, code, kind)
}

func (s *Surface) handleExit(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if bound, ok := s.sessions.Bound(r); !ok || bound != code {
		s.renderError(w, http.StatusForbidden, "This payment was started in another browser.", "")
		return
	}
	s.deliver(w, r, code, SignalExit)
}

func (s *Surface) deliver(w http.ResponseWriter, r *http.Request, code string, kind SignalKind) {
	h, ok := s.lookup(code)
	if !ok {
		s.renderError(w, http.StatusNotFound, "We could not find this payment. It may have expired.", "")
		return
	}
	h.emit(kind)
	if kind == SignalExit {
		h.Resolve(OutcomeExited)
	}
	http.Redirect(w, r, resultPath(code), http.StatusSeeOther)
}

func (s *Surface) handleResult(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h, ok := s.lookup(code)
	if !ok {
		s.renderError(w, http.StatusNotFound, "We could not find this payment. It may have expired.", r.URL.Path)
		return
	}
	out := h.Outcome()
	if out != OutcomePending {
		s.sessions.Clear(w)
	}
	s.render(w, http.StatusOK, "templates/result.html", pageData{
		Title:   resultTitle[out],
		Code:    code,
		Amount:  h.Order().Amount,
		Outcome: out,
	})
}

var resultTitle = map[Outcome]string{
	OutcomePending:   "Waiting for payment",
	OutcomePaid:      "Booking confirmed",
	OutcomeCancelled: "Payment cancelled",
	OutcomeExpired:   "Payment timed out",
	OutcomeExited:    "Payment closed",
}

func resultPath(code string) string {
	return "/checkout/" + url.PathEscape(code) + "/result"
}

func (s *Surface) renderError(w http.ResponseWriter, status int, msg, retry string) {
	s.render(w, status, "templates/error.html", pageData{Title: "Payment problem", Flash: msg, Retry: retry})
}

func (s *Surface) render(w http.ResponseWriter, status int, name string, data pageData) {
	t, err := template.ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.log.Error("render", "template", name, "err", err)
	}
}

func (s *Surface) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}

// Start listens on addr and serves h until ctx is cancelled.
func Start(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, h)
}

// Serve serves h on an already bound listener until ctx is cancelled. Binding
// first lets a caller find out the address is taken before it creates orders
// that point at it.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
