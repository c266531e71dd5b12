package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/obs"
)

const dateLayout = "2006-01-02"

// Client talks to the booking backend's REST API. It sends the bearer token
// captured by the identity subsystem and never retries on its own.
type Client struct {
	base   string
	hc     *http.Client
	token  string
	now    func() time.Time
	tracer trace.Tracer
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewWithHTTPClient(baseURL, token, &http.Client{Timeout: timeout})
}

func NewWithHTTPClient(baseURL, token string, hc *http.Client) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		hc:     hc,
		token:  token,
		now:    time.Now,
		tracer: obs.Tracer("backend"),
	}
}

func (c *Client) TimeSlots(ctx context.Context) ([]TimeSlot, error) {
	var out []TimeSlot
	if err := c.getJSON(ctx, "/api/timeslots", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AvailableTimeSlots(ctx context.Context, courtID string, date time.Time) ([]TimeSlot, error) {
	q := url.Values{}
	q.Set("courtId", courtID)
	q.Set("date", date.Format(dateLayout))
	var out []TimeSlot
	if err := c.getJSON(ctx, "/api/timeslots/available", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Partners(ctx context.Context) ([]Partner, error) {
	var out []Partner
	if err := c.getJSON(ctx, "/api/partners", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Courts(ctx context.Context, partnerID string, date time.Time) ([]Court, error) {
	q := url.Values{}
	q.Set("partnerId", partnerID)
	q.Set("date", date.Format(dateLayout))
	var out []Court
	if err := c.getJSON(ctx, "/api/courts", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePayment creates a pending booking plus a payment intent. The
// idempotency key lets the backend collapse a retried click into one order.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest, idempotencyKey string) (CreatePaymentResponse, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return CreatePaymentResponse{}, err
	}
	hdr := http.Header{}
	if idempotencyKey != "" {
		hdr.Set("Idempotency-Key", idempotencyKey)
	}
	status, body, err := c.do(ctx, http.MethodPost, "/api/payments", nil, b, hdr)
	if err != nil {
		return CreatePaymentResponse{}, err
	}
	var out CreatePaymentResponse
	if err := decode(status, body, &out); err != nil {
		return CreatePaymentResponse{}, err
	}
	return out, nil
}

func (c *Client) BookingStatus(ctx context.Context, orderCode string) (BookingStatus, error) {
	var out BookingStatus
	if err := c.getJSON(ctx, "/api/bookings/status/"+url.PathEscape(orderCode), nil, &out); err != nil {
		return BookingStatus{}, err
	}
	if out.OrderCode == "" {
		out.OrderCode = ID(orderCode)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return err
	}
	return decode(status, body, dst)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, hdr http.Header) (int, []byte, error) {
	if tokenExpired(c.token, c.now()) {
		return 0, nil, ErrTokenExpired
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("authorization", "Bearer "+c.token)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.hc.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return 0, nil, err
	}
	defer res.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	if res.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(res.StatusCode))
	}
	return res.StatusCode, b, nil
}

// decode unwraps the {"success","message","data"} envelope. Non-2xx answers
// and success=false become *APIError carrying the backend message.
func decode(status int, body []byte, dst any) error {
	var env envelope
	envErr := json.Unmarshal(body, &env)

	if status < 200 || status >= 300 {
		msg := ""
		if envErr == nil {
			msg = env.Message
		}
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return &APIError{Status: status, Message: msg}
	}
	if envErr != nil {
		return fmt.Errorf("decode response: %w", envErr)
	}
	if env.Success != nil && !*env.Success {
		return &APIError{Status: status, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
