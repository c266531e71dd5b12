// Package notify publishes booking outcomes to a RabbitMQ topic exchange.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

// BookingResolved is published once per order when it reaches a terminal
// status. The routing key is "booking.<status>".
type BookingResolved struct {
	Event      string `json:"event"`
	Version    int    `json:"version"`
	OccurredAt string `json:"occurred_at"`
	Data       struct {
		OrderCode   string   `json:"order_code"`
		Status      string   `json:"status"`
		Amount      int64    `json:"amount"`
		CourtID     string   `json:"court_id"`
		BookingDate string   `json:"booking_date"`
		SlotIDs     []string `json:"slot_ids"`
		Attempts    int      `json:"attempts"`
	} `json:"data"`
}

func NewBookingResolved(o order.Order, attempts int, at time.Time) BookingResolved {
	var ev BookingResolved
	ev.Event = RoutingKey(o.Status)
	ev.Version = 1
	ev.OccurredAt = at.UTC().Format(time.RFC3339)
	ev.Data.OrderCode = o.Code
	ev.Data.Status = string(o.Status)
	ev.Data.Amount = o.Amount
	ev.Data.CourtID = o.CourtID
	if !o.Date.IsZero() {
		ev.Data.BookingDate = o.Date.Format("2006-01-02")
	}
	ev.Data.SlotIDs = o.SlotIDs
	ev.Data.Attempts = attempts
	return ev
}

func RoutingKey(s order.Status) string { return "booking." + string(s) }

type Notifier interface {
	Notify(ctx context.Context, ev BookingResolved) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, BookingResolved) error { return nil }

type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Notify(ctx context.Context, ev BookingResolved) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, ev.Event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.Data.OrderCode + ":" + ev.Data.Status,
		Timestamp:    time.Now().UTC(),
		Body:         b,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
