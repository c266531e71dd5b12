package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/db"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/seal"
)

// Repo is the Postgres journal. Phone and email go through the sealer.
type Repo struct {
	db     *db.DB
	sealer *seal.Sealer
}

func NewRepo(d *db.DB, s *seal.Sealer) *Repo { return &Repo{db: d, sealer: s} }

const selectCols = `order_code,court_id,booking_date,slot_ids,customer_name,phone,email,amount,checkout_url,status,attempts,created_at,updated_at,resolved_at`

func (r *Repo) Record(ctx context.Context, e Entry) error {
	phone, err := r.sealer.Seal(e.Phone)
	if err != nil {
		return fmt.Errorf("seal phone: %w", err)
	}
	email, err := r.sealer.Seal(e.Email)
	if err != nil {
		return fmt.Errorf("seal email: %w", err)
	}
	status := e.Status
	if status == "" {
		status = order.StatusPending
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO orders(order_code,court_id,booking_date,slot_ids,customer_name,phone,email,amount,checkout_url,status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (order_code) DO NOTHING`,
		e.OrderCode, e.CourtID, e.BookingDate, joinIDs(e.SlotIDs), e.CustomerName, phone, email, e.Amount, e.CheckoutURL, string(status),
	)
	return db.WrapNotFound(err)
}

func (r *Repo) Resolve(ctx context.Context, code string, status order.Status, attempts int) error {
	n, err := r.db.Exec(ctx, `
UPDATE orders
SET status=$2, attempts=$3, updated_at=now(),
    resolved_at=CASE WHEN $4::boolean THEN now() ELSE resolved_at END
WHERE order_code=$1`, code, string(status), attempts, status.Terminal())
	if err != nil {
		return db.WrapNotFound(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, code string) (Entry, error) {
	e, err := r.scan(r.db.QueryRow(ctx, `SELECT `+selectCols+` FROM orders WHERE order_code=$1`, code))
	if db.IsNotFound(err) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (r *Repo) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx, `SELECT `+selectCols+` FROM orders ORDER BY created_at DESC, order_code DESC LIMIT $1`, limit)
}

func (r *Repo) Pending(ctx context.Context) ([]Entry, error) {
	return r.query(ctx, `SELECT `+selectCols+` FROM orders WHERE status=$1 ORDER BY created_at, order_code`, string(order.StatusPending))
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) scan(row db.Row) (Entry, error) {
	var e Entry
	var slotIDs, status string
	var resolved *time.Time
	if err := row.Scan(&e.OrderCode, &e.CourtID, &e.BookingDate, &slotIDs, &e.CustomerName, &e.Phone, &e.Email,
		&e.Amount, &e.CheckoutURL, &status, &e.Attempts, &e.CreatedAt, &e.UpdatedAt, &resolved); err != nil {
		return Entry{}, db.WrapNotFound(err)
	}
	var err error
	if e.Phone, err = r.sealer.Open(e.Phone); err != nil {
		return Entry{}, fmt.Errorf("open phone for %s: %w", e.OrderCode, err)
	}
	if e.Email, err = r.sealer.Open(e.Email); err != nil {
		return Entry{}, fmt.Errorf("open email for %s: %w", e.OrderCode, err)
	}
	e.SlotIDs = splitIDs(slotIDs)
	e.Status = order.Status(status)
	e.ResolvedAt = resolved
	return e, nil
}
