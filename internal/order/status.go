package order

import (
	"context"
	"fmt"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/backend"
)

type StatusClient interface {
	BookingStatus(ctx context.Context, orderCode string) (backend.BookingStatus, error)
}

// BackendStatus reads order status from the booking backend, which mirrors
// the gateway's decision.
type BackendStatus struct {
	api StatusClient
}

func NewBackendStatus(api StatusClient) *BackendStatus { return &BackendStatus{api: api} }

func (b *BackendStatus) Status(ctx context.Context, code string) (Status, error) {
	bs, err := b.api.BookingStatus(ctx, code)
	if err != nil {
		return "", fmt.Errorf("booking status %s: %w", code, err)
	}
	return ParseStatus(bs.Status)
}
