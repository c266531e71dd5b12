package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/backend"
)

type statusClient map[string]backend.BookingStatus

func (c statusClient) BookingStatus(_ context.Context, code string) (backend.BookingStatus, error) {
	bs, ok := c[code]
	if !ok {
		return backend.BookingStatus{}, &backend.APIError{Status: 404, Message: "Booking not found"}
	}
	return bs, nil
}

func TestBackendStatus(t *testing.T) {
	src := NewBackendStatus(statusClient{
		"PB123": {OrderCode: "PB123", Status: "PAID"},
		"PB7":   {OrderCode: "PB7", Status: "on-hold"},
	})

	st, err := src.Status(context.Background(), "PB123")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, st)

	_, err = src.Status(context.Background(), "PB7")
	assert.Error(t, err)

	_, err = src.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}
