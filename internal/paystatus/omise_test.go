package paystatus

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/omise/omise-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

func TestFromCharge(t *testing.T) {
	charge := func(status string) *omise.Charge {
		return &omise.Charge{Status: omise.ChargeStatus(status)}
	}
	for in, want := range map[string]order.Status{
		"successful": order.StatusPaid,
		"failed":     order.StatusCancelled,
		"reversed":   order.StatusCancelled,
		"expired":    order.StatusExpired,
		"pending":    order.StatusPending,
	} {
		got, err := FromCharge(charge(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := FromCharge(charge("unknown"))
	assert.Error(t, err)
}

func TestStatusMapsOrderCodeToCharge(t *testing.T) {
	var asked string
	src := NewOmiseWith(func(_ context.Context, id string) (*omise.Charge, error) {
		asked = id
		ch := &omise.Charge{}
		ch.Status = "successful"
		return ch, nil
	}, func(code string) string { return "chrg_" + code })

	st, err := src.Status(context.Background(), "PB123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, st)
	assert.Equal(t, "chrg_PB123", asked)
}

func TestStatusErrors(t *testing.T) {
	boom := errors.New("503")
	src := NewOmiseWith(func(context.Context, string) (*omise.Charge, error) { return nil, boom }, nil)
	_, err := src.Status(context.Background(), "PB123")
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Status(ctx, "PB123")
	assert.ErrorIs(t, err, context.Canceled)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHungGatewayRequestEndsWithContext(t *testing.T) {
	c, err := NewOmiseClient("pkey_test_5xyz", "skey_test_5xyz")
	require.NoError(t, err)
	var path string
	c.Client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		path = r.URL.Path
		<-r.Context().Done()
		return nil, r.Context().Err()
	})}
	src := NewOmise(c, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := src.Status(ctx, "chrg_test_PB123")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, "/charges/chrg_test_PB123", path)
	case <-time.After(2 * time.Second):
		t.Fatal("retrieve ignored the context")
	}
}

func TestNewOmiseClientRejectsBadKeys(t *testing.T) {
	_, err := NewOmiseClient("nope", "skey_test_5xyz")
	assert.ErrorIs(t, err, omise.ErrInvalidKey)
}
