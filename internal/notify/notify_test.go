package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

func TestBookingResolvedPayload(t *testing.T) {
	o := order.Order{
		Code:    "PB123",
		Amount:  240000,
		Status:  order.StatusPaid,
		CourtID: "C1",
		Date:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		SlotIDs: []string{"S1", "S2"},
	}
	ev := NewBookingResolved(o, 3, time.Date(2024, 6, 1, 9, 30, 0, 0, time.FixedZone("ICT", 7*3600)))
	assert.Equal(t, "booking.paid", ev.Event)

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event": "booking.paid",
		"version": 1,
		"occurred_at": "2024-06-01T02:30:00Z",
		"data": {
			"order_code": "PB123",
			"status": "paid",
			"amount": 240000,
			"court_id": "C1",
			"booking_date": "2024-06-01",
			"slot_ids": ["S1", "S2"],
			"attempts": 3
		}
	}`, string(b))
}

func TestRoutingKeys(t *testing.T) {
	assert.Equal(t, "booking.cancelled", RoutingKey(order.StatusCancelled))
	assert.Equal(t, "booking.expired", RoutingKey(order.StatusExpired))
}
