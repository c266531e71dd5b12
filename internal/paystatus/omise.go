// Package paystatus asks the payment gateway directly for an order's charge
// status, for deployments where the backend does not mirror it promptly.
package paystatus

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

// RetrieveFunc fetches one charge by id. It must give up when ctx is done.
type RetrieveFunc func(ctx context.Context, chargeID string) (*omise.Charge, error)

type Omise struct {
	retrieve RetrieveFunc
	chargeID func(orderCode string) string
}

func NewOmiseClient(pub, sec string) (*omise.Client, error) {
	return omise.NewClient(pub, sec)
}

// NewOmise uses the order code as the charge id unless chargeID maps it.
// Each retrieve runs on a copy of c bound to the caller's ctx, so a hung
// gateway request ends with the check.
func NewOmise(c *omise.Client, chargeID func(orderCode string) string) *Omise {
	return NewOmiseWith(func(ctx context.Context, id string) (*omise.Charge, error) {
		call := *c
		call.WithContext(ctx)
		ch := &omise.Charge{}
		if err := call.Do(ch, &operations.RetrieveCharge{ChargeID: id}); err != nil {
			return nil, err
		}
		return ch, nil
	}, chargeID)
}

func NewOmiseWith(retrieve RetrieveFunc, chargeID func(string) string) *Omise {
	if chargeID == nil {
		chargeID = func(code string) string { return code }
	}
	return &Omise{retrieve: retrieve, chargeID: chargeID}
}

func (o *Omise) Status(ctx context.Context, orderCode string) (order.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := o.chargeID(orderCode)
	ch, err := o.retrieve(ctx, id)
	if err != nil {
		return "", fmt.Errorf("retrieve charge %s: %w", id, err)
	}
	return FromCharge(ch)
}

// FromCharge maps an omise charge status onto the order lifecycle.
func FromCharge(ch *omise.Charge) (order.Status, error) {
	switch string(ch.Status) {
	case "successful":
		return order.StatusPaid, nil
	case "failed", "reversed":
		return order.StatusCancelled, nil
	case "expired":
		return order.StatusExpired, nil
	case "pending":
		return order.StatusPending, nil
	}
	return "", fmt.Errorf("charge %s: unexpected status %q", ch.ID, ch.Status)
}
