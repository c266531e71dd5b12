package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an opaque identifier. The backend sends some ids as JSON numbers and
// others as strings; both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Partner struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Court struct {
	ID           ID     `json:"id"`
	PartnerID    ID     `json:"partnerId"`
	Name         string `json:"name"`
	PricePerHour int64  `json:"pricePerHour"`
}

// TimeSlot is the wire form; StartTime/EndTime are "HH:MM" or "HH:MM:SS".
type TimeSlot struct {
	ID        ID     `json:"id"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type CreatePaymentRequest struct {
	CourtID      string   `json:"courtId"`
	BookingDate  string   `json:"bookingDate"` // YYYY-MM-DD
	CustomerName string   `json:"customerName"`
	Phone        string   `json:"phone"`
	Email        string   `json:"email"`
	Amount       int64    `json:"amount"`
	TimeSlotIDs  []string `json:"timeSlotIds"`
	ReturnURL    string   `json:"returnUrl,omitempty"`
	CancelURL    string   `json:"cancelUrl,omitempty"`
}

type CreatePaymentResponse struct {
	OrderCode   ID     `json:"orderCode"`
	CheckoutURL string `json:"checkoutUrl"`
	Amount      int64  `json:"amount"`
}

type BookingStatus struct {
	OrderCode    ID     `json:"orderCode"`
	Status       string `json:"status"`
	CourtID      ID     `json:"courtId"`
	BookingDate  string `json:"bookingDate"`
	CustomerName string `json:"customerName"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Amount       int64  `json:"amount"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}
