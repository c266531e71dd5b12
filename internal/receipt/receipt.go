// Package receipt renders a one-page PDF confirmation for a paid booking.
package receipt

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

type Receipt struct {
	OrderCode   string
	PartnerName string
	CourtName   string
	Date        time.Time
	Slots       []string // "HH:MM - HH:MM"
	Customer    string
	Phone       string
	Email       string
	Amount      int64
	Beverage    bool
	PaidAt      time.Time
}

func Render(r Receipt) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.Cell(0, 15, "PICKLEBOOM BOOKING RECEIPT")
	pdf.Ln(18)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	section(pdf, "BOOKING")
	line(pdf, tr, "Order code", r.OrderCode)
	if r.PartnerName != "" {
		line(pdf, tr, "Venue", r.PartnerName)
	}
	line(pdf, tr, "Court", r.CourtName)
	line(pdf, tr, "Date", r.Date.Format("Mon 02 Jan 2006"))
	for i, s := range r.Slots {
		label := ""
		if i == 0 {
			label = "Time"
		}
		line(pdf, tr, label, s)
	}
	if r.Beverage {
		line(pdf, tr, "Add-ons", "Beverage")
	}
	pdf.Ln(4)

	section(pdf, "CUSTOMER")
	line(pdf, tr, "Name", r.Customer)
	line(pdf, tr, "Phone", r.Phone)
	line(pdf, tr, "Email", r.Email)
	pdf.Ln(4)

	section(pdf, "PAYMENT")
	line(pdf, tr, "Total paid", FormatAmount(r.Amount)+" VND")
	if !r.PaidAt.IsZero() {
		line(pdf, tr, "Confirmed at", r.PaidAt.Format("02 Jan 2006 15:04 MST"))
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 285, 195, 285)
	pdf.SetY(288)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 8, "Please show this receipt at the front desk.", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteFile(path string, r Receipt) error {
	b, err := Render(r)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// FormatAmount groups digits in threes: 240000 -> "240,000".
func FormatAmount(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(2)
}

func line(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(40, 7, tr(label), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
}
