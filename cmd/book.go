package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/spf13/cobra"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/catalog"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/draft"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/flow"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/handoff"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/order"
)

type bookFlags struct {
	partnerID  string
	courtID    string
	date       string
	slots      []string
	name       string
	phone      string
	email      string
	beverage   bool
	receiptDir string
}

func newBookCmd() *cobra.Command {
	var f bookFlags
	c := &cobra.Command{
		Use:   "book",
		Short: "Book slots on a court and pay through the hosted checkout",
		Long: `book walks the same steps as the booking screens: venue, day, court,
time slots and customer details. It then creates the order, serves the
checkout page on LISTEN_ADDR and waits until the payment resolves.

Slots may be given by id or by their display time ("09:00 - 10:00" or "09:00").`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := buildDraft(ctx, a.catalog(), f)
			if err != nil {
				return err
			}
			return runCheckout(ctx, cmd.OutOrStdout(), a, d, f.receiptDir)
		},
	}
	c.Flags().StringVar(&f.partnerID, "partner", "", "partner (venue) id")
	c.Flags().StringVar(&f.courtID, "court", "", "court id")
	c.Flags().StringVar(&f.date, "date", "", "day YYYY-MM-DD (default today)")
	c.Flags().StringArrayVar(&f.slots, "slot", nil, "time slot id or display time; repeatable")
	c.Flags().StringVar(&f.name, "name", "", "customer name")
	c.Flags().StringVar(&f.phone, "phone", "", "customer phone")
	c.Flags().StringVar(&f.email, "email", "", "customer email")
	c.Flags().BoolVar(&f.beverage, "beverage", false, "add a beverage (paid at the venue)")
	c.Flags().StringVar(&f.receiptDir, "receipt-dir", "", "write a PDF receipt here when the booking is paid")
	for _, name := range []string{"partner", "court", "slot"} {
		_ = c.MarkFlagRequired(name)
	}
	return c
}

// buildDraft resolves the flags against the catalog the way the selection
// screens would and fills a draft in step order.
func buildDraft(ctx context.Context, cat *catalog.Catalog, f bookFlags) (*draft.Draft, error) {
	day, err := parseDate(f.date)
	if err != nil {
		return nil, err
	}
	partners, err := cat.ListPartners(ctx)
	if err != nil {
		return nil, err
	}
	partner, ok := findPartner(partners, f.partnerID)
	if !ok {
		return nil, fmt.Errorf("unknown partner %q", f.partnerID)
	}
	courts, err := cat.ListCourts(ctx, partner.ID, day)
	if err != nil {
		return nil, err
	}
	court, ok := findCourt(courts, f.courtID)
	if !ok {
		return nil, fmt.Errorf("court %q is not offered by %s on %s", f.courtID, partner.Name, day.Format(dateLayout))
	}
	avail, err := catalog.NewCache(cat).Slots(ctx, court.ID, day)
	if err != nil {
		return nil, err
	}

	d := draft.New()
	d.SetPartner(partner)
	d.SetDate(day)
	d.SetCourt(court)
	for _, want := range f.slots {
		s, ok := resolveSlot(want, avail)
		if !ok {
			return nil, fmt.Errorf("slot %q is not available on %s", want, day.Format(dateLayout))
		}
		if _, err := d.ToggleSlot(s); err != nil {
			return nil, err
		}
	}
	d.SetCustomer(draft.Customer{Name: f.name, Phone: f.phone, Email: f.email})
	d.SetOptions(draft.Options{Beverage: f.beverage})
	return d, nil
}

func findPartner(ps []catalog.Partner, id string) (catalog.Partner, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return catalog.Partner{}, false
}

func findCourt(cs []catalog.Court, id string) (catalog.Court, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return catalog.Court{}, false
}

func resolveSlot(want string, avail []catalog.TimeSlot) (catalog.TimeSlot, bool) {
	id, ok := catalog.SlotIDForDisplayTime(want, avail)
	if !ok {
		id = want
	}
	for _, s := range avail {
		if s.ID == id {
			return s, true
		}
	}
	return catalog.TimeSlot{}, false
}

func runCheckout(ctx context.Context, out io.Writer, a *app, d *draft.Draft, receiptDir string) error {
	surface, err := a.surface()
	if err != nil {
		return err
	}
	p, err := a.poller()
	if err != nil {
		return err
	}
	// bind before the order exists so a taken port costs nothing
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("checkout page server: %w", err)
	}
	j, err := a.journal(ctx)
	if err != nil {
		ln.Close()
		return err
	}

	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	srvErr := make(chan error, 1)
	go func() { srvErr <- handoff.Serve(srvCtx, ln, surface.Routes()) }()

	fl := &flow.Flow{
		Orders:     order.NewGateway(a.api, order.WithLogger(a.log), order.WithReturnURLs(surface.ReturnURL(), surface.CancelURL())),
		Surface:    surface,
		Poller:     p,
		Journal:    j,
		Notifier:   a.notifier(),
		ReceiptDir: receiptDir,
		Logger:     a.log,
		OnOpen: func(url string) {
			fmt.Fprintf(out, "Open this page to pay: %s\n", url)
		},
	}

	snap := d.Snapshot().Finalized()
	fmt.Fprintf(out, "%s, %s on %s\n", snap.Partner.Name, snap.Court.Name, snap.Date.Format(dateLayout))
	for _, t := range snap.DisplayTimes() {
		fmt.Fprintf(out, "  %s\n", t)
	}
	fmt.Fprintf(out, "Total: %d\n", order.Amount(snap))

	res, err := fl.Checkout(ctx, d)
	select {
	case e := <-srvErr:
		if e != nil {
			return fmt.Errorf("checkout page server: %w", e)
		}
	default:
	}
	if err != nil {
		return explain(err)
	}

	switch res.Screen {
	case flow.ScreenPaid:
		fmt.Fprintf(out, "Paid. Order %s is confirmed.\n", res.Order.Code)
		if res.ReceiptPath != "" {
			fmt.Fprintf(out, "Receipt: %s\n", res.ReceiptPath)
		}
	case flow.ScreenCancelled:
		fmt.Fprintf(out, "The payment for order %s was cancelled.\n", res.Order.Code)
	case flow.ScreenExpired:
		fmt.Fprintf(out, "No payment for order %s arrived in time.\n", res.Order.Code)
	case flow.ScreenBackToCustomerInfo:
		fmt.Fprintf(out, "Payment for order %s was closed. Check your details and book again.\n", res.Order.Code)
	}
	return nil
}

func explain(err error) error {
	var ve *order.ValidationError
	var rej *order.RejectedError
	switch {
	case errors.As(err, &ve):
		return fmt.Errorf("please provide the %s", ve.Field)
	case errors.As(err, &rej):
		return errors.New(rej.Message)
	}
	return err
}
