package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/catalog"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	if s == "" {
		y, m, d := time.Now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.Local), nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newPartnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partners",
		Short: "List venues",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ps, err := a.catalog().ListPartners(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS")
			for _, p := range ps {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Address)
			}
			return w.Flush()
		},
	}
}

func newCourtsCmd() *cobra.Command {
	var partnerID, date string
	c := &cobra.Command{
		Use:   "courts",
		Short: "List a venue's courts for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cs, err := a.catalog().ListCourts(ctx, partnerID, day)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE/HOUR")
			for _, ct := range cs {
				fmt.Fprintf(w, "%s\t%s\t%d\n", ct.ID, ct.Name, ct.PricePerHour)
			}
			return w.Flush()
		},
	}
	c.Flags().StringVar(&partnerID, "partner", "", "partner (venue) id")
	c.Flags().StringVar(&date, "date", "", "day YYYY-MM-DD (default today)")
	_ = c.MarkFlagRequired("partner")
	return c
}

func newSlotsCmd() *cobra.Command {
	var courtID, date string
	c := &cobra.Command{
		Use:   "slots",
		Short: "List time slots; with --court, only the ones still available that day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var slots []catalog.TimeSlot
			if courtID == "" {
				slots, err = a.catalog().ListAllSlots(ctx)
			} else {
				var day time.Time
				if day, err = parseDate(date); err != nil {
					return err
				}
				slots, err = a.catalog().ListSlotsForCourtAndDate(ctx, courtID, day)
			}
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME")
			for _, s := range slots {
				fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Display())
			}
			return w.Flush()
		},
	}
	c.Flags().StringVar(&courtID, "court", "", "court id")
	c.Flags().StringVar(&date, "date", "", "day YYYY-MM-DD (default today)")
	return c
}
