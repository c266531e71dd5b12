package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newOrdersCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "orders",
		Short: "List orders recorded in the journal (needs DATABASE_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set; orders are only kept in memory for a single run")
			}
			j, err := a.journal(ctx)
			if err != nil {
				return err
			}
			es, err := j.List(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tSTATUS\tCOURT\tDATE\tSLOTS\tAMOUNT\tCHECKS\tCREATED")
			for _, e := range es {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					e.OrderCode, e.Status, e.CourtID, e.BookingDate.Format(dateLayout), strings.Join(e.SlotIDs, ","),
					e.Amount, e.Attempts, e.CreatedAt.Local().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	c.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return c
}
