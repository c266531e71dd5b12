package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/poller"
)

func newStatusCmd() *cobra.Command {
	var once bool
	c := &cobra.Command{
		Use:   "status ORDER_CODE",
		Short: "Poll an order until it is paid, cancelled or expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if once {
				src, err := a.statusSource()
				if err != nil {
					return err
				}
				st, err := src.Status(ctx, code)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", code, st)
				return nil
			}

			p, err := a.poller()
			if err != nil {
				return err
			}
			show := func(label string) func(poller.Result) {
				return func(r poller.Result) {
					fmt.Fprintf(out, "%s %s after %d checks (%s left)\n", code, label, r.Attempts, r.Remaining.Round(time.Second))
				}
			}
			return p.Watch(ctx, code, nil, poller.Handlers{
				OnPaid:      show("paid"),
				OnCancelled: show("cancelled"),
				OnExpired:   show("expired"),
			})
		},
	}
	c.Flags().BoolVar(&once, "once", false, "check a single time instead of polling")
	return c
}
