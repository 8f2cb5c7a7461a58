package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"quantetf/pkg/quantetf"
)

func (a *app) runsCmd() *cobra.Command {
	var (
		server string
		q      quantetf.RunQuery
	)
	cmd := &cobra.Command{
		Use:   "runs [ID]",
		Short: "List saved runs from a running server, or show one run's trades",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = "http://" + net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
			}
			c := quantetf.NewClient(server)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := c.ListRuns(ctx, q)
				if err != nil {
					return err
				}
				tw := newTable(out)
				fmt.Fprintln(tw, "ID\tLABEL\tSYMBOL\tPOLICY\tMODE\tWINDOW\tTRADES\tRETURN\tSHARPE")
				for _, r := range runs {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s..%s\t%d\t%s\t%.2f\n",
						r.ID, r.Label, r.Symbol, r.Policy, r.Mode, r.StartDate, r.EndDate,
						r.NumTrades, pct(r.TotalReturn), r.Sharpe)
				}
				return tw.Flush()
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			run, err := c.GetRun(ctx, id)
			if err != nil {
				return err
			}
			trades, err := c.ListTrades(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "run %d: %s %s/%s %s..%s return %s\n\n",
				run.ID, run.Symbol, run.Policy, run.Mode, run.StartDate, run.EndDate, pct(run.TotalReturn))
			tw := newTable(out)
			fmt.Fprintln(tw, "DATE\tACTION\tPRICE\tSHARES\tSCORE\tPNL\tHOLD")
			for _, t := range trades {
				pnl, hold := "", ""
				if t.PnL != nil {
					pnl = fmt.Sprintf("%.2f", *t.PnL)
				}
				if t.HoldDays != nil {
					hold = strconv.Itoa(*t.HoldDays)
				}
				fmt.Fprintf(tw, "%s\t%s\t%.3f\t%d\t%.2f\t%s\t%s\n",
					t.Date, t.Action, t.Price, t.Shares, t.Score, pnl, hold)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Results API base URL (default: from server config)")
	cmd.Flags().StringVar(&q.Symbol, "symbol", "", "Filter by symbol")
	cmd.Flags().StringVar(&q.Label, "label", "", "Filter by label")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "Maximum runs to list")
	return cmd
}
