package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/client/models"
	"github.com/spf13/cobra"
)

func historyCmd(app func() *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().History(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of transfers to show (0 for all)")
	return cmd
}

// History prints up to limit transfers, newest first.
func (a *App) History(ctx context.Context, limit int) error {
	list, err := a.history.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no transfers yet")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tROLE\tCODE\tFILE\tSIZE\tSTATUS")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.StartedAt.Local().Format(time.DateTime), t.Role, dash(t.Code), dash(t.FileName),
			humanBytes(t.SizeBytes), historyStatus(t))
	}
	return w.Flush()
}

func historyStatus(t *models.Transfer) string {
	if t.Status == models.StatusFailed && t.Error != "" {
		return t.Error
	}
	return string(t.Status)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
