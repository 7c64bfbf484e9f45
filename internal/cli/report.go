package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func NewInsideCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inside",
		Short: "List who is inside right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.openApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			occ := a.engine.Occupancy()
			if occ == nil {
				occ = []types.OccupantRecord{}
			}
			return f.Success(types.OccupancyResponse{Count: len(occ), Occupants: occ},
				renderOccupants(occ, a.reports.Location()))
		},
	}
}

func renderOccupants(occ []types.OccupantRecord, loc *time.Location) string {
	if len(occ) == 0 {
		return "nobody inside\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d inside\n", len(occ))
	for _, o := range occ {
		fmt.Fprintf(&b, "  %-10s %-30s since %s\n",
			o.Identity.ExternalCode, o.Identity.DisplayName, o.EntryAt.In(loc).Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count entries and exits for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.openApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := a.reports.ParseDay(date)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --date", err)
			}
			sum, err := a.reports.Summary(cmd.Context(), day)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStorage, "cannot read event log", err)
			}

			text := fmt.Sprintf("%s: %d entries, %d exits\n", sum.Date, sum.Entries, sum.Exits)
			text += renderOccupants(sum.Occupants, a.reports.Location())
			return f.Success(sum, text)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")
	return cmd
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <external-code>",
		Short: "Show the latest events for one person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.openApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			evs, err := a.reports.History(cmd.Context(), args[0], limit)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStorage, "cannot read event log", err)
			}
			if evs == nil {
				evs = []types.Event{}
			}

			loc := a.reports.Location()
			var b strings.Builder
			if len(evs) == 0 {
				fmt.Fprintf(&b, "no events for %s\n", args[0])
			}
			for _, ev := range evs {
				fmt.Fprintf(&b, "%s  %-5s  %s\n",
					ev.Timestamp.In(loc).Format("2006-01-02 15:04:05"), ev.Transition, ev.DisplayName)
			}
			return f.Success(types.EventsResponse{ExternalCode: args[0], Events: evs}, b.String())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of events to show, -1 for all (default 10)")
	return cmd
}
