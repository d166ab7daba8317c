package cli

import (
	"fmt"
	"time"

	"github.com/ctolnik/activity-tracker/server/report"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var now = time.Now

type rangeFlags struct {
	from string
	to   string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "start of range, RFC3339 or YYYY-MM-DD (default: today 00:00)")
	cmd.Flags().StringVar(&f.to, "to", "", "end of range, RFC3339 or YYYY-MM-DD (default: now)")
}

// resolve returns [from, to), defaulting to the start of today until now.
func (f *rangeFlags) resolve() (time.Time, time.Time, error) {
	to := now()
	if f.to != "" {
		t, err := parseTime(f.to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		to = t
	}
	from, _ := report.Day(now())
	if f.from != "" {
		t, err := parseTime(f.from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		from = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is not before --to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

func newSessionsCommand(root *rootOptions) *cobra.Command {
	var (
		rf  rangeFlags
		app string
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := rf.resolve()
			if err != nil {
				return err
			}
			ctx, e, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			sessions, err := e.store.ListSessions(ctx, from, to, app)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&app, "app", "", "only sessions of this application")
	return cmd
}

func newUsageCommand(root *rootOptions) *cobra.Command {
	var date, group, period string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize active time per application or category",
		Long: `Summarize the active time of a day, week or month, grouped by application
or by category. Idle time is reported separately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			groupBy, err := report.ParseGroupBy(group)
			if err != nil {
				return err
			}
			day := now()
			if date != "" {
				day, err = time.ParseInLocation(dateLayout, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q, use YYYY-MM-DD", date)
				}
			}
			from, to, err := report.Window(report.Period(period), day)
			if err != nil {
				return err
			}

			ctx, e, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			sessions, err := e.store.ListSessions(ctx, from, to, "")
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			printUsage(cmd.OutOrStdout(), report.Summarize(sessions, from, to, groupBy))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day inside the reported period, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&group, "group", "g", string(report.ByApp), "group by app or category")
	cmd.Flags().StringVarP(&period, "period", "p", string(report.Daily), "day, week or month")
	return cmd
}

func newEventsCommand(root *rootOptions) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List tracker lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := rf.resolve()
			if err != nil {
				return err
			}
			ctx, e, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			events, err := e.store.ListSystemEvents(ctx, from, to)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}
