package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"careclock/internal/reminder"
)

type addFlags struct {
	action   string
	label    string
	disabled bool
}

func (f *addFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.action, "action", "", "what to do, e.g. \"water the ferns\"")
	cmd.Flags().StringVar(&f.label, "label", "", "display label overriding the action")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "create the reminder disabled")
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a reminder",
	}
	cmd.AddCommand(
		newAddCountdownCmd(opts),
		newAddWeeklyCmd(opts),
		newAddMonthlyCmd(opts),
		newAddOnceCmd(opts),
	)
	return cmd
}

// addReminder builds the mode via build, then stores the reminder.
func addReminder(cmd *cobra.Command, opts *rootOptions, f *addFlags, build func(loc *time.Location, now time.Time) (reminder.Mode, error)) error {
	return withSession(cmd.Context(), opts, func(s *session) error {
		now := s.orch.Now()
		mode, err := build(s.app.Location(), now)
		if err != nil {
			return err
		}
		r, err := reminder.New(mode, now)
		if err != nil {
			return err
		}
		r.Action = f.action
		r.CustomLabel = f.label
		r.Enabled = !f.disabled

		added, err := s.orch.Add(cmd.Context(), r)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "added %s %s\n", shortID(added.ID), describe(added))
		if next, err := s.orch.NextFireInstant(added.ID); err == nil && !next.IsZero() {
			fmt.Fprintf(out, "next: %s\n", next.In(s.app.Location()).Format(timeLayout))
		}
		return nil
	})
}

func newAddCountdownCmd(opts *rootOptions) *cobra.Command {
	var (
		f     addFlags
		every time.Duration
	)
	cmd := &cobra.Command{
		Use:   "countdown",
		Short: "Repeat at a fixed interval from the last reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return addReminder(cmd, opts, &f, func(*time.Location, time.Time) (reminder.Mode, error) {
				return reminder.NewCountdown(every)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().DurationVar(&every, "every", 0, "interval, e.g. 36h")
	_ = cmd.MarkFlagRequired("every")
	return cmd
}

func newAddWeeklyCmd(opts *rootOptions) *cobra.Command {
	var (
		f    addFlags
		at   string
		days string
	)
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Fire at a local time on chosen weekdays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, m, err := parseClock(at)
			if err != nil {
				return err
			}
			wd, err := parseWeekdays(days)
			if err != nil {
				return err
			}
			return addReminder(cmd, opts, &f, func(loc *time.Location, now time.Time) (reminder.Mode, error) {
				return weeklyAt(h, m, wd, loc, now)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&at, "at", "", "local time HH:MM")
	cmd.Flags().StringVar(&days, "days", "daily", "weekdays: mon,wed,fri or 1-7 with 1 = Sunday")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newAddMonthlyCmd(opts *rootOptions) *cobra.Command {
	var (
		f   addFlags
		at  string
		day int
	)
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Fire at a local time on a day of the month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, m, err := parseClock(at)
			if err != nil {
				return err
			}
			return addReminder(cmd, opts, &f, func(loc *time.Location, now time.Time) (reminder.Mode, error) {
				return monthlyAt(h, m, day, loc, now)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&at, "at", "", "local time HH:MM")
	cmd.Flags().IntVar(&day, "day", 1, "day of month 1-31; short months use their last day")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newAddOnceCmd(opts *rootOptions) *cobra.Command {
	var (
		f  addFlags
		at string
	)
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Fire once at a local date and time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return addReminder(cmd, opts, &f, func(loc *time.Location, _ time.Time) (reminder.Mode, error) {
				when, err := parseLocalDateTime(at, loc)
				if err != nil {
					return nil, err
				}
				return reminder.NewOneTime(when.UTC())
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&at, "at", "", "local date and time, YYYY-MM-DD HH:MM")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}
