package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"careclock/internal/orchestrator"
	"careclock/internal/reminder"
	"careclock/internal/storage"
)

const timeLayout = "Mon 2006-01-02 15:04"

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List reminders with their next fire time",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(s *session) error {
				snap := s.orch.Snapshot()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), snap)
				}
				return printSnapshot(cmd.OutOrStdout(), snap, s.app.Location())
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printSnapshot(w io.Writer, snap orchestrator.Snapshot, loc *time.Location) error {
	if snap.Paused {
		fmt.Fprintf(w, "all reminders paused since %s\n\n", snap.PausedAt.In(loc).Format(timeLayout))
	}
	if len(snap.Reminders) == 0 {
		_, err := fmt.Fprintln(w, "no reminders")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tLABEL\tNEXT\tSTATE")
	for _, st := range snap.Reminders {
		next := "-"
		if st.Err != "" {
			next = "error: " + st.Err
		} else if !st.Next.IsZero() {
			next = st.Next.In(loc).Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(st.ID), st.Kind, st.Label, next, stateOf(st))
	}
	return tw.Flush()
}

func stateOf(st orchestrator.Status) string {
	var parts []string
	if !st.Enabled {
		parts = append(parts, "disabled")
	}
	if st.Handled {
		parts = append(parts, "fired")
	}
	if st.Skipping {
		parts = append(parts, "skipping")
	}
	if st.Snoozed {
		parts = append(parts, "snoozed")
	}
	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, ",")
}

func newDueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "Show enabled reminders whose next fire time has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(s *session) error {
				loc := s.app.Location()
				due := s.orch.Due(s.orch.Now())
				w := cmd.OutOrStdout()
				if len(due) == 0 {
					_, err := fmt.Fprintln(w, "nothing due")
					return err
				}
				for _, d := range due {
					fmt.Fprintf(w, "%s\tdue since %s\n", shortID(d.ID), d.Next.In(loc).Format(timeLayout))
				}
				return nil
			})
		},
	}
}

func newLogsCmd(opts *rootOptions) *cobra.Command {
	var (
		reminderID string
		kind       string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the fired/skipped occurrence log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(s *session) error {
				f := storage.LogFilter{Limit: limit}
				if reminderID != "" {
					id, err := s.resolve(reminderID)
					if err != nil {
						return err
					}
					f.ReminderID = id
				}
				switch kind {
				case "", "fired", "skipped":
					f.Kind = reminder.OccurrenceKind(kind)
				default:
					return fmt.Errorf("--kind must be fired or skipped")
				}
				logs, err := s.app.Store().ListLogs(cmd.Context(), f)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), logs)
				}
				loc := s.app.Location()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tAT\tKIND\tREMINDER\tLABEL\tEDITED")
				for _, o := range logs {
					label := o.CustomLabel
					if label == "" {
						label = o.Action
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", shortID(o.ID), o.At.In(loc).Format(timeLayout), o.Kind, shortID(o.ReminderID), label, o.Modified)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&reminderID, "reminder", "", "only this reminder (id or prefix)")
	cmd.Flags().StringVar(&kind, "kind", "", "fired or skipped")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(newLogsKeepCmd(opts))
	return cmd
}

// newLogsKeepCmd marks a log entry as edited, so a later manual unskip of
// its reminder leaves the entry in place.
func newLogsKeepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keep <log-id>",
		Short: "Mark a log entry as edited so unskip keeps it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(s *session) error {
				st := s.app.Store()
				logs, err := st.ListLogs(cmd.Context(), storage.LogFilter{})
				if err != nil {
					return err
				}
				id, err := resolveLogID(logs, args[0])
				if err != nil {
					return err
				}
				if err := st.MarkLogModified(cmd.Context(), id); err != nil {
					return fmt.Errorf("mark log %s: %w", shortID(id), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "kept log %s\n", shortID(id))
				return nil
			})
		},
	}
}

func resolveLogID(logs []reminder.Occurrence, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("log id required")
	}
	var matches []string
	for _, o := range logs {
		if o.ID == arg {
			return o.ID, nil
		}
		if strings.HasPrefix(o.ID, arg) {
			matches = append(matches, o.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: log %s", storage.ErrNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("log id prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
