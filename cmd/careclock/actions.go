package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newActionCmds(opts *rootOptions) []*cobra.Command {
	return []*cobra.Command{
		idCmd(opts, "skip", "Skip the next occurrence", func(cmd *cobra.Command, s *session, id string) error {
			at, err := s.orch.RequestSkip(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "skipping %s at %s\n", shortID(id), at.In(s.app.Location()).Format(timeLayout))
			return err
		}),
		idCmd(opts, "unskip", "Cancel a pending skip", func(cmd *cobra.Command, s *session, id string) error {
			logID, err := s.orch.ClearSkip(cmd.Context(), id)
			if err != nil {
				return err
			}
			msg := "skip cleared"
			if logID != "" {
				msg += ", removed log " + shortID(logID)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		}),
		idCmd(opts, "delete", "Delete a reminder", func(cmd *cobra.Command, s *session, id string) error {
			if err := s.orch.Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", shortID(id))
			return err
		}),
		idCmd(opts, "enable", "Enable a reminder", func(cmd *cobra.Command, s *session, id string) error {
			r, err := s.orch.SetEnabled(cmd.Context(), id, true)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "enabled %s %s\n", shortID(id), describe(r))
			return err
		}),
		idCmd(opts, "disable", "Disable a reminder", func(cmd *cobra.Command, s *session, id string) error {
			r, err := s.orch.SetEnabled(cmd.Context(), id, false)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "disabled %s %s\n", shortID(id), describe(r))
			return err
		}),
		newSnoozeCmd(opts),
		newDoneCmd(opts),
		newPauseCmd(opts, true),
		newPauseCmd(opts, false),
	}
}

func idCmd(opts *rootOptions, use, short string, fn func(cmd *cobra.Command, s *session, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(s *session) error {
				id, err := s.resolve(args[0])
				if err != nil {
					return err
				}
				return fn(cmd, s, id)
			})
		},
	}
}

func newSnoozeCmd(opts *rootOptions) *cobra.Command {
	var d time.Duration
	cmd := idCmd(opts, "snooze", "Fire again after a delay instead of the normal schedule", func(cmd *cobra.Command, s *session, id string) error {
		if _, err := s.orch.Snooze(cmd.Context(), id, d); err != nil {
			return err
		}
		next, err := s.orch.NextFireInstant(id)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "snoozed %s until %s\n", shortID(id), next.In(s.app.Location()).Format(timeLayout))
		return err
	})
	cmd.Flags().DurationVar(&d, "for", 10*time.Minute, "snooze length")
	return cmd
}

func newDoneCmd(opts *rootOptions) *cobra.Command {
	var logIt bool
	cmd := idCmd(opts, "done", "Acknowledge a fired reminder and restart its timing", func(cmd *cobra.Command, s *session, id string) error {
		var loggedAt *time.Time
		if logIt {
			now := s.orch.Now()
			loggedAt = &now
		}
		res, err := s.orch.ResetAfterFiring(cmd.Context(), id, loggedAt)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case res.Deleted:
			_, err = fmt.Fprintf(out, "%s done and removed\n", shortID(id))
		case res.Next.IsZero():
			_, err = fmt.Fprintf(out, "%s done\n", shortID(id))
		default:
			_, err = fmt.Fprintf(out, "%s done, next %s\n", shortID(id), res.Next.In(s.app.Location()).Format(timeLayout))
		}
		return err
	})
	cmd.Flags().BoolVar(&logIt, "log", true, "record a fired occurrence now")
	return cmd
}

func newPauseCmd(opts *rootOptions, pause bool) *cobra.Command {
	use, short := "resume", "Resume all reminders"
	if pause {
		use, short = "pause", "Pause all reminders"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(s *session) error {
				now := s.orch.Now()
				var err error
				if pause {
					err = s.orch.PauseAll(cmd.Context(), now)
				} else {
					err = s.orch.ResumeAll(cmd.Context(), now)
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%sd\n", use)
				return err
			})
		},
	}
}
