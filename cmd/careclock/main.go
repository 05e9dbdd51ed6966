// Command careclock runs the reminder daemon and edits reminders offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"careclock/internal/app"
	"careclock/internal/orchestrator"
	"careclock/internal/reminder"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "careclock",
		Short:         "Care reminders on countdown, weekly, monthly and one-time schedules",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	def := os.Getenv("CARECLOCK_CONFIG")
	if def == "" {
		def = "./careclock.json"
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", def, "path to config file (json or yaml)")

	root.AddCommand(
		newRunCmd(opts),
		newListCmd(opts),
		newDueCmd(opts),
		newLogsCmd(opts),
		newAddCmd(opts),
	)
	root.AddCommand(newActionCmds(opts)...)
	return root
}

// session is an offline view of the stored reminders. Mutations persist
// through the orchestrator but no timers run.
type session struct {
	app  *app.App
	orch *orchestrator.Orchestrator
}

func withSession(ctx context.Context, opts *rootOptions, fn func(s *session) error) error {
	a, err := app.New(opts.configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Store() == nil {
		return errors.New("storage is disabled; offline commands need storage.driver file or sqlite")
	}
	if err := a.Restore(ctx); err != nil {
		return err
	}
	return fn(&session{app: a, orch: a.Orchestrator()})
}

// resolve finds a reminder by full id or unique id prefix.
func (s *session) resolve(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("reminder id required")
	}
	var matches []string
	for _, r := range s.orch.List() {
		if r.ID == arg {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, arg) {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", orchestrator.ErrNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func describe(r *reminder.Reminder) string {
	if l := r.Label(); l != "" {
		return l
	}
	return "(" + r.Kind().String() + ")"
}
