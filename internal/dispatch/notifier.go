package dispatch

import (
	"context"

	"careclock/internal/orchestrator"
	"careclock/pkg/logx"
)

// LogNotifier writes every alarm to the log. It is the default notifier when
// no other delivery channel is configured.
type LogNotifier struct {
	Log logx.Logger
}

func (n LogNotifier) Notify(_ context.Context, a orchestrator.Alarm) error {
	fields := []logx.Field{
		logx.Reminder(a.ReminderID),
		logx.String("kind", a.Kind.String()),
		logx.Instant("scheduled", a.Scheduled),
	}
	if a.Label != "" {
		fields = append(fields, logx.String("label", a.Label))
	}
	if a.Missed {
		fields = append(fields, logx.Bool("missed", true), logx.Instant("fired_at", a.FiredAt))
	}
	n.Log.Info("reminder due", fields...)
	return nil
}
