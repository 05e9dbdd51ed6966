package reminder

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration matches every *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("invalid reminder configuration")
	// ErrInvalidOperation matches every *InvalidOperationError via errors.Is.
	ErrInvalidOperation = errors.New("operation not supported by reminder mode")
	// ErrClockAnomaly matches every *ClockAnomalyError via errors.Is.
	ErrClockAnomaly = errors.New("inconsistent fire instant")
)

// ConfigurationError rejects a reminder whose fields can never produce a
// schedule. It is raised at construction or mutation time and never
// corrected silently.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("reminder config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidOperationError reports an operation the reminder's mode has no
// semantics for (e.g. skipping a countdown). No state is changed.
type InvalidOperationError struct {
	Op     string
	Kind   Kind
	Reason string
}

func (e *InvalidOperationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (%s reminder)", e.Op, e.Reason, e.Kind)
	}
	return fmt.Sprintf("%s: not supported for %s reminders", e.Op, e.Kind)
}

func (e *InvalidOperationError) Is(target error) bool { return target == ErrInvalidOperation }

// ClockAnomalyError signals a rule produced an instant that violates its own
// ordering guarantees. It is a defect in rule arithmetic, not a user error.
type ClockAnomalyError struct {
	Kind   Kind
	Basis  time.Time
	Got    time.Time
	Reason string
}

func (e *ClockAnomalyError) Error() string {
	return fmt.Sprintf("%s rule: %s (basis=%s got=%s)", e.Kind, e.Reason,
		e.Basis.UTC().Format(time.RFC3339), e.Got.UTC().Format(time.RFC3339))
}

func (e *ClockAnomalyError) Is(target error) bool { return target == ErrClockAnomaly }
