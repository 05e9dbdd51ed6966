package reminder

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reminder is a single care reminder and the timing state it owns.
type Reminder struct {
	ID          string
	Action      string
	CustomLabel string

	// ExecutionBasis is the anchor instant next firings are measured from.
	// It is never zero.
	ExecutionBasis time.Time

	Enabled bool
	// PresentationHandled is set once the alarm for the current cycle has been
	// surfaced and cleared whenever timing is reset.
	PresentationHandled bool

	Mode   Mode
	Snooze Snooze
}

func NewID() string { return uuid.NewString() }

// New creates an enabled reminder anchored at now with a fresh id.
func New(mode Mode, now time.Time) (*Reminder, error) {
	r := &Reminder{
		ID:             NewID(),
		ExecutionBasis: now,
		Enabled:        true,
		Mode:           mode,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reminder) Kind() Kind { return kindOf(r.Mode) }

func (r *Reminder) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return configErr("id", "required")
	}
	if r.ExecutionBasis.IsZero() {
		return configErr("execution_basis", "required")
	}
	if r.Mode == nil {
		return configErr("mode", "required")
	}
	if err := r.Mode.Validate(); err != nil {
		return err
	}
	return r.Snooze.Validate()
}

// Clone returns a deep copy that shares no mutable state with r.
func (r *Reminder) Clone() *Reminder {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Mode != nil {
		cp.Mode = r.Mode.clone()
	}
	return &cp
}

// SkipState returns the skip state of calendar reminders.
func (r *Reminder) SkipState() (SkipState, bool) {
	c, ok := r.Mode.(calendar)
	if !ok {
		return SkipState{}, false
	}
	return *c.skipState(), true
}

// Label is the custom label when set, else the action.
func (r *Reminder) Label() string {
	if s := strings.TrimSpace(r.CustomLabel); s != "" {
		return s
	}
	return r.Action
}
