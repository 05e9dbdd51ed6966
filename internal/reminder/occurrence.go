package reminder

import "time"

type OccurrenceKind string

const (
	OccurrenceFired   OccurrenceKind = "fired"
	OccurrenceSkipped OccurrenceKind = "skipped"
)

// Occurrence is a logged firing or skip of a reminder. Modified is set once
// the entry has been edited independently, after which a manual unskip no
// longer removes it.
type Occurrence struct {
	ID          string         `json:"id"`
	ReminderID  string         `json:"reminder_id"`
	At          time.Time      `json:"at"`
	Kind        OccurrenceKind `json:"kind"`
	Action      string         `json:"action,omitempty"`
	CustomLabel string         `json:"custom_label,omitempty"`
	Modified    bool           `json:"modified,omitempty"`
}

// NewOccurrence builds an occurrence of kind for r at the given instant.
func NewOccurrence(r *Reminder, kind OccurrenceKind, at time.Time) Occurrence {
	return Occurrence{
		ID:          NewID(),
		ReminderID:  r.ID,
		At:          at.UTC(),
		Kind:        kind,
		Action:      r.Action,
		CustomLabel: r.CustomLabel,
	}
}
