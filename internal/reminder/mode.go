package reminder

import (
	"fmt"
	"strings"
	"time"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindCountdown
	KindWeekly
	KindMonthly
	KindOneTime
)

func (k Kind) String() string {
	switch k {
	case KindCountdown:
		return "countdown"
	case KindWeekly:
		return "weekly"
	case KindMonthly:
		return "monthly"
	case KindOneTime:
		return "onetime"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names produced by Kind.String (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "countdown":
		return KindCountdown, nil
	case "weekly":
		return KindWeekly, nil
	case "monthly":
		return KindMonthly, nil
	case "onetime", "once", "one_time":
		return KindOneTime, nil
	default:
		return KindUnknown, fmt.Errorf("unknown reminder kind %q", s)
	}
}

// Mode is the timing rule of a reminder. Exactly one is active per reminder.
type Mode interface {
	Kind() Kind
	Validate() error
	// Candidates proposes future firing instants measured from basis, sorted
	// ascending.
	Candidates(basis time.Time) []time.Time

	clone() Mode
}

// calendar is implemented by the calendar-anchored modes, which carry skip
// state and compute a previous occurrence from the calendar.
type calendar interface {
	Mode
	skipState() *SkipState
	previous(basis, next time.Time) time.Time
}

func isCalendar(m Mode) bool {
	_, ok := m.(calendar)
	return ok
}

func kindOf(m Mode) Kind {
	if m == nil {
		return KindUnknown
	}
	return m.Kind()
}

// calendarCandidates runs the rule and verifies the ordering guarantees the
// skip machinery depends on.
func calendarCandidates(m calendar, basis time.Time) ([]time.Time, error) {
	cands := m.Candidates(basis)
	if len(cands) < 2 {
		return nil, &ClockAnomalyError{Kind: m.Kind(), Basis: basis, Reason: fmt.Sprintf("rule produced %d candidates, need 2", len(cands))}
	}
	if !cands[0].After(basis) {
		return nil, &ClockAnomalyError{Kind: m.Kind(), Basis: basis, Got: cands[0], Reason: "next candidate not after basis"}
	}
	for i := 1; i < len(cands); i++ {
		if !cands[i].After(cands[i-1]) {
			return nil, &ClockAnomalyError{Kind: m.Kind(), Basis: basis, Got: cands[i], Reason: "candidates not strictly increasing"}
		}
	}
	return cands, nil
}
