package reminder

import "time"

// SkipState records whether the next calendar occurrence is suppressed. The
// zero value is Normal. SkippedAt is set if and only if Skipping is true.
type SkipState struct {
	skipping  bool
	skippedAt time.Time
}

// RestoreSkip rebuilds a persisted skip state, rejecting pairs that break
// the skippedAt/skipping correspondence.
func RestoreSkip(skipping bool, skippedAt time.Time) (SkipState, error) {
	if skipping != !skippedAt.IsZero() {
		return SkipState{}, configErr("skip", "skipping=%t inconsistent with skipped_at=%v", skipping, skippedAt)
	}
	return SkipState{skipping: skipping, skippedAt: skippedAt.UTC()}, nil
}

func (s SkipState) Skipping() bool { return s.skipping }

// SkippedAt reports when the skip was requested.
func (s SkipState) SkippedAt() (time.Time, bool) { return s.skippedAt, s.skipping }

func (s *SkipState) set(now time.Time) {
	s.skipping = true
	s.skippedAt = now.UTC()
}

func (s *SkipState) clear() { *s = SkipState{} }

// SkipLogLookup answers whether an occurrence log recorded for a skip at the
// given instant still exists unmodified, returning its id. Log storage lives
// with the caller.
type SkipLogLookup func(at time.Time) (id string, ok bool)
