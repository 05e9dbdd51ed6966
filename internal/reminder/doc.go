// Package reminder holds the timing core of care reminders: converting
// between stored UTC fields and local time, the recurrence rules for each
// reminder mode, skip/unskip state and the elapsed-time accounting that lets
// countdowns survive a pause.
//
// Everything here is pure. Methods on *Reminder mutate only the receiver and
// never read the wall clock; callers pass the instant to act at. Weekly and
// Monthly rules compute in the UTC calendar.
package reminder
