// Package storage persists reminders, their occurrence log, and small
// pieces of global state such as the pause flag.
//
// Two drivers are available:
//   - "file": a JSON snapshot plus an append-only JSON Lines journal
//   - "sqlite": a SQLite database (pure Go driver, WAL mode)
//
// Drivers deal in flat records. Store converts to and from domain types and
// is what the rest of the program holds.
package storage
