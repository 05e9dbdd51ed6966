// Package logx configures careclock's structured logging.
//
// Logger is a small value type on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Component tagging via With(logx.String("comp", ...))
package logx
