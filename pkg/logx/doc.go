// Package logx configures tgmailer's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp, key=value fields)
//   - File output JSON-structured
//   - Log level adjustable at runtime via Service.Apply
package logx
