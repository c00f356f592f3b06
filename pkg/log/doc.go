// Package log records a machine-readable trace of instrument traffic.
//
// It is separate from operational logging (slog): a trace captures every
// command, response, status byte, register change and session transition
// of a session so a failing exchange can be replayed and inspected later.
//
// # Basic Usage
//
// Sessions take a Logger through their configuration:
//
//	// Development: trace to the console via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// Production: append to a binary trace file
//	cfg.Trace, _ = log.NewFileLogger("/var/log/bench/dmm.btrace")
//
//	// Both
//	cfg.Trace = log.NewMultiLogger(console, file)
//
// # Event Types
//
// Events are captured at three layers:
//   - Channel: commands, queries, responses and serial polls (MessageEvent, StatusEvent)
//   - Register: status register values as they become known or unknown (RegisterEvent)
//   - Session: lifecycle, sequence steps and service requests (StateChangeEvent, StatusEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Trace files are CBOR streams with integer keys and the .btrace
// extension. `benchctl trace` views and filters them.
package log
