// Package log provides protocol capture for receiver connections.
//
// Protocol capture is separate from operational logging (slog). Operational
// logs say what the bridge is doing; protocol capture records every frame and
// parsed line exchanged with a receiver so a session can be replayed and
// inspected after the fact with the avr-log tool.
//
// # Basic Usage
//
//	// Development: mirror capture events to the console.
//	opts = append(opts, connection.WithProtocolLogger(log.NewSlogAdapter(slog.Default())))
//
//	// Production: append to a capture file.
//	fl, _ := log.NewFileLogger("/var/log/avrbridge/livingroom.alog")
//	opts = append(opts, connection.WithProtocolLogger(fl))
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: parsed Name=Value lines (LineEvent), including unsolicited telemetry
//   - Session: lifecycle transitions (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a concatenated stream of CBOR-encoded events with
// integer map keys. The conventional extension is .alog.
package log
