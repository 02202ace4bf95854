// Package wire defines the line framing used by the receiver telnet protocol.
//
// Every outbound command is a single frame:
//
//	"\n" + <Domain>.<Command> + <operator> + [value] + "\r"
//
// Inbound data uses the same framing, one "\n"-prefixed, "\r"-terminated
// Name=Value line per frame. A device may push unsolicited lines (telemetry
// such as Main.Temp.PSU) at any time, so a drained reply can hold several
// lines of which only one answers the command that was sent.
//
// # Operators
//
//	?  query the current value
//	=  set a value
//	+  step up (next value)
//	-  step down (previous value)
//
// Everything in this package is pure string handling. No I/O is performed.
package wire
