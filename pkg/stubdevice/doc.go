// Package stubdevice implements a fake receiver speaking the telnet control
// protocol. It backs the connection and session tests and the stub-receiver
// command.
//
// The stub greets each client with "Main.Model=<model>", answers the bare
// "?" with every value it holds, and handles Name?, Name=Value, Name+ and
// Name- for commands in its registry. Unknown names get no reply, like the
// real hardware.
package stubdevice
