// Package registry holds the static catalogue of receiver commands.
//
// Each command is identified by its dotted name (e.g. "Main.Power") and
// declares the operators it accepts and, optionally, the domain of values it
// takes: either an enumerated set of strings or a numeric range.
//
// The catalogue ships embedded in the binary (commands.yaml) and is parsed
// once on first use. Definitions are never mutated after loading.
//
// The registry is a validation oracle for callers. The connection layer
// never consults it; it only enforces what a device reported during
// introspection.
package registry
