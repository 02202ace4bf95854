// Command avr-log views and analyzes receiver protocol captures.
//
// Captures are written by avrctl and stub-receiver when run with the
// -protocol-log flag.
//
// Usage:
//
//	avr-log <command> [flags] <file.alog>
//
// Commands:
//
//	view     View capture in human-readable format
//	export   Export capture to JSONL or CSV
//	filter   Filter capture and write to new file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View only wire-layer lines
//	avr-log view -layer wire session.alog
//
//	# View telemetry pushed by the receiver
//	avr-log view -category telemetry session.alog
//
//	# View all volume traffic
//	avr-log view -name Main.Volume session.alog
//
//	# Keep one connection
//	avr-log filter -conn-id 1f2e3d4c -o one.alog session.alog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/avrbridge/avrbridge-go/cmd/avr-log/commands"
)

const usage = `avr-log - receiver protocol capture analyzer

Usage:
  avr-log <command> [flags] <file.alog>

Commands:
  view     View capture in human-readable format
  export   Export capture to JSONL or CSV
  filter   Filter capture and write to new file
  stats    Show statistics about the capture

Use "avr-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// selectionFlags registers the flags shared by view and filter.
func selectionFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID prefix")
	fs.StringVar(&opts.ConnID, "conn", "", "Shorthand for -conn-id")
	fs.StringVar(&opts.Model, "model", "", "Filter by receiver model")
	fs.StringVar(&opts.Name, "name", "", "Filter lines by command name prefix")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, session)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (frame, telemetry, state, error)")
	return opts
}

func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "avr-log view - View capture in human-readable format\n\nUsage:\n  avr-log view [flags] <file.alog>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	opts := selectionFlags(fs)
	path := parseArgs(fs, args)

	if err := commands.RunView(path, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "avr-log export - Export capture to JSONL or CSV\n\nUsage:\n  avr-log export [flags] <file.alog>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseArgs(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "avr-log filter - Filter capture and write to new file\n\nUsage:\n  avr-log filter [flags] <file.alog>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	opts := selectionFlags(fs)
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	path := parseArgs(fs, args)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "avr-log stats - Show statistics about the capture\n\nUsage:\n  avr-log stats <file.alog>\n")
	}
	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
