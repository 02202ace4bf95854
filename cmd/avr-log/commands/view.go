// Package commands implements the avr-log subcommands.
package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/avrbridge/avrbridge-go/pkg/log"
)

const timeFormat = "2006-01-02T15:04:05.000000Z"

// RunView prints the selected events of the capture at path.
func RunView(path string, opts FilterOptions, w io.Writer) error {
	return each(path, opts, func(e log.Event) error {
		formatEvent(w, e)
		return nil
	})
}

// formatEvent writes one event, header line first.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timeFormat)
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n",
		ts, shortenConnID(event.ConnectionID), event.Direction, event.Layer, typeLabel(event))

	switch {
	case event.Frame != nil:
		fmt.Fprintf(w, "  Size: %d bytes\n", event.Frame.Size)
		if len(event.Frame.Data) > 0 {
			fmt.Fprintf(w, "  Data: %s", strconv.Quote(string(event.Frame.Data)))
			if event.Frame.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
	case event.Line != nil:
		l := event.Line
		fmt.Fprintf(w, "  %s\n", l.Text())
		if l.Unsolicited {
			fmt.Fprintln(w, "  Unsolicited")
		}
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.Error != nil:
		fmt.Fprintf(w, "  Layer: %s\n", event.Error.Layer)
		fmt.Fprintf(w, "  Message: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}
	if event.Model != "" {
		fmt.Fprintf(w, "  Model: %s\n", event.Model)
	}

	fmt.Fprintln(w)
}

func typeLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Line != nil:
		if event.Category == log.CategoryTelemetry {
			return "Telemetry"
		}
		return "Line"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
