package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avrbridge/avrbridge-go/pkg/log"
)

// FilterOptions selects events for view and filter.
type FilterOptions struct {
	// Output is the destination file (filter only).
	Output string

	// ConnID matches connection IDs by prefix, so the short form printed
	// by view can be pasted back.
	ConnID    string
	Model     string
	Name      string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// selection is a parsed FilterOptions.
type selection struct {
	filter     log.Filter
	connPrefix string
}

func (s selection) keep(e log.Event) bool {
	return strings.HasPrefix(e.ConnectionID, s.connPrefix)
}

func (opts FilterOptions) selection() (selection, error) {
	sel := selection{
		filter: log.Filter{
			Model: opts.Model,
			Name:  opts.Name,
		},
		connPrefix: opts.ConnID,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return sel, fmt.Errorf("invalid time-start format: %w", err)
		}
		sel.filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return sel, fmt.Errorf("invalid time-end format: %w", err)
		}
		sel.filter.TimeEnd = &t
	}
	if opts.Layer != "" {
		l, err := parseLayer(opts.Layer)
		if err != nil {
			return sel, err
		}
		sel.filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return sel, err
		}
		sel.filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := parseCategory(opts.Category)
		if err != nil {
			return sel, err
		}
		sel.filter.Category = &c
	}
	return sel, nil
}

// each calls fn for every selected event in the capture at path.
func each(path string, opts FilterOptions, fn func(log.Event) error) error {
	sel, err := opts.selection()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, sel.filter)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if !sel.keep(event) {
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// RunFilter writes the selected events to opts.Output and returns how many
// were written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	if _, err := opts.selection(); err != nil {
		return 0, err
	}

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output: %w", err)
	}

	count := 0
	err = each(path, opts, func(e log.Event) error {
		out.Log(e)
		count++
		return nil
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return count, err
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or session)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "frame":
		return log.CategoryFrame, nil
	case "telemetry":
		return log.CategoryTelemetry, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be frame, telemetry, state, or error)", s)
	}
}
