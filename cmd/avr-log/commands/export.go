package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/avrbridge/avrbridge-go/pkg/log"
)

// RunExport converts the capture at path to format, written to output
// or stdout when output is empty.
func RunExport(path, format, output string) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "jsonl" {
		return exportJSONL(path, w)
	}
	return exportCSV(path, w)
}

func exportJSONL(path string, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return each(path, FilterOptions{}, func(e log.Event) error {
		if err := encoder.Encode(e); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(path string, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "remote", "model", "type", "name", "value"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := each(path, FilterOptions{}, func(e log.Event) error {
		var name, value string
		switch {
		case e.Line != nil:
			name, value = e.Line.Name, e.Line.Operator+e.Line.Value
		case e.StateChange != nil:
			name, value = e.StateChange.Entity.String(), e.StateChange.NewState
		case e.Error != nil:
			name, value = e.Error.Context, e.Error.Message
		case e.Frame != nil:
			value = string(e.Frame.Data)
		}
		row := []string{
			e.Timestamp.UTC().Format(timeFormat),
			e.ConnectionID,
			e.Direction.String(),
			e.Layer.String(),
			e.Category.String(),
			e.RemoteAddr,
			e.Model,
			typeLabel(e),
			name,
			value,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}
