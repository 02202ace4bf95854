package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avrbridge/avrbridge-go/pkg/log"
)

var ts = time.Date(2026, 3, 2, 19, 4, 11, 250000000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.alog")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func sampleEvents() []log.Event {
	conn1 := "1f2e3d4c-0000-4000-8000-000000000001"
	conn2 := "9a8b7c6d-0000-4000-8000-000000000002"
	return []log.Event{
		{
			Timestamp: ts, ConnectionID: conn1, Layer: log.LayerSession, Category: log.CategoryState,
			RemoteAddr:  "192.168.1.50:23",
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, NewState: "CONNECTED"},
		},
		{
			Timestamp: ts.Add(time.Millisecond), ConnectionID: conn1, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryFrame, Model: "T778",
			Frame: log.NewFrameEvent([]byte("\nMain.Model=T778\r")),
		},
		{
			Timestamp: ts.Add(2 * time.Millisecond), ConnectionID: conn1, Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryFrame, Model: "T778",
			Line: &log.LineEvent{Name: "Main.Volume", Operator: "+"},
		},
		{
			Timestamp: ts.Add(3 * time.Millisecond), ConnectionID: conn1, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryTelemetry, Model: "T778",
			Line: &log.LineEvent{Name: "Main.Temp.PSU", Value: "33", Unsolicited: true},
		},
		{
			Timestamp: ts.Add(4 * time.Millisecond), ConnectionID: conn1, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryFrame, Model: "T778",
			Line: &log.LineEvent{Name: "Main.Volume", Value: "-47"},
		},
		{
			Timestamp: ts.Add(time.Second), ConnectionID: conn2, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "connection reset", Context: "read"},
		},
	}
}

func TestFormatEvents(t *testing.T) {
	var buf bytes.Buffer
	for _, e := range sampleEvents() {
		formatEvent(&buf, e)
	}
	out := buf.String()

	for _, want := range []string{
		"2026-03-02T19:04:11.250000Z [conn:1f2e3d4c]",
		"SESSION State",
		"-> CONNECTED",
		"TRANSPORT Frame",
		`Data: "\nMain.Model=T778\r"`,
		"OUT WIRE Line",
		"Main.Volume+",
		"WIRE Telemetry",
		"Main.Temp.PSU=33",
		"Unsolicited",
		"Main.Volume=-47",
		"Model: T778",
		"Message: connection reset",
		"Context: read",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShortenConnID(t *testing.T) {
	if got := shortenConnID("abc"); got != "abc" {
		t.Errorf("shortenConnID(abc) = %q", got)
	}
	if got := shortenConnID("1234567890"); got != "12345678" {
		t.Errorf("shortenConnID = %q", got)
	}
}

func TestRunViewFilters(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	tests := []struct {
		name  string
		opts  FilterOptions
		count int
	}{
		{"all", FilterOptions{}, 6},
		{"wire layer", FilterOptions{Layer: "wire"}, 3},
		{"outbound", FilterOptions{Direction: "OUT"}, 1},
		{"telemetry", FilterOptions{Category: "telemetry"}, 1},
		{"name prefix", FilterOptions{Name: "Main.Volume"}, 2},
		{"conn prefix", FilterOptions{ConnID: "9a8b7c6d"}, 1},
		{"model", FilterOptions{Model: "T778"}, 4},
		{"time window", FilterOptions{TimeStart: ts.Add(500 * time.Millisecond).Format(time.RFC3339Nano)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := RunView(path, tt.opts, &buf); err != nil {
				t.Fatalf("RunView: %v", err)
			}
			if got := strings.Count(buf.String(), "[conn:"); got != tt.count {
				t.Errorf("got %d events, want %d\n%s", got, tt.count, buf.String())
			}
		})
	}
}

func TestRunViewInvalidFlags(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	for _, opts := range []FilterOptions{
		{Layer: "service"},
		{Direction: "sideways"},
		{Category: "message"},
		{TimeEnd: "yesterday"},
	} {
		if err := RunView(path, opts, &bytes.Buffer{}); err == nil {
			t.Errorf("RunView(%+v) succeeded, want error", opts)
		}
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "nope.alog"), FilterOptions{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.alog")

	n, err := RunFilter(path, FilterOptions{Output: out, ConnID: "1f2e", Layer: "wire"})
	if err != nil {
		t.Fatalf("RunFilter: %v", err)
	}
	if n != 3 {
		t.Errorf("RunFilter wrote %d events, want 3", n)
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("output has %d events, want 3", len(events))
	}
	for _, e := range events {
		if e.Layer != log.LayerWire {
			t.Errorf("unexpected layer %s", e.Layer)
		}
	}
}

func TestRunFilterBadOptionsCreatesNothing(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.alog")

	if _, err := RunFilter(path, FilterOptions{Output: out, Layer: "bogus"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output file should not exist, stat err = %v", err)
	}
}

func TestCollectStats(t *testing.T) {
	stats, err := Collect(createTestLogFile(t, sampleEvents()))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if stats.TotalEvents != 6 {
		t.Errorf("TotalEvents = %d, want 6", stats.TotalEvents)
	}
	if stats.EventsByLayer[log.LayerWire] != 3 {
		t.Errorf("wire events = %d, want 3", stats.EventsByLayer[log.LayerWire])
	}
	if stats.Commands["Main.Volume"] != 1 {
		t.Errorf("Main.Volume sent = %d, want 1", stats.Commands["Main.Volume"])
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if len(stats.Connections) != 2 {
		t.Fatalf("Connections = %d, want 2", len(stats.Connections))
	}

	c := stats.Connections["1f2e3d4c-0000-4000-8000-000000000001"]
	if c.Model != "T778" || c.RemoteAddr != "192.168.1.50:23" || c.Telemetry != 1 {
		t.Errorf("connection stats = %+v", c)
	}
	if !stats.TimeRange.End.Equal(ts.Add(time.Second)) {
		t.Errorf("TimeRange.End = %v", stats.TimeRange.End)
	}
}

func TestRunStatsOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := RunStats(createTestLogFile(t, sampleEvents()), &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Total Events: 6", "TELEMETRY:", "Commands Sent:", "Connections: 2", "Model: T778", "Errors: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "capture.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e log.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		lines++
	}
	if lines != 6 {
		t.Errorf("exported %d lines, want 6", lines)
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "capture.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("got %d rows, want 7", len(rows))
	}
	if rows[3][8] != "Main.Volume" || rows[3][9] != "+" {
		t.Errorf("command row = %v", rows[3])
	}
}

func TestRunExportUnknownFormat(t *testing.T) {
	if err := RunExport("unused", "xml", ""); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
