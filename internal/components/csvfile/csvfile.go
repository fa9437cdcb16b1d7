// Package csvfile provides the csv source and endpoint. Values cross the
// packet boundary as strings; downstream processors cast as needed.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexisbeaulieu97/dft/internal/component"
)

// Source reads one CSV file into a packet. The first record is the header.
//
// Config:
//
//	path: data/input.csv
//	delimiter: ","
type Source struct {
	path      string
	delimiter rune
}

// NewSource builds a csv source from config.
func NewSource(spec component.Spec) (component.Source, error) {
	path, err := spec.RequireString("path")
	if err != nil {
		return nil, err
	}
	return &Source{path: path, delimiter: delimiterFrom(spec)}, nil
}

// Extract reads the whole file.
func (s *Source) Extract(_ context.Context, _ component.Vars) (*component.Packet, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.Comma = s.delimiter
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return component.NewPacket(&component.Table{}), nil
	}

	table := &component.Table{Columns: records[0]}
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		table.Rows = append(table.Rows, row)
	}

	packet := component.NewPacket(table)
	packet.Metadata["source_path"] = s.path
	return packet, nil
}

// TestConnection checks the file exists.
func (s *Source) TestConnection(context.Context) (bool, error) {
	if _, err := os.Stat(s.path); err != nil {
		return false, err
	}
	return true, nil
}

// Endpoint writes packets to a CSV file. Modes: replace (default) rewrites
// the file; append adds rows. In append mode, when event_time_column is
// declared, rows whose event time falls inside the current batch window are
// deleted from the existing file before this window's rows are appended,
// which makes lookback reprocessing idempotent.
//
// Config:
//
//	path: out/events.csv
//	mode: append            # append | replace
//	event_time_column: event_date
type Endpoint struct {
	path            string
	mode            string
	eventTimeColumn string
	delimiter       rune
}

// NewEndpoint builds a csv endpoint from config.
func NewEndpoint(spec component.Spec) (component.Endpoint, error) {
	path, err := spec.RequireString("path")
	if err != nil {
		return nil, err
	}

	mode := spec.String("mode", "replace")
	if mode != "replace" && mode != "append" {
		return nil, fmt.Errorf("step %q: unsupported mode %q", spec.StepID, mode)
	}

	return &Endpoint{
		path:            path,
		mode:            mode,
		eventTimeColumn: spec.String("event_time_column", ""),
		delimiter:       delimiterFrom(spec),
	}, nil
}

// Load applies window-replace when applicable, then writes. Replace mode
// drops all existing rows regardless of event_time_column, same as the
// database endpoints truncate.
func (e *Endpoint) Load(_ context.Context, packet *component.Packet, vars component.Vars) error {
	var rows [][]any
	if e.mode == "append" {
		existing, err := e.readExisting()
		if err != nil {
			return err
		}
		kept := existing
		if window, ok := component.WindowFromVars(vars); ok && e.eventTimeColumn != "" {
			kept = deleteWindowRows(existing, packet.Data.Columns, e.eventTimeColumn, window)
		}
		rows = append(kept, packet.Data.Rows...)
	} else {
		rows = packet.Data.Rows
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(e.path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	writer := csv.NewWriter(f)
	writer.Comma = e.delimiter
	if err := writer.Write(packet.Data.Columns); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = fmt.Sprintf("%v", cell)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (e *Endpoint) readExisting() ([][]any, error) {
	f, err := os.Open(e.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.Comma = e.delimiter
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) <= 1 {
		return nil, nil
	}

	rows := make([][]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// deleteWindowRows drops existing rows whose event time is inside
// [window.Start, window.End).
func deleteWindowRows(rows [][]any, columns []string, column string, window component.Window) [][]any {
	idx := -1
	for i, col := range columns {
		if col == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return rows
	}

	var kept [][]any
	for _, row := range rows {
		if idx >= len(row) {
			kept = append(kept, row)
			continue
		}
		ts, ok := parseEventTime(row[idx])
		if !ok || ts.Before(window.Start) || !ts.Before(window.End) {
			kept = append(kept, row)
		}
	}
	return kept
}

func parseEventTime(cell any) (time.Time, bool) {
	text := fmt.Sprintf("%v", cell)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func delimiterFrom(spec component.Spec) rune {
	delimiter := spec.String("delimiter", ",")
	if delimiter == "" {
		return ','
	}
	return rune(delimiter[0])
}
