// Package jsonlfile provides the jsonl source and endpoint over
// newline-delimited JSON files.
package jsonlfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alexisbeaulieu97/dft/internal/component"
)

// Source reads one JSONL file, one object per line. Columns are the union
// of keys seen, sorted, so packet shape is stable across runs.
//
// Config:
//
//	path: data/input.jsonl
type Source struct {
	path string
}

// NewSource builds a jsonl source from config.
func NewSource(spec component.Spec) (component.Source, error) {
	path, err := spec.RequireString("path")
	if err != nil {
		return nil, err
	}
	return &Source{path: path}, nil
}

// Extract reads the whole file.
func (s *Source) Extract(_ context.Context, _ component.Vars) (*component.Packet, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var objects []map[string]any
	keys := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(text, &obj); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", s.path, line, err)
		}
		objects = append(objects, obj)
		for k := range obj {
			keys[k] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(keys))
	for k := range keys {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	table := &component.Table{Columns: columns}
	for _, obj := range objects {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = obj[col]
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

// Endpoint writes packets as JSONL. Same modes and window-replace behavior
// as the csv endpoint.
//
// Config:
//
//	path: out/events.jsonl
//	mode: append            # append | replace
//	event_time_column: event_date
type Endpoint struct {
	path            string
	mode            string
	eventTimeColumn string
}

// NewEndpoint builds a jsonl endpoint from config.
func NewEndpoint(spec component.Spec) (component.Endpoint, error) {
	path, err := spec.RequireString("path")
	if err != nil {
		return nil, err
	}

	mode := spec.String("mode", "replace")
	if mode != "replace" && mode != "append" {
		return nil, fmt.Errorf("step %q: unsupported mode %q", spec.StepID, mode)
	}

	return &Endpoint{path: path, mode: mode, eventTimeColumn: spec.String("event_time_column", "")}, nil
}

// Load applies window-replace when applicable, then writes. Replace mode
// drops all existing rows regardless of event_time_column, same as the
// database endpoints truncate.
func (e *Endpoint) Load(_ context.Context, packet *component.Packet, vars component.Vars) error {
	var kept []map[string]any

	if e.mode == "append" {
		existing, err := e.readExisting()
		if err != nil {
			return err
		}
		kept = existing

		if window, ok := component.WindowFromVars(vars); ok && e.eventTimeColumn != "" {
			kept = kept[:0:0]
			for _, obj := range existing {
				ts, tsOK := parseEventTime(obj[e.eventTimeColumn])
				if !tsOK || ts.Before(window.Start) || !ts.Before(window.End) {
					kept = append(kept, obj)
				}
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(e.path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	writer := bufio.NewWriter(f)
	encode := func(obj map[string]any) error {
		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		if _, err := writer.Write(data); err != nil {
			return err
		}
		return writer.WriteByte('\n')
	}

	for _, obj := range kept {
		if err := encode(obj); err != nil {
			return err
		}
	}
	for _, row := range packet.Data.Rows {
		obj := make(map[string]any, len(packet.Data.Columns))
		for i, col := range packet.Data.Columns {
			if i < len(row) {
				obj[col] = row[i]
			}
		}
		if err := encode(obj); err != nil {
			return err
		}
	}

	return writer.Flush()
}

func (e *Endpoint) readExisting() ([]map[string]any, error) {
	f, err := os.Open(e.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var objects []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &obj); err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, scanner.Err()
}

func parseEventTime(cell any) (time.Time, bool) {
	if cell == nil {
		return time.Time{}, false
	}
	text := fmt.Sprintf("%v", cell)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
