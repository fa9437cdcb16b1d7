// Package memory holds the in-process components: a static source, small
// row processors, and a console endpoint. They are the reference
// implementations of the component contract and the workhorses of the test
// suite and example projects.
package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alexisbeaulieu97/dft/internal/component"
)

// StaticSource emits the rows declared inline in its config.
//
// Config:
//
//	columns: [id, name]
//	rows:
//	  - [1, alice]
//	  - [2, bob]
type StaticSource struct {
	columns []string
	rows    [][]any
}

// NewStaticSource builds a static source from config.
func NewStaticSource(spec component.Spec) (component.Source, error) {
	columns := spec.StringSlice("columns")
	if len(columns) == 0 {
		return nil, fmt.Errorf("step %q: static source requires columns", spec.StepID)
	}

	var rows [][]any
	if raw, ok := spec.Config["rows"].([]any); ok {
		for i, item := range raw {
			row, ok := item.([]any)
			if !ok {
				return nil, fmt.Errorf("step %q: row %d is not a list", spec.StepID, i)
			}
			if len(row) != len(columns) {
				return nil, fmt.Errorf("step %q: row %d has %d values, want %d", spec.StepID, i, len(row), len(columns))
			}
			rows = append(rows, row)
		}
	}

	return &StaticSource{columns: columns, rows: rows}, nil
}

// Extract returns the declared rows as one packet.
func (s *StaticSource) Extract(_ context.Context, _ component.Vars) (*component.Packet, error) {
	rows := make([][]any, len(s.rows))
	for i, row := range s.rows {
		rows[i] = append([]any(nil), row...)
	}
	return component.NewPacket(&component.Table{Columns: append([]string(nil), s.columns...), Rows: rows}), nil
}

// TestConnection always succeeds for in-memory data.
func (s *StaticSource) TestConnection(context.Context) (bool, error) {
	return true, nil
}

// PassthroughProcessor forwards its input unchanged.
type PassthroughProcessor struct{}

// NewPassthroughProcessor builds a passthrough processor.
func NewPassthroughProcessor(component.Spec) (component.Processor, error) {
	return &PassthroughProcessor{}, nil
}

// Process returns the input packet.
func (p *PassthroughProcessor) Process(_ context.Context, packet *component.Packet, _ component.Vars) (*component.Packet, error) {
	return packet, nil
}

// FilterProcessor keeps rows whose column equals (or differs from) a value.
//
// Config:
//
//	column: status
//	op: eq            # eq | ne
//	value: active
type FilterProcessor struct {
	column string
	op     string
	value  string
}

// NewFilterProcessor builds a filter from config.
func NewFilterProcessor(spec component.Spec) (component.Processor, error) {
	column, err := spec.RequireString("column")
	if err != nil {
		return nil, err
	}
	value, err := spec.RequireString("value")
	if err != nil {
		return nil, err
	}
	op := spec.String("op", "eq")
	if op != "eq" && op != "ne" {
		return nil, fmt.Errorf("step %q: unsupported filter op %q", spec.StepID, op)
	}
	return &FilterProcessor{column: column, op: op, value: value}, nil
}

// Process drops the rows that fail the predicate.
func (p *FilterProcessor) Process(_ context.Context, packet *component.Packet, _ component.Vars) (*component.Packet, error) {
	idx := packet.Data.ColumnIndex(p.column)
	if idx < 0 {
		return nil, fmt.Errorf("filter column %q not in packet", p.column)
	}

	out := &component.Table{Columns: append([]string(nil), packet.Data.Columns...)}
	for _, row := range packet.Data.Rows {
		matches := fmt.Sprintf("%v", row[idx]) == p.value
		if (p.op == "eq" && matches) || (p.op == "ne" && !matches) {
			out.Rows = append(out.Rows, row)
		}
	}

	result := component.NewPacket(out)
	for k, v := range packet.Metadata {
		result.Metadata[k] = v
	}
	return result, nil
}

// RenameColumnsProcessor renames columns by a mapping.
//
// Config:
//
//	mapping:
//	  old_name: new_name
type RenameColumnsProcessor struct {
	mapping map[string]string
}

// NewRenameColumnsProcessor builds a rename processor from config.
func NewRenameColumnsProcessor(spec component.Spec) (component.Processor, error) {
	raw, ok := spec.Config["mapping"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("step %q: rename_columns requires a mapping", spec.StepID)
	}

	mapping := make(map[string]string, len(raw))
	for from, to := range raw {
		name, ok := to.(string)
		if !ok {
			return nil, fmt.Errorf("step %q: mapping for %q must be a string", spec.StepID, from)
		}
		mapping[from] = name
	}
	return &RenameColumnsProcessor{mapping: mapping}, nil
}

// Process rewrites the column header, leaving rows untouched.
func (p *RenameColumnsProcessor) Process(_ context.Context, packet *component.Packet, _ component.Vars) (*component.Packet, error) {
	columns := make([]string, len(packet.Data.Columns))
	for i, col := range packet.Data.Columns {
		if renamed, ok := p.mapping[col]; ok {
			columns[i] = renamed
		} else {
			columns[i] = col
		}
	}

	out := component.NewPacket(&component.Table{Columns: columns, Rows: packet.Data.Rows})
	for k, v := range packet.Metadata {
		out.Metadata[k] = v
	}
	return out, nil
}

// ConsoleEndpoint prints row counts (and optionally rows) to a writer.
// Useful for smoke-testing a pipeline before pointing it at a real
// destination.
type ConsoleEndpoint struct {
	out      io.Writer
	withRows bool
}

// NewConsoleEndpoint builds a console endpoint from config.
func NewConsoleEndpoint(spec component.Spec) (component.Endpoint, error) {
	return &ConsoleEndpoint{out: os.Stdout, withRows: spec.Bool("print_rows", false)}, nil
}

// Load writes a one-line summary per packet.
func (e *ConsoleEndpoint) Load(_ context.Context, packet *component.Packet, _ component.Vars) error {
	fmt.Fprintf(e.out, "%d row(s): %s\n", packet.Data.NumRows(), strings.Join(packet.Data.Columns, ", "))
	if e.withRows {
		for _, row := range packet.Data.Rows {
			fmt.Fprintf(e.out, "%v\n", row)
		}
	}
	return nil
}
