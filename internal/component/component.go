// Package component defines the narrow contract the engine consumes:
// sources, processors, and endpoints exchanging data packets. A component
// class named FooBarSource registers under the snake-case tag "foo_bar".
package component

import (
	"context"
	"time"
)

// Table is the columnar payload of a packet. Cell values are opaque to the
// engine; only components interpret them.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Packet is the in-memory value flowing between steps within one pipeline
// invocation. It is produced by exactly one step and never persisted.
type Packet struct {
	Data     *Table
	Metadata map[string]string
}

// NewPacket wraps a table with empty metadata.
func NewPacket(data *Table) *Packet {
	return &Packet{Data: data, Metadata: map[string]string{}}
}

// Vars is the rendered variable snapshot a component receives per operation.
type Vars map[string]any

// Window is the half-open batch interval [Start, End) a microbatch plan
// entry covers.
type Window struct {
	Start           time.Time
	End             time.Time
	Period          string
	EventTimeColumn string
}

// WindowFromVars recovers the current batch window from the operation vars,
// when the invocation is a microbatch window. Endpoints use this to honor
// the window-replace contract.
func WindowFromVars(vars Vars) (Window, bool) {
	start, ok1 := vars["batch_start_time"].(time.Time)
	end, ok2 := vars["batch_end_time"].(time.Time)
	if !ok1 || !ok2 {
		return Window{}, false
	}
	period, _ := vars["batch_period"].(string)
	column, _ := vars["event_time_column"].(string)
	return Window{Start: start, End: end, Period: period, EventTimeColumn: column}, true
}

// Source extracts data from an external system into one packet.
type Source interface {
	Extract(ctx context.Context, vars Vars) (*Packet, error)
	TestConnection(ctx context.Context) (bool, error)
}

// Processor transforms exactly one input packet into one output packet.
type Processor interface {
	Process(ctx context.Context, packet *Packet, vars Vars) (*Packet, error)
}

// Endpoint loads one packet into a destination. When its config declares
// event_time_column, the implementation must delete existing destination
// rows inside the current batch window before writing.
type Endpoint interface {
	Load(ctx context.Context, packet *Packet, vars Vars) error
}
