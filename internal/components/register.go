// Package components wires the built-in component implementations into a
// factory. User-provided components register through the same factory from
// their own packages.
package components

import (
	"github.com/alexisbeaulieu97/dft/internal/component"
	"github.com/alexisbeaulieu97/dft/internal/components/csvfile"
	"github.com/alexisbeaulieu97/dft/internal/components/jsonlfile"
	"github.com/alexisbeaulieu97/dft/internal/components/memory"
	"github.com/alexisbeaulieu97/dft/internal/components/postgresdb"
	"github.com/alexisbeaulieu97/dft/internal/components/sqlitedb"
)

// RegisterBuiltins adds every built-in component to the factory.
func RegisterBuiltins(f *component.Factory) {
	f.RegisterSource("static", memory.NewStaticSource)
	f.RegisterSource("csv", csvfile.NewSource)
	f.RegisterSource("jsonl", jsonlfile.NewSource)
	f.RegisterSource("sqlite", sqlitedb.NewSource)
	f.RegisterSource("postgres", postgresdb.NewSource)

	f.RegisterProcessor("passthrough", memory.NewPassthroughProcessor)
	f.RegisterProcessor("filter", memory.NewFilterProcessor)
	f.RegisterProcessor("rename_columns", memory.NewRenameColumnsProcessor)

	f.RegisterEndpoint("console", memory.NewConsoleEndpoint)
	f.RegisterEndpoint("csv", csvfile.NewEndpoint)
	f.RegisterEndpoint("jsonl", jsonlfile.NewEndpoint)
	f.RegisterEndpoint("sqlite", sqlitedb.NewEndpoint)
	f.RegisterEndpoint("postgres", postgresdb.NewEndpoint)
}
