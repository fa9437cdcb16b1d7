// Package sqlitedb provides the sqlite source and endpoint through GORM
// with the pure-Go glebarez driver, so pipelines can target a local
// database file with no cgo toolchain.
package sqlitedb

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alexisbeaulieu97/dft/internal/component"
)

func open(spec component.Spec) (*gorm.DB, error) {
	path := spec.ConnString("path", spec.String("path", ""))
	if path == "" {
		return nil, fmt.Errorf("step %q: sqlite requires a path (config or connection)", spec.StepID)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// Source runs one query against a sqlite database file.
//
// Config:
//
//	query: select id, name from users
//	connection: local_db    # connection provides path
type Source struct {
	spec  component.Spec
	query string
}

// NewSource builds a sqlite source from config.
func NewSource(spec component.Spec) (component.Source, error) {
	query, err := spec.RequireString("query")
	if err != nil {
		return nil, err
	}
	return &Source{spec: spec, query: query}, nil
}

// Extract runs the query and materializes the result set.
func (s *Source) Extract(ctx context.Context, _ component.Vars) (*component.Packet, error) {
	db, err := open(s.spec)
	if err != nil {
		return nil, err
	}
	defer closeDB(db)

	rows, err := db.WithContext(ctx).Raw(s.query).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	table := &component.Table{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return component.NewPacket(table), nil
}

// TestConnection opens the database and pings it.
func (s *Source) TestConnection(ctx context.Context) (bool, error) {
	db, err := open(s.spec)
	if err != nil {
		return false, err
	}
	defer closeDB(db)

	sqlDB, err := db.DB()
	if err != nil {
		return false, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Endpoint inserts packets into a sqlite table. Modes: append (default),
// replace (truncate first). When event_time_column is declared and the run
// is a microbatch window, rows inside [batch_start, batch_end) are deleted
// before the insert.
//
// Config:
//
//	table: events
//	mode: append            # append | replace
//	event_time_column: event_date
type Endpoint struct {
	spec            component.Spec
	table           string
	mode            string
	eventTimeColumn string
}

// NewEndpoint builds a sqlite endpoint from config.
func NewEndpoint(spec component.Spec) (component.Endpoint, error) {
	table, err := spec.RequireString("table")
	if err != nil {
		return nil, err
	}

	mode := spec.String("mode", "append")
	if mode != "append" && mode != "replace" {
		return nil, fmt.Errorf("step %q: unsupported mode %q", spec.StepID, mode)
	}

	return &Endpoint{
		spec:            spec,
		table:           table,
		mode:            mode,
		eventTimeColumn: spec.String("event_time_column", ""),
	}, nil
}

// Load performs the window-replace delete (when applicable) and the insert
// inside one transaction.
func (e *Endpoint) Load(ctx context.Context, packet *component.Packet, vars component.Vars) error {
	db, err := open(e.spec)
	if err != nil {
		return err
	}
	defer closeDB(db)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if e.mode == "replace" {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s", quoteIdent(e.table))).Error; err != nil {
				return err
			}
		}

		if window, ok := component.WindowFromVars(vars); ok && e.eventTimeColumn != "" {
			del := fmt.Sprintf(
				"DELETE FROM %s WHERE %s >= ? AND %s < ?",
				quoteIdent(e.table), quoteIdent(e.eventTimeColumn), quoteIdent(e.eventTimeColumn),
			)
			if err := tx.Exec(del, window.Start, window.End).Error; err != nil {
				return err
			}
		}

		if packet.Data.NumRows() == 0 {
			return nil
		}

		rows := make([]map[string]any, 0, len(packet.Data.Rows))
		for _, row := range packet.Data.Rows {
			record := make(map[string]any, len(packet.Data.Columns))
			for i, col := range packet.Data.Columns {
				if i < len(row) {
					record[col] = row[i]
				}
			}
			rows = append(rows, record)
		}

		return tx.Table(e.table).Create(rows).Error
	})
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
