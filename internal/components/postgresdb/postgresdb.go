// Package postgresdb provides the postgres source and endpoint over pgx.
// Connection fields come from the project connection record referenced by
// the step.
package postgresdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/alexisbeaulieu97/dft/internal/component"
)

func connString(spec component.Spec) (string, error) {
	fields, ok := spec.Connection()
	if !ok {
		return "", fmt.Errorf("step %q: postgres requires a connection reference", spec.StepID)
	}

	host, _ := fields["host"].(string)
	database, _ := fields["database"].(string)
	if host == "" || database == "" {
		return "", fmt.Errorf("step %q: postgres connection requires host and database", spec.StepID)
	}

	parts := []string{
		"host=" + host,
		"dbname=" + database,
	}
	if port := fieldString(fields, "port"); port != "" {
		parts = append(parts, "port="+port)
	}
	if user, _ := fields["user"].(string); user != "" {
		parts = append(parts, "user="+user)
	}
	if password, _ := fields["password"].(string); password != "" {
		parts = append(parts, "password="+password)
	}
	if sslmode, _ := fields["sslmode"].(string); sslmode != "" {
		parts = append(parts, "sslmode="+sslmode)
	}

	return strings.Join(parts, " "), nil
}

func fieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%d", int(v))
	default:
		return ""
	}
}

// Source runs one query against a postgres database.
//
// Config:
//
//	query: select id, event_date from raw.events where event_date >= '{{ batch_start }}'
//	connection: warehouse
type Source struct {
	conn  string
	query string
}

// NewSource builds a postgres source from config.
func NewSource(spec component.Spec) (component.Source, error) {
	query, err := spec.RequireString("query")
	if err != nil {
		return nil, err
	}
	conn, err := connString(spec)
	if err != nil {
		return nil, err
	}
	return &Source{conn: conn, query: query}, nil
}

// Extract runs the query and materializes the result set.
func (s *Source) Extract(ctx context.Context, _ component.Vars) (*component.Packet, error) {
	conn, err := pgx.Connect(ctx, s.conn)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx) //nolint:errcheck

	rows, err := conn.Query(ctx, s.query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	descriptions := rows.FieldDescriptions()
	columns := make([]string, len(descriptions))
	for i, d := range descriptions {
		columns[i] = d.Name
	}

	table := &component.Table{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return component.NewPacket(table), nil
}

// TestConnection pings the server.
func (s *Source) TestConnection(ctx context.Context) (bool, error) {
	conn, err := pgx.Connect(ctx, s.conn)
	if err != nil {
		return false, err
	}
	defer conn.Close(ctx) //nolint:errcheck

	if err := conn.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Endpoint inserts packets into a postgres table. Modes: append (default),
// replace (truncate first). When event_time_column is declared and the run
// is a microbatch window, rows inside [batch_start, batch_end) are deleted
// before the insert, inside the same transaction.
//
// Config:
//
//	table: analytics.events
//	mode: append            # append | replace
//	event_time_column: event_date
type Endpoint struct {
	conn            string
	table           string
	mode            string
	eventTimeColumn string
}

// NewEndpoint builds a postgres endpoint from config.
func NewEndpoint(spec component.Spec) (component.Endpoint, error) {
	table, err := spec.RequireString("table")
	if err != nil {
		return nil, err
	}

	mode := spec.String("mode", "append")
	if mode != "append" && mode != "replace" {
		return nil, fmt.Errorf("step %q: unsupported mode %q", spec.StepID, mode)
	}

	conn, err := connString(spec)
	if err != nil {
		return nil, err
	}

	return &Endpoint{
		conn:            conn,
		table:           table,
		mode:            mode,
		eventTimeColumn: spec.String("event_time_column", ""),
	}, nil
}

// Load performs the window-replace delete (when applicable) and a batched
// insert inside one transaction.
func (e *Endpoint) Load(ctx context.Context, packet *component.Packet, vars component.Vars) error {
	conn, err := pgx.Connect(ctx, e.conn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx) //nolint:errcheck

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if e.mode == "replace" {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+quoteQualified(e.table)); err != nil {
			return err
		}
	}

	if window, ok := component.WindowFromVars(vars); ok && e.eventTimeColumn != "" {
		del := fmt.Sprintf(
			"DELETE FROM %s WHERE %s >= $1 AND %s < $2",
			quoteQualified(e.table), quoteIdent(e.eventTimeColumn), quoteIdent(e.eventTimeColumn),
		)
		if _, err := tx.Exec(ctx, del, window.Start, window.End); err != nil {
			return err
		}
	}

	if packet.Data.NumRows() > 0 {
		batch := &pgx.Batch{}
		insert := insertStatement(e.table, packet.Data.Columns)
		for _, row := range packet.Data.Rows {
			batch.Queue(insert, row...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteQualified(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualified quotes a possibly schema-qualified table name.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quoteIdent(part)
	}
	return strings.Join(parts, ".")
}
