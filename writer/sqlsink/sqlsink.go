// Package sqlsink implements a Writer backed by an embedded SQLite
// database (modernc.org/sqlite, pure Go, no cgo), for destinations that
// want the materialized rows queryable in place rather than shipped as
// flat files.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/gurre/csvfusion/model"
)

// Sink writes canonical rows into a single table per canonical schema.
// Unlike the file sinks, SQLite gives transactional atomicity for free,
// so Rotate is a commit-and-begin-new-transaction boundary rather than a
// file swap: a crash mid-transaction leaves the prior commit intact and
// nothing partially visible.
type Sink struct {
	chunkRows   int
	db          *sql.DB
	table       string
	schema      model.CanonicalSchema
	tx          *sql.Tx
	insertStmt  *sql.Stmt
	rowsInChunk int
	rowsTotal   int64
}

// New returns a Sink that commits a transaction every chunkRows rows.
func New(chunkRows int) *Sink {
	if chunkRows < 1 {
		chunkRows = 1
	}
	return &Sink{chunkRows: chunkRows}
}

// Open opens (creating if absent) the sqlite database file at
// destination and ensures the destination table matches schema.
func (s *Sink) Open(ctx context.Context, destination string, schema model.CanonicalSchema, cursor map[string]any) error {
	db, err := sql.Open("sqlite", destination)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s.db = db
	s.schema = schema
	s.table = tableName(schema)

	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	if cursor != nil {
		if n, ok := cursor["rowsTotal"].(float64); ok {
			s.rowsTotal = int64(n)
		}
	}

	return s.beginChunk(ctx)
}

func tableName(schema model.CanonicalSchema) string {
	return fmt.Sprintf("%s_%s_v%d", sanitize(schema.Namespace), sanitize(schema.ID), schema.Version)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "t"
	}
	return b.String()
}

func columnType(t model.ColumnType) string {
	switch t {
	case model.TypeNumeric:
		return "REAL"
	case model.TypeBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (s *Sink) ensureTable(ctx context.Context) error {
	cols := make([]string, len(s.schema.Columns))
	for i, c := range s.schema.Columns {
		cols[i] = fmt.Sprintf("%q %s", c.Name, columnType(c.DataType))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", s.table, strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) beginChunk(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	placeholders := make([]string, len(s.schema.Columns))
	names := make([]string, len(s.schema.Columns))
	for i, c := range s.schema.Columns {
		placeholders[i] = "?"
		names[i] = fmt.Sprintf("%q", c.Name)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", s.table, strings.Join(names, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}

	s.tx = tx
	s.insertStmt = stmt
	s.rowsInChunk = 0
	return nil
}

// WriteRows inserts rows within the open transaction, committing and
// starting a fresh transaction whenever chunkRows is reached.
func (s *Sink) WriteRows(ctx context.Context, rows [][]string) error {
	for _, row := range rows {
		args := make([]interface{}, len(s.schema.Columns))
		for i, col := range s.schema.Columns {
			var raw string
			if i < len(row) {
				raw = row[i]
			}
			args[i] = toSQLValue(raw, col)
		}
		if _, err := s.insertStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
		s.rowsInChunk++
		s.rowsTotal++
		if s.rowsInChunk >= s.chunkRows {
			if err := s.Rotate(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func toSQLValue(raw string, col model.CanonicalColumn) interface{} {
	if raw == "" {
		return nil
	}
	switch col.DataType {
	case model.TypeNumeric:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		return f
	case model.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil
		}
		return b
	default:
		return raw
	}
}

// Rotate commits the current transaction and opens a new one.
func (s *Sink) Rotate(ctx context.Context) error {
	if err := s.closeChunk(); err != nil {
		return err
	}
	return s.beginChunk(ctx)
}

func (s *Sink) closeChunk() error {
	if s.tx == nil {
		return nil
	}
	if s.insertStmt != nil {
		s.insertStmt.Close()
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk transaction: %w", err)
	}
	s.tx = nil
	return nil
}

// Cursor returns the running row count for checkpoint persistence.
func (s *Sink) Cursor() map[string]any {
	return map[string]any{"rowsTotal": s.rowsTotal}
}

// Close commits any in-progress transaction and closes the database
// handle.
func (s *Sink) Close(ctx context.Context) error {
	if err := s.closeChunk(); err != nil {
		return err
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
