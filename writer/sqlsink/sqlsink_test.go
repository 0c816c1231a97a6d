package sqlsink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/gurre/csvfusion/model"
)

func testSchema() model.CanonicalSchema {
	return model.CanonicalSchema{
		Namespace: "retail",
		ID:        "orders",
		Version:   1,
		Columns: []model.CanonicalColumn{
			{Name: "id", DataType: model.TypeNumeric},
			{Name: "status", DataType: model.TypeText},
		},
	}
}

func TestWriteRowsCommitsInChunks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.sqlite")
	s := New(2)
	ctx := context.Background()

	if err := s.Open(ctx, dbPath, testSchema(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.WriteRows(ctx, [][]string{{"1", "NEW"}, {"2", "PAID"}, {"3", ""}}); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "retail_orders_v1"`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 rows, got %d", count)
	}

	var status sql.NullString
	if err := db.QueryRow(`SELECT "status" FROM "retail_orders_v1" WHERE "id" = ?`, 3.0).Scan(&status); err != nil {
		t.Fatalf("query third row: %v", err)
	}
	if status.Valid {
		t.Errorf("expected null status for empty value, got %q", status.String)
	}
}

func TestCursorTracksRowsTotal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.sqlite")
	s := New(100)
	ctx := context.Background()

	if err := s.Open(ctx, dbPath, testSchema(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.WriteRows(ctx, [][]string{{"1", "NEW"}, {"2", "PAID"}}); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if s.Cursor()["rowsTotal"] != int64(2) {
		t.Errorf("expected rowsTotal 2, got %v", s.Cursor())
	}
	_ = s.Close(ctx)
}

func TestOpenResumesRowsTotal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.sqlite")
	s := New(100)
	ctx := context.Background()
	if err := s.Open(ctx, dbPath, testSchema(), map[string]any{"rowsTotal": float64(40)}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Cursor()["rowsTotal"] != int64(40) {
		t.Errorf("expected resumed rowsTotal 40, got %v", s.Cursor())
	}
	_ = s.Close(ctx)
}
