package csvsink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/gurre/csvfusion/model"
)

func testSchema() model.CanonicalSchema {
	return model.CanonicalSchema{
		Namespace: "retail",
		ID:        "orders",
		Version:   1,
		Columns: []model.CanonicalColumn{
			{Name: "id", DataType: model.TypeNumeric},
			{Name: "total", DataType: model.TypeNumeric},
		},
	}
}

func TestWriteRowsAndRotate(t *testing.T) {
	dir := t.TempDir()
	s := New(2)
	ctx := context.Background()

	if err := s.Open(ctx, dir, testSchema(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.WriteRows(ctx, [][]string{{"1", "9.99"}, {"2", "4.50"}, {"3", "1.00"}}); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first := filepath.Join(dir, "orders_v1.part0000.csv")
	second := filepath.Join(dir, "orders_v1.part0001.csv")

	for _, path := range []string{first, second} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected chunk file %s to exist: %v", path, err)
		}
	}

	rows := readAll(t, first)
	if len(rows) != 3 || rows[0][0] != "id" {
		t.Fatalf("expected header + 2 data rows in first chunk, got %v", rows)
	}

	rows = readAll(t, second)
	if len(rows) != 2 || rows[0][0] != "id" {
		t.Fatalf("expected header + 1 data row in second chunk, got %v", rows)
	}
}

func TestOpenResumesChunkOrdinal(t *testing.T) {
	dir := t.TempDir()
	s := New(10)
	ctx := context.Background()

	if err := s.Open(ctx, dir, testSchema(), map[string]any{"chunkOrdinal": float64(3)}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.WriteRows(ctx, [][]string{{"1", "9.99"}}); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "orders_v1.part0003.csv")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected resumed chunk ordinal file %s: %v", path, err)
	}
}

func TestCursorReflectsCurrentOrdinal(t *testing.T) {
	dir := t.TempDir()
	s := New(1)
	ctx := context.Background()
	if err := s.Open(ctx, dir, testSchema(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.WriteRows(ctx, [][]string{{"1", "9.99"}}); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if s.Cursor()["chunkOrdinal"] != 1 {
		t.Errorf("expected chunkOrdinal 1 after one rotation, got %v", s.Cursor())
	}
	_ = s.Close(ctx)
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}
