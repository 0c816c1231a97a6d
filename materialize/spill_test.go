package materialize

import (
	"context"
	"testing"

	"github.com/gurre/csvfusion/model"
)

// testWriter is a minimal in-memory writer.Writer used to assert what
// SpillBuffer.Drain hands off, without depending on any real sink.
type testWriter struct {
	batches [][][]string
	cursor  map[string]any
}

func (w *testWriter) Open(ctx context.Context, destination string, schema model.CanonicalSchema, cursor map[string]any) error {
	w.cursor = cursor
	return nil
}
func (w *testWriter) WriteRows(ctx context.Context, rows [][]string) error {
	w.batches = append(w.batches, rows)
	return nil
}
func (w *testWriter) Rotate(ctx context.Context) error { return nil }
func (w *testWriter) Cursor() map[string]any           { return w.cursor }
func (w *testWriter) Close(ctx context.Context) error  { return nil }

func TestSpillBufferStaysInMemoryUnderThreshold(t *testing.T) {
	b := NewSpillBuffer(10, t.TempDir())
	for i := 0; i < 5; i++ {
		if err := b.Push([]string{"v"}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if b.Spills != 0 {
		t.Errorf("expected no spills under threshold, got %d", b.Spills)
	}
}

func TestSpillBufferOverflowsToDisk(t *testing.T) {
	b := NewSpillBuffer(2, t.TempDir())
	for i := 0; i < 5; i++ {
		if err := b.Push([]string{"v", itoa(i)}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if b.Spills != 1 {
		t.Errorf("expected exactly 1 spill file, got %d", b.Spills)
	}
	if b.RowsSpilled != 3 {
		t.Errorf("expected 3 rows spilled (5 - threshold 2), got %d", b.RowsSpilled)
	}
}

func TestSpillBufferDrainPreservesOrder(t *testing.T) {
	b := NewSpillBuffer(2, t.TempDir())
	w := &testWriter{}
	for i := 0; i < 5; i++ {
		if err := b.Push([]string{itoa(i)}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if err := b.Drain(context.Background(), w); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	var got []string
	for _, batch := range w.batches {
		for _, row := range batch {
			got = append(got, row[0])
		}
	}
	want := []string{"0", "1", "2", "3", "4"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if b.Spills != 1 {
		t.Errorf("expected Drain to keep the cumulative spill count, Spills=%d", b.Spills)
	}
}

func itoa(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}
