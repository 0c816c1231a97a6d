package materialize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gurre/csvfusion/checkpoint"
	"github.com/gurre/csvfusion/config"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/writer"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunnerMaterializesSingleTask(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "orders.csv", "id,total\n1,9.99\n2,4.50\n3,1.00\n")

	canonID := "orders"
	canon := model.CanonicalSchema{
		Namespace: "retail",
		ID:        "orders",
		Version:   1,
		Columns: []model.CanonicalColumn{
			{Name: "id", DataType: model.TypeNumeric, Required: true},
			{Name: "total", DataType: model.TypeNumeric, Required: true},
		},
	}

	headerLen := int64(len("id,total\n"))
	block := model.FileBlock{
		BlockID:   "block-1",
		FilePath:  path,
		StartLine: 1,
		EndLine:   4,
		ByteSpan:  model.ByteSpan{Start: headerLen, End: int64(len("id,total\n1,9.99\n2,4.50\n3,1.00\n"))},
		Signature: model.SchemaSignature{Delimiter: model.DelimComma},
	}

	m := model.Mapping{
		Blocks: []model.FileBlock{block},
		Schemas: []model.SchemaDefinition{
			{
				SchemaID:          "s1",
				CanonicalSchemaID: &canonID,
				Columns: []model.SchemaColumn{
					{Index: 0, DominantType: model.TypeNumeric},
					{Index: 1, DominantType: model.TypeNumeric},
				},
				BlocksByFile: map[string][]string{path: {"block-1"}},
			},
		},
	}
	canonMap := map[string]model.CanonicalSchema{"orders": canon}

	tasks := BuildPlan(m, canonMap)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}

	captured := &testWriter{}
	profile := config.LowMemory()
	profile.WriterChunkRows = 100
	profile.SpillThreshold = 100
	profile.ResourceLimits.TempDir = t.TempDir()

	r := New(profile, "job-1", t.TempDir(), func() writer.Writer { return captured }, checkpoint.NewMemoryStore(), nil)

	if err := r.Run(context.Background(), tasks, model.HeaderClusterDocument{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var totalRows int
	for _, batch := range captured.batches {
		totalRows += len(batch)
	}
	if totalRows != 3 {
		t.Fatalf("expected 3 data rows written, got %d across %d batches", totalRows, len(captured.batches))
	}
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "orders.csv", "id,total\n1,9.99\n2,4.50\n")

	canonID := "orders"
	canon := model.CanonicalSchema{
		Namespace: "retail",
		ID:        "orders",
		Version:   1,
		Columns: []model.CanonicalColumn{
			{Name: "id", DataType: model.TypeNumeric},
			{Name: "total", DataType: model.TypeNumeric},
		},
	}
	content := "id,total\n1,9.99\n2,4.50\n"
	block := model.FileBlock{
		BlockID:   "block-1",
		FilePath:  path,
		ByteSpan:  model.ByteSpan{Start: 0, End: int64(len(content))},
		Signature: model.SchemaSignature{Delimiter: model.DelimComma},
	}
	m := model.Mapping{
		Blocks: []model.FileBlock{block},
		Schemas: []model.SchemaDefinition{
			{SchemaID: "s1", CanonicalSchemaID: &canonID, BlocksByFile: map[string][]string{path: {"block-1"}}},
		},
	}
	canonMap := map[string]model.CanonicalSchema{"orders": canon}
	tasks := BuildPlan(m, canonMap)

	cpStore := checkpoint.NewMemoryStore()
	captured := &testWriter{}
	profile := config.LowMemory()
	profile.ResourceLimits.TempDir = t.TempDir()
	r := New(profile, "job-2", t.TempDir(), func() writer.Writer { return captured }, cpStore, nil)

	if err := r.Run(context.Background(), tasks, model.HeaderClusterDocument{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run against the same checkpoint store finds no checkpoint for
	// the schema (it was cleared when the task completed), so it processes
	// the schema again from its first block rather than erroring.
	captured2 := &testWriter{}
	r2 := New(profile, "job-2", t.TempDir(), func() writer.Writer { return captured2 }, cpStore, nil)
	if err := r2.Run(context.Background(), tasks, model.HeaderClusterDocument{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
}
