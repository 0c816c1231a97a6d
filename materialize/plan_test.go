package materialize

import (
	"testing"

	"github.com/gurre/csvfusion/model"
)

func TestBuildPlanOrdersFilesAndBlocks(t *testing.T) {
	ordersID := "orders"
	m := model.Mapping{
		Blocks: []model.FileBlock{
			{BlockID: "b2", FilePath: "b.csv", StartLine: 0, ByteSpan: model.ByteSpan{Start: 0, End: 10}},
			{BlockID: "b1a", FilePath: "a.csv", StartLine: 10, ByteSpan: model.ByteSpan{Start: 10, End: 20}},
			{BlockID: "b1b", FilePath: "a.csv", StartLine: 0, ByteSpan: model.ByteSpan{Start: 0, End: 10}},
		},
		Schemas: []model.SchemaDefinition{
			{
				SchemaID:          "s1",
				CanonicalSchemaID: &ordersID,
				BlocksByFile: map[string][]string{
					"a.csv": {"b1a", "b1b"},
					"b.csv": {"b2"},
				},
			},
			{SchemaID: "s2"}, // no canonical binding, should be skipped
		},
	}
	canon := map[string]model.CanonicalSchema{
		"orders": {Namespace: "retail", ID: "orders", Version: 1},
	}

	tasks := BuildPlan(m, canon)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task (unbound schema skipped), got %d", len(tasks))
	}
	task := tasks[0]
	if len(task.Files) != 2 || task.Files[0].FilePath != "a.csv" || task.Files[1].FilePath != "b.csv" {
		t.Fatalf("expected files sorted a.csv, b.csv, got %+v", task.Files)
	}
	aBlocks := task.Files[0].Blocks
	if len(aBlocks) != 2 || aBlocks[0].BlockID != "b1b" || aBlocks[1].BlockID != "b1a" {
		t.Fatalf("expected a.csv blocks sorted by start line, got %+v", aBlocks)
	}
}
