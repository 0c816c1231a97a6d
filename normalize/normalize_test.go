package normalize

import (
	"testing"

	"github.com/gurre/csvfusion/model"
)

func TestDetectFileByCluster(t *testing.T) {
	d := &Detector{
		Clusters: model.HeaderClusterDocument{
			Clusters: []model.HeaderCluster{
				{
					CanonicalName: "Customer ID",
					Members: []model.ClusterMember{
						{FilePath: "a.csv", ColumnIndex: 1, RawName: "cust_id"},
					},
				},
			},
		},
	}
	def := model.SchemaDefinition{
		Columns: []model.SchemaColumn{
			{Index: 0, DominantType: model.TypeText},
			{Index: 1, DominantType: model.TypeNumeric},
		},
	}
	canon := model.CanonicalSchema{
		Columns: []model.CanonicalColumn{
			{Name: "Customer ID", DataType: model.TypeNumeric},
		},
	}

	mapping := d.DetectFile("a.csv", def, canon)
	if len(mapping.Mappings) != 1 {
		t.Fatalf("expected 1 mapping, got %d", len(mapping.Mappings))
	}
	if mapping.Mappings[0].SourceIndex != 1 {
		t.Errorf("expected source index 1, got %d", mapping.Mappings[0].SourceIndex)
	}
}

func TestNormalizedRowMissingSource(t *testing.T) {
	mapping := model.FileSchemaMapping{
		Mappings: []model.ColumnMapping{{SourceIndex: -1, CanonicalIndex: 0}},
	}
	out := NormalizedRow([]string{"a", "b"}, mapping, "")
	if len(out) != 1 || out[0] != "" {
		t.Fatalf("expected null representation for missing source, got %v", out)
	}
}
