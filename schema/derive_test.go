package schema

import (
	"testing"

	"github.com/gurre/csvfusion/model"
)

func TestDeriveCanonicalNamesFromClusters(t *testing.T) {
	m := &model.Mapping{
		Schemas: []model.SchemaDefinition{
			{
				SchemaID: "s1",
				Columns: []model.SchemaColumn{
					{Index: 0, DominantType: model.TypeNumeric},
					{Index: 1, DominantType: model.TypeText},
				},
				BlocksByFile: map[string][]string{"a.csv": {"b1"}},
			},
		},
	}
	clusters := model.HeaderClusterDocument{
		Clusters: []model.HeaderCluster{
			{CanonicalName: "customer_id", Members: []model.ClusterMember{{FilePath: "a.csv", ColumnIndex: 0}}},
			{CanonicalName: "status", Members: []model.ClusterMember{{FilePath: "a.csv", ColumnIndex: 1}}},
		},
	}

	registry := DeriveCanonical(m, clusters)
	if len(registry) != 1 {
		t.Fatalf("expected 1 canonical schema, got %d", len(registry))
	}
	if m.Schemas[0].CanonicalSchemaID == nil {
		t.Fatalf("expected schema to be bound to a canonical schema")
	}
	cs := registry[*m.Schemas[0].CanonicalSchemaID]
	if cs.Columns[0].Name != "customer_id" || cs.Columns[1].Name != "status" {
		t.Fatalf("expected cluster-derived names, got %+v", cs.Columns)
	}
}

func TestDeriveCanonicalCollapsesIdenticalSignatures(t *testing.T) {
	m := &model.Mapping{
		Schemas: []model.SchemaDefinition{
			{
				SchemaID:     "s1",
				Columns:      []model.SchemaColumn{{Index: 0, DominantType: model.TypeNumeric}},
				BlocksByFile: map[string][]string{"a.csv": {"b1"}},
			},
			{
				SchemaID:     "s2",
				Columns:      []model.SchemaColumn{{Index: 0, DominantType: model.TypeNumeric}},
				BlocksByFile: map[string][]string{"b.csv": {"b2"}},
			},
		},
	}

	registry := DeriveCanonical(m, model.HeaderClusterDocument{})
	if len(registry) != 1 {
		t.Fatalf("expected both schemas to collapse onto one canonical schema, got %d", len(registry))
	}
	if *m.Schemas[0].CanonicalSchemaID != *m.Schemas[1].CanonicalSchemaID {
		t.Fatalf("expected both schemas bound to the same canonical id")
	}
}

func TestDeriveCanonicalSkipsAlreadyBound(t *testing.T) {
	boundID := "pre-bound"
	m := &model.Mapping{
		Schemas: []model.SchemaDefinition{
			{SchemaID: "s1", CanonicalSchemaID: &boundID},
		},
	}
	registry := DeriveCanonical(m, model.HeaderClusterDocument{})
	if len(registry) != 0 {
		t.Fatalf("expected no new canonical schemas for already-bound definitions, got %d", len(registry))
	}
	if *m.Schemas[0].CanonicalSchemaID != boundID {
		t.Fatalf("expected pre-bound id to be preserved")
	}
}
