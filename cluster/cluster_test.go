package cluster

import (
	"testing"

	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/synonyms"
)

func textProfile(name string) model.ColumnProfile {
	n := name
	return model.ColumnProfile{
		Name:  &n,
		Index: 0,
		TypeHist: model.TypeHistogram{
			Text: 10,
		},
	}
}

func TestClusterCanonicalHeaders(t *testing.T) {
	m := model.Mapping{
		Blocks: []model.FileBlock{
			{FilePath: "a.csv", ColumnProfiles: []model.ColumnProfile{textProfile("Customer ID")}},
			{FilePath: "b.csv", ColumnProfiles: []model.ColumnProfile{textProfile("customer id")}},
			{FilePath: "c.csv", ColumnProfiles: []model.ColumnProfile{textProfile("Customer-Id")}},
		},
	}

	doc := Build(m, nil, nil)
	if len(doc.Clusters) != 1 {
		t.Fatalf("expected a single cluster, got %d", len(doc.Clusters))
	}
	c := doc.Clusters[0]
	if c.NeedsReview {
		t.Errorf("expected needs_review=false, got true (confidence=%v)", c.Confidence)
	}
	if c.Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9, got %v", c.Confidence)
	}
}

func TestClusterStabilityUnderAddition(t *testing.T) {
	base := model.Mapping{
		Blocks: []model.FileBlock{
			{FilePath: "a.csv", ColumnProfiles: []model.ColumnProfile{textProfile("Customer ID")}},
			{FilePath: "b.csv", ColumnProfiles: []model.ColumnProfile{textProfile("customer id")}},
		},
	}
	first := Build(base, nil, nil)
	if first.Clusters[0].CanonicalName != "Customer ID" {
		t.Fatalf("expected canonical name 'Customer ID', got %q", first.Clusters[0].CanonicalName)
	}

	withAddition := model.Mapping{
		Blocks: append(base.Blocks, model.FileBlock{
			FilePath:       "c.csv",
			ColumnProfiles: []model.ColumnProfile{textProfile("cust id")},
		}),
	}
	second := Build(withAddition, &first, nil)
	if second.Clusters[0].CanonicalName != "Customer ID" {
		t.Errorf("expected canonical name to remain 'Customer ID', got %q", second.Clusters[0].CanonicalName)
	}
}

func TestClusterPrefersSynonymDictionarySpelling(t *testing.T) {
	m := model.Mapping{
		Blocks: []model.FileBlock{
			{FilePath: "a.csv", ColumnProfiles: []model.ColumnProfile{textProfile("cust_id")}},
			{FilePath: "b.csv", ColumnProfiles: []model.ColumnProfile{textProfile("cust_id")}},
		},
	}

	doc := Build(m, nil, synonyms.Default())
	if len(doc.Clusters) != 1 {
		t.Fatalf("expected a single cluster, got %d", len(doc.Clusters))
	}
	if got := doc.Clusters[0].CanonicalName; got != "customer id" {
		t.Errorf("expected dictionary spelling 'customer id', got %q", got)
	}
}
