package profiler

import "testing"

func TestProfileBlockRetailSmall(t *testing.T) {
	lines := []string{
		"id,name,price",
		"1,widget,10",
		"2,gadget,20",
		"3,gizmo,30",
		"4,doohickey,40",
		"5,thingamajig,50",
		"6,contraption,60",
	}
	res := ProfileBlock(lines, DefaultConfig())

	if res.Signature.Delimiter != "," {
		t.Fatalf("expected comma delimiter, got %q", res.Signature.Delimiter)
	}
	if !res.HasHeader {
		t.Fatal("expected header to be detected")
	}
	if res.Signature.ColumnCount != 3 {
		t.Fatalf("expected 3 columns, got %d", res.Signature.ColumnCount)
	}
	idCol := res.ColumnProfiles[0]
	if idCol.Nulls != 0 {
		t.Errorf("expected 0 nulls in id column, got %d", idCol.Nulls)
	}
	if idCol.Min == nil || *idCol.Min != "1" {
		t.Errorf("expected min 1, got %v", idCol.Min)
	}
	if idCol.Max == nil || *idCol.Max != "6" {
		t.Errorf("expected max 6, got %v", idCol.Max)
	}
}

func TestProfileBlockMixedDelimiters(t *testing.T) {
	lines := []string{
		"id,name,price",
		"1,widget,10",
		"2;gadget;20",
		"3,gizmo,30",
		"4;doohickey;40",
		"5,thingamajig,50",
	}
	res := ProfileBlock(lines, DefaultConfig())
	if res.Signature.Delimiter != "," {
		t.Fatalf("expected comma to win tie-break, got %q", res.Signature.Delimiter)
	}
	found := false
	for _, w := range res.Warnings {
		if w == "MixedDelimiter" {
			found = true
		}
	}
	if !found {
		t.Error("expected MixedDelimiter warning")
	}
	if res.ShortRows == 0 {
		t.Error("expected short_row count from semicolon rows split on comma")
	}
}

func TestDetectHeaderRejectsAllNumericFirstRow(t *testing.T) {
	rows := [][]string{
		{"1", "2", "3"},
		{"4", "5", "6"},
	}
	if detectHeader(rows, 0.7) {
		t.Error("expected numeric-looking first row to not be a header")
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"":           "null",
		"123":        "numeric",
		"-1.5e10":    "numeric",
		"2024-01-02": "date",
		"true":       "bool",
		"hello":      "text",
	}
	for v, want := range cases {
		if got := classify(v); string(got) != want {
			t.Errorf("classify(%q) = %q, want %q", v, got, want)
		}
	}
}
