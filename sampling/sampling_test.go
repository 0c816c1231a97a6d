package sampling

import "testing"

func TestPlanDeterministic(t *testing.T) {
	a := Plan(100_000, 500, 1000)
	b := Plan(100_000, 500, 1000)
	if len(a.Indices) != len(b.Indices) {
		t.Fatalf("non-deterministic index count: %d vs %d", len(a.Indices), len(b.Indices))
	}
	for i := range a.Indices {
		if a.Indices[i] != b.Indices[i] {
			t.Fatalf("non-deterministic index at %d: %d vs %d", i, a.Indices[i], b.Indices[i])
		}
	}
}

func TestPlanContainsEndpoints(t *testing.T) {
	p := Plan(10_000, 200, 500)
	if p.Indices[0] != 0 {
		t.Errorf("expected first index 0, got %d", p.Indices[0])
	}
	if last := p.Indices[len(p.Indices)-1]; last != 9999 {
		t.Errorf("expected last index 9999, got %d", last)
	}
}

func TestPlanRespectsMinGap(t *testing.T) {
	p := Plan(50_000, 300, 1000)
	if g := p.MaxGap(); g > 300 {
		t.Errorf("gap %d exceeds min_gap 300", g)
	}
}

func TestPlanSmallFile(t *testing.T) {
	p := Plan(1, 10, 5)
	if len(p.Indices) != 1 || p.Indices[0] != 0 {
		t.Fatalf("expected single index [0] for a one-line file, got %v", p.Indices)
	}
}

func TestPlanEmptyFile(t *testing.T) {
	p := Plan(0, 10, 5)
	if len(p.Indices) != 0 {
		t.Errorf("expected no indices for an empty file, got %v", p.Indices)
	}
}
