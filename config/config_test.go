package config

import "testing"

func validProfile() Profile {
	p := Workstation()
	p.Name = "test"
	return p
}

func TestValidProfile(t *testing.T) {
	p := validProfile()
	if err := p.Validate(); err != nil {
		t.Errorf("expected valid profile to pass validation, got: %v", err)
	}
}

func TestMissingName(t *testing.T) {
	p := validProfile()
	p.Name = ""
	if err := p.Validate(); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestInvalidBlockSize(t *testing.T) {
	for _, size := range []int{0, -1, -100} {
		p := validProfile()
		p.BlockSize = size
		if err := p.Validate(); err == nil {
			t.Errorf("expected error for block size %d", size)
		}
	}
}

func TestInvalidMaxParallelFiles(t *testing.T) {
	for _, n := range []int{0, -1} {
		p := validProfile()
		p.MaxParallelFiles = n
		if err := p.Validate(); err == nil {
			t.Errorf("expected error for max parallel files %d", n)
		}
	}
}

func TestInvalidHeaderNonTextRatio(t *testing.T) {
	for _, r := range []float64{0, -0.1, 1.1} {
		p := validProfile()
		p.HeaderNonTextRatio = r
		if err := p.Validate(); err == nil {
			t.Errorf("expected error for header non-text ratio %v", r)
		}
	}
}

func TestInvalidResourceLimits(t *testing.T) {
	p := validProfile()
	p.ResourceLimits.MemoryMB = 0
	if err := p.Validate(); err == nil {
		t.Error("expected error for zero memory_mb")
	}

	p = validProfile()
	p.ResourceLimits.TempDir = ""
	if err := p.Validate(); err == nil {
		t.Error("expected error for empty temp_dir")
	}
}

func TestConventionalProfiles(t *testing.T) {
	for _, p := range []Profile{LowMemory(), Workstation()} {
		if err := p.Validate(); err != nil {
			t.Errorf("expected conventional profile %q to be valid, got: %v", p.Name, err)
		}
	}
}
