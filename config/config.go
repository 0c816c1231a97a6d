// Package config implements profile loading and validation for pipeline
// runs: resource budgets, block sizing, and sampling knobs.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// ResourceLimits bounds what a job is allowed to consume.
type ResourceLimits struct {
	MemoryMB   int    `json:"memoryMb"`
	SpillMB    int    `json:"spillMb"`
	MaxWorkers int    `json:"maxWorkers"`
	TempDir    string `json:"tempDir"`
}

// Profile is the unit of configuration for analyze/materialize runs. The
// zero value is invalid; call Validate after loading.
type Profile struct {
	Name              string         `json:"name"`
	BlockSize         int            `json:"blockSize"`
	MaxParallelFiles  int            `json:"maxParallelFiles"`
	SampleValuesCap   int            `json:"sampleValuesCap"`
	HeaderNonTextRatio float64       `json:"headerNonTextRatio"`
	WriterChunkRows   int            `json:"writerChunkRows"`
	SpillThreshold    int            `json:"spillThreshold"`
	ResourceLimits    ResourceLimits `json:"resourceLimits"`
}

// LowMemory is the conventional low_memory profile: 1000/1/24.
func LowMemory() Profile {
	return Profile{
		Name:              "low_memory",
		BlockSize:         1000,
		MaxParallelFiles:  1,
		SampleValuesCap:   24,
		HeaderNonTextRatio: 0.7,
		WriterChunkRows:   50_000,
		SpillThreshold:    5_000,
		ResourceLimits: ResourceLimits{
			MemoryMB:   256,
			SpillMB:    512,
			MaxWorkers: 1,
			TempDir:    os.TempDir(),
		},
	}
}

// Workstation is the conventional workstation profile: 10000/4/64.
func Workstation() Profile {
	return Profile{
		Name:              "workstation",
		BlockSize:         10_000,
		MaxParallelFiles:  4,
		SampleValuesCap:   64,
		HeaderNonTextRatio: 0.7,
		WriterChunkRows:   200_000,
		SpillThreshold:    20_000,
		ResourceLimits: ResourceLimits{
			MemoryMB:   2048,
			SpillMB:    4096,
			MaxWorkers: 4,
			TempDir:    os.TempDir(),
		},
	}
}

// Load reads and validates a profile from a JSON file at path.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate ensures every required field is present and numerically sane.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}

	if p.BlockSize < 1 {
		return fmt.Errorf("block size must be at least 1")
	}

	if p.MaxParallelFiles < 1 {
		return fmt.Errorf("max parallel files must be at least 1")
	}

	if p.SampleValuesCap < 1 {
		return fmt.Errorf("sample values cap must be at least 1")
	}

	if p.HeaderNonTextRatio <= 0 || p.HeaderNonTextRatio > 1 {
		return fmt.Errorf("header non-text ratio must be in (0,1]")
	}

	if p.WriterChunkRows < 1 {
		return fmt.Errorf("writer chunk rows must be at least 1")
	}

	if p.SpillThreshold < 1 {
		return fmt.Errorf("spill threshold must be at least 1")
	}

	if p.ResourceLimits.MemoryMB < 1 {
		return fmt.Errorf("resource limits memory_mb must be at least 1")
	}

	if p.ResourceLimits.SpillMB < 1 {
		return fmt.Errorf("resource limits spill_mb must be at least 1")
	}

	if p.ResourceLimits.MaxWorkers < 1 {
		return fmt.Errorf("resource limits max_workers must be at least 1")
	}

	if p.ResourceLimits.TempDir == "" {
		return fmt.Errorf("resource limits temp_dir is required")
	}

	return nil
}
