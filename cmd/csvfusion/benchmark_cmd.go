package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gurre/csvfusion/analyze"
	"github.com/gurre/csvfusion/model"
)

// runBenchmark drives the same Analysis Orchestrator analyze does, but
// discards the mapping artifact: its only output is a throughput JSONL
// log, for measuring sustained rows/sec under a profile without touching
// the durable store or checkpoint registry.
func runBenchmark(args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	input := fs.String("input", "", "input directory to discover and profile (required)")
	profileName := fs.String("profile", "low_memory", "profile name (low_memory, workstation) or path to a profile JSON file")
	logPath := fs.String("log", "", "path to append newline-delimited throughput samples (required)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *input == "" {
		return fmt.Errorf("%w: -input is required", errUsage)
	}
	if *logPath == "" {
		return fmt.Errorf("%w: -log is required", errUsage)
	}

	profile, err := resolveProfile(*profileName)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)

	progress := make(chan model.FileProgress, 64)
	done := make(chan struct{})
	var lastRate float64
	var sampleCount int
	go func() {
		defer close(done)
		for fp := range progress {
			lastRate = fp.RowsPerSec
			sampleCount++
			_ = enc.Encode(fp)
		}
	}()

	start := time.Now()
	orchestrator := analyze.New(profile)
	result, err := orchestrator.Run(context.Background(), *input, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	fmt.Printf("benchmark: %d blocks in %s, %d throughput samples, last rows/sec=%.1f\n",
		len(result.Mapping.Blocks), time.Since(start).Round(time.Millisecond), sampleCount, lastRate)
	return nil
}
