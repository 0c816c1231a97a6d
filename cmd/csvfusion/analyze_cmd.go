package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"github.com/gurre/csvfusion/analyze"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/store"
)

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	input := fs.String("input", "", "input directory to discover and profile (required)")
	profileName := fs.String("profile", "low_memory", "profile name (low_memory, workstation) or path to a profile JSON file")
	progressLog := fs.String("progress-log", "", "path to append newline-delimited progress events (optional)")
	storePath := fs.String("store", "csvfusion.db", "path to the durable sqlite store")
	out := fs.String("out", "mapping.json", "path to write the mapping artifact")
	jobID := fs.String("job-id", "", "job id; a new one is minted if omitted")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *input == "" {
		return fmt.Errorf("%w: -input is required", errUsage)
	}

	profile, err := resolveProfile(*profileName)
	if err != nil {
		return err
	}

	st, err := store.Open(*storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	id := resolveJobID(*jobID)
	jobLog, err := loadOrStartJobLog(context.Background(), st, id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := transitionJob(ctx, st, jobLog, model.JobAnalyzing, "discovering and profiling "+*input); err != nil {
		return err
	}

	progress := make(chan model.FileProgress, 64)
	progressDone := make(chan struct{})
	if *progressLog != "" {
		go drainProgressLog(*progressLog, progress, progressDone)
	} else {
		go func() {
			for range progress {
			}
			close(progressDone)
		}()
	}

	orchestrator := analyze.New(profile)
	result, runErr := orchestrator.Run(ctx, *input, progress)
	close(progress)
	<-progressDone

	if runErr != nil {
		_ = transitionJob(ctx, st, jobLog, model.JobFailed, runErr.Error())
		return runErr
	}

	if err := writeJSON(*out, result.Mapping); err != nil {
		_ = transitionJob(ctx, st, jobLog, model.JobFailed, err.Error())
		return err
	}

	for _, w := range result.Warnings {
		_ = st.AppendAudit(ctx, id, "analyze_warning", w, jobLog.Status().UpdatedAt)
	}

	fmt.Printf("job %s: analyzed %d schema definitions across %s blocks -> %s\n",
		id, len(result.Mapping.Schemas), humanize.Comma(int64(len(result.Mapping.Blocks))), *out)
	return nil
}

// drainProgressLog appends each progress event to path as one JSON line.
func drainProgressLog(path string, progress <-chan model.FileProgress, done chan<- struct{}) {
	defer close(done)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		for range progress {
		}
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for fp := range progress {
		_ = enc.Encode(fp)
	}
}
