package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	json "github.com/goccy/go-json"

	"github.com/gurre/csvfusion/checkpoint"
	"github.com/gurre/csvfusion/materialize"
	"github.com/gurre/csvfusion/metrics"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/store"
	"github.com/gurre/csvfusion/writer"
	"github.com/gurre/csvfusion/writer/csvsink"
	"github.com/gurre/csvfusion/writer/parquetsink"
	"github.com/gurre/csvfusion/writer/sqlsink"
)

func runMaterialize(args []string) error {
	fs := flag.NewFlagSet("materialize", flag.ContinueOnError)
	mappingPath := fs.String("mapping", "mapping.normalized.json", "path to the normalized mapping artifact")
	dest := fs.String("dest", "out", "destination root; each schema writes to a subdirectory or file named by schema id")
	checkpointDir := fs.String("checkpoint-dir", "checkpoints", "directory holding per-(job, phase) checkpoint files")
	writerFormat := fs.String("writer-format", "csv", "output format: csv, parquet, or database")
	profileName := fs.String("profile", "low_memory", "profile name (low_memory, workstation) or path to a profile JSON file")
	spillThreshold := fs.Int("spill-threshold", 0, "override the profile's spill buffer threshold in rows (0 keeps the profile's value)")
	telemetryLog := fs.String("telemetry-log", "", "path to append newline-delimited progress events (optional)")
	dbURL := fs.String("db-url", "", "destination root for the database writer-format (defaults to -dest)")
	storePath := fs.String("store", "csvfusion.db", "path to the durable sqlite store")
	jobID := fs.String("job-id", "", "job id continuing from normalize (required)")
	resume := fs.Bool("resume", false, "resume an in-progress job from its last committed checkpoint")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *jobID == "" {
		return fmt.Errorf("%w: -job-id is required", errUsage)
	}

	var mapping model.Mapping
	if err := readJSON(*mappingPath, &mapping); err != nil {
		return err
	}

	profile, err := resolveProfile(*profileName)
	if err != nil {
		return err
	}
	if *spillThreshold > 0 {
		profile.SpillThreshold = *spillThreshold
	}

	st, err := store.Open(*storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	canonical := make(map[string]model.CanonicalSchema)
	for _, def := range mapping.Schemas {
		if def.CanonicalSchemaID == nil || def.CanonicalSchemaVer == nil {
			continue
		}
		cs, ok, err := st.GetSchema(ctx, "csvfusion", *def.CanonicalSchemaID, *def.CanonicalSchemaVer)
		if err != nil {
			return err
		}
		if ok {
			canonical[*def.CanonicalSchemaID] = cs
		}
	}

	var clusters model.HeaderClusterDocument
	if doc, ok, err := st.LatestHeaderClusters(ctx); err == nil && ok {
		clusters = doc
	}

	tasks := materialize.BuildPlan(mapping, canonical)
	if len(tasks) == 0 {
		return fmt.Errorf("%w: no schema definitions are bound to a canonical schema; run review and normalize first", errUsage)
	}

	absCheckpointDir, err := filepath.Abs(*checkpointDir)
	if err != nil {
		return err
	}
	cpStore, err := checkpoint.NewFileStore("file://" + absCheckpointDir)
	if err != nil {
		return err
	}
	if !*resume {
		if err := warnIfCheckpointsExist(cpStore, *jobID, tasks); err != nil {
			return err
		}
	}

	destRoot := *dest
	if *writerFormat == "database" && *dbURL != "" {
		destRoot = *dbURL
	}
	newWriter, err := writerFactory(*writerFormat, profile.WriterChunkRows)
	if err != nil {
		return err
	}

	runnerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	progress := make(chan model.FileProgress, 64)
	progressDone := make(chan struct{})
	go drainMaterializeProgress(*telemetryLog, progress, progressDone)

	jobLog, err := loadOrStartJobLog(ctx, st, *jobID)
	if err != nil {
		return err
	}
	if err := transitionJob(ctx, st, jobLog, model.JobMaterializing, fmt.Sprintf("writing %d schema tasks as %s", len(tasks), *writerFormat)); err != nil {
		return err
	}

	runner := materialize.New(profile, *jobID, destRoot, newWriter, cpStore, st)
	runner.Progress = progress

	agg := metrics.NewAggregator()
	runErr := runner.Run(runnerCtx, tasks, clusters)
	close(progress)
	<-progressDone

	if runErr != nil {
		_ = transitionJob(ctx, st, jobLog, model.JobFailed, runErr.Error())
		return runErr
	}

	if err := transitionJob(ctx, st, jobLog, model.JobValidating, "row-level validation ran inline during materialization"); err != nil {
		return err
	}
	if err := transitionJob(ctx, st, jobLog, model.JobDone, ""); err != nil {
		return err
	}

	for _, t := range tasks {
		if m, ok, err := st.Metrics(ctx, *jobID, t.SchemaDef.SchemaID); err == nil && ok {
			agg.Add(m)
		}
	}
	report := agg.GenerateReport(*jobID)
	fmt.Printf("job %s: %s -> %s (%s)\n", *jobID, report.String(), destRoot, *writerFormat)
	return nil
}

func writerFactory(format string, chunkRows int) (materialize.WriterFactory, error) {
	switch format {
	case "csv":
		return func() writer.Writer { return csvsink.New(chunkRows) }, nil
	case "parquet":
		return func() writer.Writer { return parquetsink.New(chunkRows) }, nil
	case "database":
		return func() writer.Writer { return sqlsink.New(chunkRows) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown writer-format %q (want csv, parquet, or database)", errUsage, format)
	}
}

// warnIfCheckpointsExist audits (but does not block on) a job-id reuse
// without -resume, since a stale checkpoint directory combined with a
// reused job-id would otherwise silently resume instead of starting
// fresh — the operator should see that before it surprises them.
func warnIfCheckpointsExist(cpStore checkpoint.Store, jobID string, tasks []materialize.Task) error {
	ctx := context.Background()
	for _, t := range tasks {
		rec, err := cpStore.Load(ctx, jobID, "materialize_"+t.SchemaDef.SchemaID)
		if err != nil {
			return err
		}
		if len(rec.Payload) > 0 {
			fmt.Fprintf(os.Stderr, "warning: job %s has an existing checkpoint for schema %s; the run continues from it, use a new -job-id to start over\n", jobID, t.SchemaDef.SchemaID)
		}
	}
	return nil
}

func drainMaterializeProgress(path string, progress <-chan model.FileProgress, done chan<- struct{}) {
	defer close(done)
	if path == "" {
		for range progress {
		}
		return
	}
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
