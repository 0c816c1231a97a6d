// Package materialize implements the Materialization Planner & Job
// Runner (component H): it turns a Mapping's bound SchemaDefinitions
// into per-schema tasks, runs at most two of them concurrently, and
// drives each task's blocks through normalize -> validate -> spill ->
// write, checkpointing after every completed block.
package materialize

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/gurre/csvfusion/blockio"
	"github.com/gurre/csvfusion/checkpoint"
	"github.com/gurre/csvfusion/config"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/normalize"
	"github.com/gurre/csvfusion/pipelineerr"
	"github.com/gurre/csvfusion/profiler"
	"github.com/gurre/csvfusion/schema"
	"github.com/gurre/csvfusion/store"
	"github.com/gurre/csvfusion/writer"
)

// taskConcurrency is the fixed two-schema-task concurrency cap.
const taskConcurrency = 2

// WriterFactory returns a fresh, unopened Writer for one schema task's
// destination kind (csvsink, parquetsink, or sqlsink — the caller
// chooses which via the closure it supplies).
type WriterFactory func() writer.Writer

// Runner executes a materialization plan.
type Runner struct {
	Profile     config.Profile
	JobID       string
	DestRoot    string
	NewWriter   WriterFactory
	NullRepr    string
	Checkpoints checkpoint.Store
	Store       *store.Store
	Log         *logrus.Logger
	Progress    chan<- model.FileProgress
}

// New returns a Runner with sane defaults filled in from profile.
func New(profile config.Profile, jobID, destRoot string, newWriter WriterFactory, cpStore checkpoint.Store, st *store.Store) *Runner {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	return &Runner{
		Profile:     profile,
		JobID:       jobID,
		DestRoot:    destRoot,
		NewWriter:   newWriter,
		NullRepr:    "",
		Checkpoints: cpStore,
		Store:       st,
		Log:         log,
	}
}

// Run executes tasks with at most taskConcurrency running at once and
// returns the first task error encountered, if any. Every task runs to
// completion or failure independently; a failing task does not cancel
// its siblings.
func (r *Runner) Run(ctx context.Context, tasks []Task, clusters model.HeaderClusterDocument) error {
	sem := make(chan struct{}, taskConcurrency)
	var wg sync.WaitGroup
	errs := make(chan error, len(tasks))

	for _, task := range tasks {
		task := task
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := r.runTask(ctx, task, clusters); err != nil {
				errs <- fmt.Errorf("schema %s: %w", task.SchemaDef.SchemaID, err)
			}
		}()
	}
	wg.Wait()
	close(errs)

	var firstErr error
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
		r.Log.WithError(err).Error("schema task failed")
	}
	return firstErr
}

// flatBlock pairs one block with the file it belongs to, for treating a
// task's (possibly multi-file) block list as a single ordered sequence
// that next_block_index can checkpoint against.
type flatBlock struct {
	filePath string
	block    model.FileBlock
}

func flatten(files []FileBlocks) []flatBlock {
	var out []flatBlock
	for _, fb := range files {
		for _, b := range fb.Blocks {
			out = append(out, flatBlock{filePath: fb.FilePath, block: b})
		}
	}
	return out
}

func (r *Runner) runTask(ctx context.Context, task Task, clusters model.HeaderClusterDocument) error {
	// Each schema task gets its own checkpoint phase (rather than sharing
	// one "materialize" record) so two tasks running concurrently never
	// race on the same load-modify-save cycle.
	phase := "materialize_" + task.SchemaDef.SchemaID
	blocks := flatten(task.Files)

	cpRecord, err := r.Checkpoints.Load(ctx, r.JobID, phase)
	if err != nil {
		return pipelineerr.New(pipelineerr.CodeIOError, "load materialize checkpoint", err)
	}
	cp := decodeCheckpoint(cpRecord)

	nextIdx := cp.NextBlockIndexBySchema[task.SchemaDef.SchemaID]
	cursor := cp.WriterCursorBySchema[task.SchemaDef.SchemaID]

	w := r.NewWriter()
	destination := filepath.Join(r.DestRoot, task.SchemaDef.SchemaID)
	if err := w.Open(ctx, destination, task.Canonical, cursor); err != nil {
		return pipelineerr.New(pipelineerr.CodeStorageFailure, "open writer", err)
	}

	scratchDir := filepath.Join(r.Profile.ResourceLimits.TempDir, r.JobID, "materialize", task.SchemaDef.SchemaID)
	spill := NewSpillBuffer(r.Profile.SpillThreshold, scratchDir)
	detector := &normalize.Detector{Clusters: clusters}
	counters := &schema.Counters{}
	rate := newRateTracker(time.Now())

	encodingByFile := map[string]blockio.Encoding{}
	mappingByFile := map[string]model.FileSchemaMapping{}

	for idx := nextIdx; idx < len(blocks); idx++ {
		fb := blocks[idx]

		enc, ok := encodingByFile[fb.filePath]
		if !ok {
			_, detectedEnc, _, err := blockio.CountLines(fb.filePath)
			if err != nil {
				return err
			}
			enc = detectedEnc
			encodingByFile[fb.filePath] = enc
		}

		mapping, ok := mappingByFile[fb.filePath]
		if !ok {
			mapping = detector.DetectFile(fb.filePath, task.SchemaDef, task.Canonical)
			mappingByFile[fb.filePath] = mapping
		}

		lines, err := blockio.ReadBlock(fb.filePath, fb.block.ByteSpan.Start, fb.block.ByteSpan.End, enc)
		if err != nil {
			return err
		}

		for _, line := range lines {
			raw, _ := profiler.SplitRow(line, fb.block.Signature.Delimiter)
			normalized := normalize.NormalizedRow(raw, mapping, r.NullRepr)
			schema.ValidateRow(normalized, task.Canonical, counters)
			if err := spill.Push(normalized); err != nil {
				return pipelineerr.New(pipelineerr.CodeIOError, "spill row", err)
			}
		}

		if err := spill.Drain(ctx, w); err != nil {
			return pipelineerr.New(pipelineerr.CodeStorageFailure, "drain to writer", err)
		}
		if int64(len(lines)) >= int64(r.Profile.WriterChunkRows) {
			if err := w.Rotate(ctx); err != nil {
				return pipelineerr.New(pipelineerr.CodeStorageFailure, "rotate writer", err)
			}
		}

		rate.Observe(time.Now(), int64(len(lines)))
		r.emitProgress(ctx, task.SchemaDef.SchemaID, fb.filePath, counters.Rows, rate, len(blocks)-idx-1, spill)

		cp.NextBlockIndexBySchema[task.SchemaDef.SchemaID] = idx + 1
		cp.WriterCursorBySchema[task.SchemaDef.SchemaID] = w.Cursor()
		if err := r.Checkpoints.Save(ctx, encodeCheckpoint(r.JobID, phase, cp)); err != nil {
			return pipelineerr.New(pipelineerr.CodeIOError, "save materialize checkpoint", err)
		}

		select {
		case <-ctx.Done():
			_ = w.Close(ctx)
			return ctx.Err()
		default:
		}
	}

	if err := w.Close(ctx); err != nil {
		return pipelineerr.New(pipelineerr.CodeStorageFailure, "close writer", err)
	}

	delete(cp.NextBlockIndexBySchema, task.SchemaDef.SchemaID)
	delete(cp.WriterCursorBySchema, task.SchemaDef.SchemaID)
	if err := r.Checkpoints.Save(ctx, encodeCheckpoint(r.JobID, phase, cp)); err != nil {
		return pipelineerr.New(pipelineerr.CodeIOError, "save materialize checkpoint", err)
	}

	if r.Store != nil {
		metrics := model.JobMetrics{
			JobID:           r.JobID,
			SchemaID:        task.SchemaDef.SchemaID,
			Rows:            counters.Rows,
			RowsPerSec:      rate.RowsPerSec(),
			MissingRequired: counters.MissingRequired,
			TypeMismatches:  counters.TypeMismatches,
			SpillCount:      spill.Spills,
			RowsSpilled:     spill.RowsSpilled,
		}
		if err := r.Store.PutMetrics(ctx, metrics); err != nil {
			return pipelineerr.New(pipelineerr.CodeStorageFailure, "persist job metrics", err)
		}
	}

	return nil
}

func (r *Runner) emitProgress(ctx context.Context, schemaID, filePath string, processedRows int64, rate *rateTracker, remainingBlocks int, spill *SpillBuffer) {
	fp := model.FileProgress{
		JobID:         r.JobID,
		SchemaID:      schemaID,
		FilePath:      filePath,
		ProcessedRows: processedRows,
		RowsPerSec:    rate.RowsPerSec(),
		SpillRows:     spill.RowsSpilled,
		EmittedAt:     time.Now(),
	}
	if remainingBlocks > 0 {
		fp.ETASeconds = rate.ETASeconds(int64(remainingBlocks) * int64(r.Profile.BlockSize))
	}

	if r.Progress != nil {
		select {
		case r.Progress <- fp:
		default:
		}
	}
	if r.Store != nil {
		_ = r.Store.AppendProgress(ctx, r.JobID, fp)
	}
}

func decodeCheckpoint(rec model.CheckpointRecord) model.MaterializeCheckpoint {
	cp := model.MaterializeCheckpoint{
		NextBlockIndexBySchema: map[string]int{},
		WriterCursorBySchema:   map[string]map[string]any{},
	}
	if len(rec.Payload) == 0 {
		return cp
	}
	_ = json.Unmarshal(rec.Payload, &cp)
	if cp.NextBlockIndexBySchema == nil {
		cp.NextBlockIndexBySchema = map[string]int{}
	}
	if cp.WriterCursorBySchema == nil {
		cp.WriterCursorBySchema = map[string]map[string]any{}
	}
	return cp
}

func encodeCheckpoint(jobID, phase string, cp model.MaterializeCheckpoint) model.CheckpointRecord {
	payload, _ := json.Marshal(cp)
	return model.CheckpointRecord{JobID: jobID, Phase: phase, Payload: payload, UpdatedAt: time.Now()}
}
