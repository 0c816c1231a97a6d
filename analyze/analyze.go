// Package analyze implements the Analysis Orchestrator: it fans file
// discovery and block profiling out across a worker pool sized from the
// active profile, adapts that pool size to observed read latency, and
// emits FileProgress events on a bounded cadence.
package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gurre/csvfusion/blockio"
	"github.com/gurre/csvfusion/config"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/pipelineerr"
	"github.com/gurre/csvfusion/profiler"
	"github.com/gurre/csvfusion/sampling"
)

const progressCadence = 500 * time.Millisecond

// Orchestrator runs the analysis phase over an input directory.
type Orchestrator struct {
	Profile config.Profile
	Log     *logrus.Logger
}

// New returns an Orchestrator using the given profile, with a default
// logrus logger installed in Log.
func New(profile config.Profile) *Orchestrator {
	return &Orchestrator{Profile: profile, Log: logrus.New()}
}

// Result is the outcome of analyzing one input directory.
type Result struct {
	Mapping  model.Mapping
	Warnings []string
}

// DiscoverFiles returns every regular file under inputDir, found with a
// "**/*" doublestar glob (no filtering by extension or content), matching the full recursive-glob semantics the pack's
// scrapbird-breachline module relies on for input discovery.
func DiscoverFiles(inputDir string) ([]string, error) {
	fsys := os.DirFS(inputDir)
	matches, err := doublestar.Glob(fsys, "**/*")
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeIOError, "glob input dir", err)
	}
	var files []string
	for _, m := range matches {
		full := filepath.Join(inputDir, m)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, full)
	}
	return files, nil
}

// Run analyzes every file under inputDir, producing a Mapping whose
// schemas group blocks by delimiter, column count and column types (see
// groupIntoSchemas). Cancellation via ctx
// is cooperative: workers check ctx.Err() between blocks.
func (o *Orchestrator) Run(ctx context.Context, inputDir string, progress chan<- model.FileProgress) (*Result, error) {
	files, err := DiscoverFiles(inputDir)
	if err != nil {
		return nil, err
	}

	th := newThrottle(o.Profile.MaxParallelFiles)
	lat := newLatencyTracker()

	tasks := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var blocks []model.FileBlock
	var warnings []string
	var firstErr error

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go o.monitorLatency(monitorCtx, th, lat)

	worker := func() {
		defer wg.Done()
		for path := range tasks {
			if ctx.Err() != nil {
				return
			}
			if err := th.acquire(ctx); err != nil {
				return
			}
			fileBlocks, fileWarnings, err := o.analyzeFile(ctx, path, lat, progress)
			th.release()

			mu.Lock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
			} else {
				blocks = append(blocks, fileBlocks...)
				warnings = append(warnings, fileWarnings...)
			}
			mu.Unlock()
		}
	}

	workerCount := o.Profile.MaxParallelFiles
	if workerCount < 1 {
		workerCount = 1
	}
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go worker()
	}

	go func() {
		defer close(tasks)
		for _, f := range files {
			select {
			case tasks <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if ctx.Err() != nil {
		return nil, pipelineerr.New(pipelineerr.CodeUserAbort, "analysis cancelled", ctx.Err())
	}

	mapping := groupIntoSchemas(blocks)
	return &Result{Mapping: mapping, Warnings: warnings}, nil
}

// analyzeFile computes a sampling plan for one file and profiles each
// resulting block, emitting progress at progressCadence.
func (o *Orchestrator) analyzeFile(ctx context.Context, path string, lat *latencyTracker, progress chan<- model.FileProgress) ([]model.FileBlock, []string, error) {
	start := time.Now()
	idx, enc, warn, err := blockio.CountLines(path)
	lat.observe(time.Since(start))
	if err != nil {
		return nil, nil, err
	}

	var fileWarnings []string
	if warn != "" {
		fileWarnings = append(fileWarnings, fmt.Sprintf("%s: %s", path, warn))
	}

	plan := sampling.Plan(idx.TotalLines, int64(o.Profile.BlockSize)/2, int64(o.Profile.BlockSize))
	cfg := profiler.Config{
		HeaderNonTextRatio: o.Profile.HeaderNonTextRatio,
		SampleValuesCap:    o.Profile.SampleValuesCap,
		TopKSize:           16,
		CandidateLines:     50,
	}

	var out []model.FileBlock
	var lastEmit time.Time
	var processed int64

	for _, b := range plan.Blocks {
		if ctx.Err() != nil {
			return out, fileWarnings, nil
		}

		from, to := idx.ByteRange(b.Start, b.End)
		readStart := time.Now()
		lines, err := blockio.ReadBlock(path, from, to, enc)
		lat.observe(time.Since(readStart))
		if err != nil {
			return out, fileWarnings, err
		}

		pr := profiler.ProfileBlock(lines, cfg)
		fb := model.FileBlock{
			BlockID:        uuid.NewString(),
			FilePath:       path,
			StartLine:      b.Start,
			EndLine:        b.End,
			ByteSpan:       model.ByteSpan{Start: from, End: to},
			Signature:      pr.Signature,
			ColumnProfiles: pr.ColumnProfiles,
			Warnings:       pr.Warnings,
			ShortRows:      pr.ShortRows,
			LongRows:       pr.LongRows,
		}
		out = append(out, fb)
		processed += int64(len(lines))
		atomic.AddInt64(&lat.rows, int64(len(lines)))

		if progress != nil && time.Since(lastEmit) >= progressCadence {
			select {
			case progress <- model.FileProgress{
				FilePath:      path,
				ProcessedRows: processed,
				RowsPerSec:    lat.rowsPerSec(),
				EmittedAt:     time.Now(),
			}:
			default:
			}
			lastEmit = time.Now()
		}
	}

	return out, fileWarnings, nil
}

// groupIntoSchemas buckets blocks sharing a delimiter, column count and
// column types into one SchemaDefinition each; header names are not
// compared, and each definition takes its column names from the first
// block of its group.
func groupIntoSchemas(blocks []model.FileBlock) model.Mapping {
	type key struct {
		delim model.Delimiter
		cols  int
		types string
	}
	groups := map[key]*model.SchemaDefinition{}
	order := []key{}

	for _, b := range blocks {
		t := ""
		for _, ct := range b.Signature.ColumnTypes {
			t += string(ct) + ","
		}
		k := key{delim: b.Signature.Delimiter, cols: b.Signature.ColumnCount, types: t}
		def, ok := groups[k]
		if !ok {
			id := uuid.NewString()
			cols := make([]model.SchemaColumn, len(b.Signature.ColumnTypes))
			for i, ct := range b.Signature.ColumnTypes {
				var name *string
				if i < len(b.Signature.HeaderSample) {
					n := b.Signature.HeaderSample[i]
					name = &n
				}
				cols[i] = model.SchemaColumn{Index: i, Name: name, DominantType: ct}
			}
			def = &model.SchemaDefinition{
				SchemaID:     id,
				Columns:      cols,
				BlocksByFile: map[string][]string{},
				Confidence:   1.0,
			}
			groups[k] = def
			order = append(order, k)
		}
		def.BlocksByFile[b.FilePath] = append(def.BlocksByFile[b.FilePath], b.BlockID)
	}

	schemas := make([]model.SchemaDefinition, 0, len(order))
	for _, k := range order {
		schemas = append(schemas, *groups[k])
	}

	return model.Mapping{
		ArtifactVersion: 1,
		Schemas:         schemas,
		Blocks:          blocks,
	}
}

// monitorLatency halves max_parallel_files after three consecutive
// over-threshold windows, and doubles it after six consecutive
// under-half-threshold windows.
func (o *Orchestrator) monitorLatency(ctx context.Context, th *throttle, lat *latencyTracker) {
	const (
		thresholdHigh = 250 * time.Millisecond
		window        = 1 * time.Second
	)
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	overStreak, underStreak := 0, 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			avg := lat.average()
			switch {
			case avg > thresholdHigh:
				overStreak++
				underStreak = 0
				if overStreak >= 3 {
					th.setTarget(th.target() / 2)
					overStreak = 0
				}
			case avg < thresholdHigh/2:
				underStreak++
				overStreak = 0
				if underStreak >= 6 {
					th.setTarget(th.target() * 2)
					underStreak = 0
				}
			default:
				overStreak, underStreak = 0, 0
			}
		}
	}
}

// latencyTracker keeps a short moving window of read durations.
type latencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	rows    int64
	start   time.Time
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{start: time.Now()}
}

func (l *latencyTracker) observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, d)
	if len(l.samples) > 32 {
		l.samples = l.samples[len(l.samples)-32:]
	}
}

func (l *latencyTracker) average() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range l.samples {
		sum += s
	}
	return sum / time.Duration(len(l.samples))
}

func (l *latencyTracker) rowsPerSec() float64 {
	elapsed := time.Since(l.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&l.rows)) / elapsed
}

// throttle is a dynamically resizable concurrency limiter. setTarget adds
// or removes tokens so that, eventually, at most `target` acquirers hold
// a slot at once.
type throttle struct {
	mu     sync.Mutex
	tokens chan struct{}
	cap    int
	tgt    int
}

func newThrottle(initial int) *throttle {
	if initial < 1 {
		initial = 1
	}
	cap := initial * 8
	if cap < 8 {
		cap = 8
	}
	t := &throttle{tokens: make(chan struct{}, cap), cap: cap, tgt: initial}
	for i := 0; i < initial; i++ {
		t.tokens <- struct{}{}
	}
	return t
}

func (t *throttle) acquire(ctx context.Context) error {
	select {
	case <-t.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *throttle) release() {
	select {
	case t.tokens <- struct{}{}:
	default:
	}
}

func (t *throttle) target() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tgt
}

func (t *throttle) setTarget(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n > t.cap {
		n = t.cap
	}
	diff := n - t.tgt
	t.tgt = n
	if diff > 0 {
		for i := 0; i < diff; i++ {
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	} else if diff < 0 {
		for i := 0; i < -diff; i++ {
			select {
			case <-t.tokens:
			default:
			}
		}
	}
}
