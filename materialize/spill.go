package materialize

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/gurre/csvfusion/writer"
)

// spillBatchSize bounds how many rows are replayed from the spill file to
// the writer in one WriteRows call, independent of writer_chunk_rows.
const spillBatchSize = 500

// SpillBuffer sits between the normalizer and the writer for one schema
// task. It holds up to threshold rows in memory; once full, further rows
// overflow to a temp file under the job's scratch directory rather than
// blocking the normalizer on the writer's pace.
type SpillBuffer struct {
	threshold  int
	scratchDir string

	rows []([]string)

	spillPath   string
	spillFile   *os.File
	spillWriter *bufio.Writer

	Spills      int64
	RowsSpilled int64
}

// NewSpillBuffer returns a SpillBuffer that spills to scratchDir once
// threshold in-memory rows have accumulated.
func NewSpillBuffer(threshold int, scratchDir string) *SpillBuffer {
	if threshold < 1 {
		threshold = 1
	}
	return &SpillBuffer{threshold: threshold, scratchDir: scratchDir}
}

// Push appends row, spilling to disk once the in-memory threshold is
// reached.
func (b *SpillBuffer) Push(row []string) error {
	if len(b.rows) < b.threshold {
		b.rows = append(b.rows, row)
		return nil
	}
	return b.spill(row)
}

func (b *SpillBuffer) spill(row []string) error {
	if b.spillFile == nil {
		if err := os.MkdirAll(b.scratchDir, 0o755); err != nil {
			return fmt.Errorf("create spill scratch dir: %w", err)
		}
		f, err := os.CreateTemp(b.scratchDir, "spill-*.jsonl")
		if err != nil {
			return fmt.Errorf("create spill file: %w", err)
		}
		b.spillFile = f
		b.spillWriter = bufio.NewWriter(f)
		b.spillPath = f.Name()
		b.Spills++
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode spilled row: %w", err)
	}
	if _, err := b.spillWriter.Write(data); err != nil {
		return fmt.Errorf("write spilled row: %w", err)
	}
	if _, err := b.spillWriter.WriteString("\n"); err != nil {
		return fmt.Errorf("write spilled row delimiter: %w", err)
	}
	b.RowsSpilled++
	return nil
}

// Drain writes every buffered and spilled row to w, in the order they
// were pushed (buffered rows precede spilled ones, since spilling only
// starts once the in-memory buffer is full), then empties the buffer and
// removes the spill file for reuse. The Spills and RowsSpilled counters
// are cumulative and are not reset.
func (b *SpillBuffer) Drain(ctx context.Context, w writer.Writer) error {
	if len(b.rows) > 0 {
		if err := w.WriteRows(ctx, b.rows); err != nil {
			return err
		}
		b.rows = b.rows[:0]
	}
	if b.spillFile == nil {
		return nil
	}
	if err := b.drainSpillFile(ctx, w); err != nil {
		return err
	}
	b.spillFile.Close()
	os.Remove(b.spillPath)
	b.spillFile = nil
	b.spillWriter = nil
	return nil
}

func (b *SpillBuffer) drainSpillFile(ctx context.Context, w writer.Writer) error {
	if err := b.spillWriter.Flush(); err != nil {
		return fmt.Errorf("flush spill file: %w", err)
	}
	if _, err := b.spillFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek spill file: %w", err)
	}

	scanner := bufio.NewScanner(b.spillFile)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	batch := make([][]string, 0, spillBatchSize)
	for scanner.Scan() {
		var row []string
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return fmt.Errorf("decode spilled row: %w", err)
		}
		batch = append(batch, row)
		if len(batch) >= spillBatchSize {
			if err := w.WriteRows(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan spill file: %w", err)
	}
	if len(batch) > 0 {
		if err := w.WriteRows(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
