// Package parquetsink implements a columnar Writer backed by
// github.com/xitongsys/parquet-go, for destinations that need the
// Materialization Planner's output readable by analytics engines
// without a second conversion pass.
package parquetsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	parquetsource "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/gurre/csvfusion/model"
)

// Sink writes canonical rows as Snappy-compressed Parquet, rotating to a
// new numbered chunk file every WriterChunkRows rows. Parquet row groups
// are only flushed on WriteStop, so Rotate always closes and reopens a
// fresh file rather than truncating mid-file.
type Sink struct {
	destDir      string
	prefix       string
	chunkRows    int
	schema       model.CanonicalSchema
	metadata     []string
	chunkOrdinal int
	rowsInChunk  int

	file *parquetfile
	pw   *writer.CSVWriter
}

type parquetfile struct {
	f    source.ParquetFile
	path string
}

// New returns a Sink that rotates every chunkRows rows.
func New(chunkRows int) *Sink {
	if chunkRows < 1 {
		chunkRows = 1
	}
	return &Sink{chunkRows: chunkRows}
}

// Open creates destDir if needed and opens the first chunk, resuming the
// chunk ordinal from cursor when present.
func (s *Sink) Open(ctx context.Context, destination string, schema model.CanonicalSchema, cursor map[string]any) error {
	s.destDir = destination
	s.prefix = fmt.Sprintf("%s_v%d", schema.ID, schema.Version)
	s.schema = schema
	s.metadata = schemaMetadata(schema)

	if err := os.MkdirAll(s.destDir, 0o755); err != nil {
		return fmt.Errorf("mkdir dest dir: %w", err)
	}

	if cursor != nil {
		if ord, ok := cursor["chunkOrdinal"].(float64); ok {
			s.chunkOrdinal = int(ord)
		}
	}

	return s.openChunk()
}

// schemaMetadata converts canonical columns into xitongsys/parquet-go's
// CSVWriter metadata descriptor format.
func schemaMetadata(schema model.CanonicalSchema) []string {
	md := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		switch col.DataType {
		case model.TypeNumeric:
			md[i] = fmt.Sprintf("name=%s, type=DOUBLE", fieldName(col.Name))
		case model.TypeBool:
			md[i] = fmt.Sprintf("name=%s, type=BOOLEAN", fieldName(col.Name))
		default:
			md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8", fieldName(col.Name))
		}
	}
	return md
}

func fieldName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "col"
	}
	return string(out)
}

func (s *Sink) openChunk() error {
	path := filepath.Join(s.destDir, fmt.Sprintf("%s.part%04d.parquet", s.prefix, s.chunkOrdinal))

	fw, err := parquetsource.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet chunk file: %w", err)
	}

	pw, err := writer.NewCSVWriter(s.metadata, fw, 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("init parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	s.file = &parquetfile{f: fw, path: path}
	s.pw = pw
	s.rowsInChunk = 0
	return nil
}

// WriteRows converts each delimited row into typed values per the
// canonical schema and appends it, rotating automatically when
// chunkRows is reached.
func (s *Sink) WriteRows(ctx context.Context, rows [][]string) error {
	for _, row := range rows {
		rec := make([]interface{}, len(s.schema.Columns))
		for i, col := range s.schema.Columns {
			var raw string
			if i < len(row) {
				raw = row[i]
			}
			rec[i] = toParquetValue(raw, col)
		}
		if err := s.pw.Write(rec); err != nil {
			return fmt.Errorf("write parquet row: %w", err)
		}
		s.rowsInChunk++
		if s.rowsInChunk >= s.chunkRows {
			if err := s.Rotate(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func toParquetValue(raw string, col model.CanonicalColumn) interface{} {
	switch col.DataType {
	case model.TypeNumeric:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return float64(0)
		}
		return f
	case model.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return false
		}
		return b
	default:
		return raw
	}
}

// Rotate closes the current chunk file and opens the next ordinal. The
// underlying parquet writer only becomes a valid, readable file once
// WriteStop flushes the footer, so a crash mid-chunk leaves a truncated
// file that downstream Parquet readers reject rather than silently
// double-count rows.
func (s *Sink) Rotate(ctx context.Context) error {
	if err := s.closeChunk(); err != nil {
		return err
	}
	s.chunkOrdinal++
	return s.openChunk()
}

func (s *Sink) closeChunk() error {
	if s.pw == nil {
		return nil
	}
	if err := s.pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet chunk: %w", err)
	}
	if err := s.file.f.Close(); err != nil {
		return fmt.Errorf("close parquet chunk file: %w", err)
	}
	s.pw = nil
	return nil
}

// Cursor returns the chunk ordinal for checkpoint persistence.
func (s *Sink) Cursor() map[string]any {
	return map[string]any{"chunkOrdinal": s.chunkOrdinal}
}

// Close finalizes any in-progress chunk.
func (s *Sink) Close(ctx context.Context) error {
	return s.closeChunk()
}
