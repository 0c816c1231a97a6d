// Package model defines the tagged record types shared across every phase of
// the pipeline: analysis, clustering, normalization, and materialization.
// Nothing in this package performs IO; it exists so every other package can
// agree on wire-compatible shapes for the mapping document, the header
// cluster document, checkpoints, and telemetry rows.
package model

import (
	"time"

	"github.com/gurre/csvfusion/internal/hll"
)

// Delimiter is one of the four recognized field separators.
type Delimiter string

const (
	DelimComma     Delimiter = ","
	DelimSemicolon Delimiter = ";"
	DelimTab       Delimiter = "\t"
	DelimPipe      Delimiter = "|"
)

// ColumnType is the dominant inferred type of a column.
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeDate    ColumnType = "date"
	TypeBool    ColumnType = "bool"
	TypeText    ColumnType = "text"
	TypeNull    ColumnType = "null"
)

// ByteSpan is a half-open [Start, End) range of byte offsets within a file.
type ByteSpan struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// SchemaSignature captures the shape of a block as detected by the profiler.
// Invariant: len(ColumnTypes) == ColumnCount.
type SchemaSignature struct {
	Delimiter    Delimiter    `json:"delimiter"`
	HeaderSample []string     `json:"headerSample,omitempty"`
	ColumnCount  int          `json:"columnCount"`
	ColumnTypes  []ColumnType `json:"columnTypes"`
}

// TypeHistogram counts how many values in a column fell into each type
// bucket, including the null bucket.
type TypeHistogram struct {
	Numeric int64 `json:"numeric"`
	Date    int64 `json:"date"`
	Bool    int64 `json:"bool"`
	Text    int64 `json:"text"`
	Null    int64 `json:"null"`
}

// TopKEntry is one member of a column's top-k frequency sketch.
type TopKEntry struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ColumnProfile is the streaming summary of one column over one block.
// Name is optional because a block may have no confirmed header.
type ColumnProfile struct {
	Name         *string       `json:"name,omitempty"`
	Index        int           `json:"index"`
	Nulls        int64         `json:"nulls"`
	NonNulls     int64         `json:"nonNulls"`
	HLLRegisters []byte        `json:"hllRegisters"` // 64-register HLL-lite sketch, serialized
	TopK         []TopKEntry   `json:"topK,omitempty"`
	Min          *string       `json:"min,omitempty"`
	Max          *string       `json:"max,omitempty"`
	TypeHist     TypeHistogram `json:"typeHist"`
	SampleValues []string      `json:"sampleValues,omitempty"`
}

// UniqueEstimate returns the approximate distinct-value count for the
// column, reconstructing the HLL-lite sketch from its serialized registers.
func (c *ColumnProfile) UniqueEstimate() uint64 {
	return hll.Estimate(c.HLLRegisters)
}

// DominantType returns the type with the highest histogram count, breaking
// ties in favor of, in order, text, numeric, date, bool (so an all-null
// histogram yields text).
func (h TypeHistogram) DominantType() ColumnType {
	best := TypeText
	bestN := h.Text
	for _, pair := range []struct {
		t ColumnType
		n int64
	}{{TypeNumeric, h.Numeric}, {TypeDate, h.Date}, {TypeBool, h.Bool}} {
		if pair.n > bestN {
			best, bestN = pair.t, pair.n
		}
	}
	return best
}

// FileBlock is a contiguous line range sampled and profiled from one file.
type FileBlock struct {
	BlockID        string          `json:"blockId"`
	FilePath       string          `json:"filePath"`
	StartLine      int64           `json:"startLine"`
	EndLine        int64           `json:"endLine"`
	ByteSpan       ByteSpan        `json:"byteSpan"`
	Signature      SchemaSignature `json:"signature"`
	ColumnProfiles []ColumnProfile `json:"columnProfiles"`
	Warnings       []string        `json:"warnings,omitempty"`
	ShortRows      int64           `json:"shortRows"`
	LongRows       int64           `json:"longRows"`
}

// SchemaDefinition groups blocks across files that share a signature.
// Invariant: every block referenced here belongs to exactly one
// SchemaDefinition in the enclosing Mapping.
type SchemaDefinition struct {
	SchemaID              string             `json:"schemaId"`
	Columns               []SchemaColumn     `json:"columns"`
	BlocksByFile          map[string][]string `json:"blocksByFile"`
	Confidence            float64            `json:"confidence"`
	CanonicalSchemaID     *string            `json:"canonicalSchemaId,omitempty"`
	CanonicalSchemaVer    *int               `json:"canonicalSchemaVersion,omitempty"`
}

// SchemaColumn is one column slot of a discovered (not yet canonical) schema.
type SchemaColumn struct {
	Index       int        `json:"index"`
	Name        *string    `json:"name,omitempty"`
	DominantType ColumnType `json:"dominantType"`
}

// ClusterMember is one (file, column) pair folded into a HeaderCluster.
type ClusterMember struct {
	FilePath    string `json:"filePath"`
	ColumnIndex int    `json:"columnIndex"`
	RawName     string `json:"rawName"`
}

// HeaderCluster is a set of (file, column) pairs judged to denote the same
// logical field.
type HeaderCluster struct {
	ClusterID     string          `json:"clusterId"`
	CanonicalName string          `json:"canonicalName"`
	Members       []ClusterMember `json:"members"`
	Confidence    float64         `json:"confidence"`
	NeedsReview   bool            `json:"needsReview"`
	Version       int             `json:"version"`
	ReasonCodes   []string        `json:"reasonCodes,omitempty"`
}

// CanonicalColumn is one column of an external contract.
type CanonicalColumn struct {
	Name          string       `json:"name"`
	DataType      ColumnType   `json:"dataType"`
	Required      bool         `json:"required"`
	AllowNull     bool         `json:"allowNull"`
	AllowedValues []string     `json:"allowedValues,omitempty"`
	Range         *NumericRange `json:"range,omitempty"`
}

// NumericRange bounds a numeric canonical column, inclusive on both ends.
type NumericRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// CanonicalSchema is the external contract a SchemaDefinition may be bound
// to. Identity is (Namespace, ID, Version), never a pointer.
type CanonicalSchema struct {
	Namespace string            `json:"namespace"`
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Columns   []CanonicalColumn `json:"columns"`
}

// ColumnMapping is one (source_index -> canonical_index) pairing with its
// confidence. SourceIndex is -1 when the canonical column has no source.
type ColumnMapping struct {
	SourceIndex    int     `json:"sourceIndex"`
	CanonicalIndex int     `json:"canonicalIndex"`
	Confidence     float64 `json:"confidence"`
}

// FileSchemaMapping is the per-file ordered column mapping produced by the
// offset detector.
type FileSchemaMapping struct {
	FilePath string          `json:"filePath"`
	SchemaID string          `json:"schemaId"`
	Mappings []ColumnMapping `json:"mappings"`
}

// JobState is a node in the job state machine.
type JobState string

const (
	JobPending       JobState = "PENDING"
	JobAnalyzing     JobState = "ANALYZING"
	JobMapping       JobState = "MAPPING"
	JobMaterializing JobState = "MATERIALIZING"
	JobValidating    JobState = "VALIDATING"
	JobDone          JobState = "DONE"
	JobFailed        JobState = "FAILED"
	JobCancelled     JobState = "CANCELLED"
)

// JobStatus is the current, mutable status row for one job.
type JobStatus struct {
	JobID     string            `json:"jobId"`
	State     JobState          `json:"state"`
	Detail    string            `json:"detail,omitempty"`
	LastError string            `json:"lastError,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// JobEvent is one append-only entry in a job's event log.
type JobEvent struct {
	JobID  string    `json:"jobId"`
	State  JobState  `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// CheckpointRecord is the durable snapshot for one (job, phase) pair.
type CheckpointRecord struct {
	JobID     string    `json:"jobId"`
	Phase     string    `json:"phase"`
	Payload   []byte    `json:"payload"` // opaque, phase-specific JSON
	UpdatedAt time.Time `json:"updatedAt"`
}

// MaterializeCheckpoint is the phase-specific payload stored inside a
// CheckpointRecord for the materialize phase. It is always keyed so resume
// can pick up each schema task independently.
type MaterializeCheckpoint struct {
	NextBlockIndexBySchema map[string]int            `json:"nextBlockIndexBySchema"`
	WriterCursorBySchema   map[string]map[string]any `json:"writerCursorBySchema"`
}

// FileProgress is one emitted progress sample. Retention caps this table at
// 500 rows per SchemaID, oldest evicted.
type FileProgress struct {
	JobID         string    `json:"jobId"`
	SchemaID      string    `json:"schemaId"`
	FilePath      string    `json:"filePath"`
	ProcessedRows int64     `json:"processedRows"`
	ETASeconds    float64   `json:"etaSeconds"`
	RowsPerSec    float64   `json:"rowsPerSec"`
	SpillRows     int64     `json:"spillRows"`
	EmittedAt     time.Time `json:"emittedAt"`
}

// JobMetrics is the aggregate counters produced for one (job, schema) pair.
type JobMetrics struct {
	JobID            string `json:"jobId"`
	SchemaID         string `json:"schemaId"`
	Rows             int64  `json:"rows"`
	RowsPerSec       float64 `json:"rowsPerSec"`
	ShortRows        int64  `json:"shortRows"`
	LongRows         int64  `json:"longRows"`
	MissingRequired  int64  `json:"missingRequired"`
	TypeMismatches   int64  `json:"typeMismatches"`
	SpillCount       int64  `json:"spillCount"`
	RowsSpilled      int64  `json:"rowsSpilled"`
	DurationMS       int64  `json:"durationMs"`
}

// Mapping is the persisted artifact produced by Analyze and refined by
// Cluster and Normalize. ArtifactVersion is bumped whenever any contained
// cluster or schema definition changes shape.
type Mapping struct {
	ArtifactVersion int                 `json:"artifactVersion"`
	Schemas         []SchemaDefinition  `json:"schemas"`
	Blocks          []FileBlock         `json:"blocks"`
	SchemaMapping   []FileSchemaMapping `json:"schemaMapping,omitempty"`
	ColumnProfiles  []ColumnProfile     `json:"columnProfiles,omitempty"`
}

// HeaderClusterDocument is the persisted artifact produced by Review/Cluster.
type HeaderClusterDocument struct {
	ArtifactVersion int             `json:"artifactVersion"`
	Clusters        []HeaderCluster `json:"clusters"`
}
