// Package profiler implements the Signature & Column Profiler: delimiter
// detection, header confirmation, column-count mode selection, and
// streaming per-column statistics (nulls, HyperLogLog-lite unique
// estimate, top-k sketch, min/max, type histogram).
package profiler

import (
	"encoding/csv"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gurre/csvfusion/internal/hll"
	"github.com/gurre/csvfusion/model"
)

// Config tunes profiling behavior; values come from the active Profile.
type Config struct {
	HeaderNonTextRatio float64
	SampleValuesCap    int
	TopKSize           int
	CandidateLines     int // how many leading non-empty lines to sample for delimiter detection
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HeaderNonTextRatio: 0.7,
		SampleValuesCap:    32,
		TopKSize:           16,
		CandidateLines:     50,
	}
}

var delimPriority = []model.Delimiter{model.DelimComma, model.DelimSemicolon, model.DelimTab, model.DelimPipe}

var (
	numericRe = regexp.MustCompile(`^[+-]?(\d+\.\d+|\.\d+|\d+)([eE][+-]?\d+)?$`)
	dateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?Z?)?$|^\d{2}/\d{2}/\d{4}$`)
	boolRe    = regexp.MustCompile(`(?i)^(true|false|yes|no)$`)
)

// DetectDelimiter picks, among the delimiters whose modal field count is
// above 1, the one whose field-count mode is reached by the largest
// fraction of the sampled lines, tie-broken by delimPriority; when no
// delimiter splits the sampled lines, the first in delimPriority is
// returned with a column count of 1. It also reports whether the block shows MixedDelimiter symptoms: a
// second candidate whose best mode frequency is within 10% of the winner.
func DetectDelimiter(lines []string, cfg Config) (chosen model.Delimiter, columnCount int, mixed bool) {
	sample := nonEmptyPrefix(lines, cfg.CandidateLines)
	type result struct {
		delim   model.Delimiter
		mode    int
		modeHit int
		total   int
	}
	var results []result
	for _, d := range delimPriority {
		counts := map[int]int{}
		for _, line := range sample {
			n := len(splitNaive(line, d))
			counts[n]++
		}
		mode, hit := argmaxCount(counts)
		results = append(results, result{delim: d, mode: mode, modeHit: hit, total: len(sample)})
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.mode > 1 && (best.mode <= 1 || r.modeHit > best.modeHit) {
			best = r
		}
	}

	for _, r := range results {
		if r.delim == best.delim || r.total == 0 {
			continue
		}
		bestFrac := float64(best.modeHit) / float64(best.total)
		rFrac := float64(r.modeHit) / float64(r.total)
		if bestFrac-rFrac < 0.10 && r.modeHit > 0 {
			mixed = true
		}
	}

	return best.delim, best.mode, mixed
}

func argmaxCount(counts map[int]int) (mode int, hit int) {
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if counts[k] > hit {
			mode, hit = k, counts[k]
		}
	}
	return mode, hit
}

func nonEmptyPrefix(lines []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func splitNaive(line string, d model.Delimiter) []string {
	return strings.Split(line, string(d))
}

// SplitRow tokenizes one line honoring CSV quoting for comma/semicolon
// delimiters; tab and pipe delimited rows are split literally, with no
// quote handling.
func SplitRow(line string, d model.Delimiter) ([]string, error) {
	switch d {
	case model.DelimComma, model.DelimSemicolon:
		r := csv.NewReader(strings.NewReader(line))
		r.Comma = rune(d[0])
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		rec, err := r.Read()
		if err != nil {
			return splitNaive(line, d), nil // PARSING_ERROR is handled by the caller via row-width mismatch, not here
		}
		return rec, nil
	default:
		return splitNaive(line, d), nil
	}
}

// detectHeader reports whether the first line of sample is a header: at
// least ratio of its cells are non-numeric, and every cell is absent from
// the corresponding column's values in the remaining rows.
func detectHeader(rows [][]string, ratio float64) bool {
	if len(rows) == 0 {
		return false
	}
	header := rows[0]
	nonNumeric := 0
	for _, cell := range header {
		if !numericRe.MatchString(strings.TrimSpace(cell)) {
			nonNumeric++
		}
	}
	if len(header) == 0 || float64(nonNumeric)/float64(len(header)) < ratio {
		return false
	}

	colValues := make([]map[string]struct{}, len(header))
	for i := range colValues {
		colValues[i] = make(map[string]struct{})
	}
	for _, row := range rows[1:] {
		for i, cell := range row {
			if i < len(colValues) {
				colValues[i][cell] = struct{}{}
			}
		}
	}
	for i, cell := range header {
		if _, ok := colValues[i][cell]; ok {
			return false
		}
	}
	return true
}

// classify returns the type bucket for a single cell value.
func classify(v string) model.ColumnType {
	v = strings.TrimSpace(v)
	if v == "" {
		return model.TypeNull
	}
	if numericRe.MatchString(v) {
		return model.TypeNumeric
	}
	if dateRe.MatchString(v) {
		return model.TypeDate
	}
	if boolRe.MatchString(v) {
		return model.TypeBool
	}
	return model.TypeText
}

// columnAccumulator tracks streaming statistics for one column across the
// rows of a block.
type columnAccumulator struct {
	sketch   *hll.Sketch
	topk     *spaceSaving
	hist     model.TypeHistogram
	nulls    int64
	nonNulls int64
	min      *string
	max      *string
	samples  []string
	sampleCap int
}

func newColumnAccumulator(cfg Config) *columnAccumulator {
	return &columnAccumulator{
		sketch:    hll.New(),
		topk:      newSpaceSaving(cfg.TopKSize * 4),
		sampleCap: cfg.SampleValuesCap,
	}
}

func (c *columnAccumulator) observe(raw string) {
	t := classify(raw)
	switch t {
	case model.TypeNull:
		c.nulls++
		c.hist.Null++
		return
	case model.TypeNumeric:
		c.hist.Numeric++
	case model.TypeDate:
		c.hist.Date++
	case model.TypeBool:
		c.hist.Bool++
	default:
		c.hist.Text++
	}
	c.nonNulls++
	c.sketch.Add([]byte(raw))
	c.topk.Add(raw)

	if c.min == nil || compareValues(raw, *c.min, t) < 0 {
		v := raw
		c.min = &v
	}
	if c.max == nil || compareValues(raw, *c.max, t) > 0 {
		v := raw
		c.max = &v
	}
	if len(c.samples) < c.sampleCap {
		c.samples = append(c.samples, raw)
	}
}

func compareValues(a, b string, t model.ColumnType) int {
	if t == model.TypeNumeric {
		af, aerr := strconv.ParseFloat(a, 64)
		bf, berr := strconv.ParseFloat(b, 64)
		if aerr == nil && berr == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(a, b)
}

func (c *columnAccumulator) toProfile(index int, name *string, topK int) model.ColumnProfile {
	entries := c.topk.TopN(topK)
	topk := make([]model.TopKEntry, 0, len(entries))
	for _, e := range entries {
		topk = append(topk, model.TopKEntry{Value: e.value, Count: e.count})
	}
	return model.ColumnProfile{
		Name:         name,
		Index:        index,
		Nulls:        c.nulls,
		NonNulls:     c.nonNulls,
		HLLRegisters: c.sketch.Registers(),
		TopK:         topk,
		Min:          c.min,
		Max:          c.max,
		TypeHist:     c.hist,
		SampleValues: c.samples,
	}
}

// ProfileResult is the signature and column profiles derived from one
// block's raw lines.
type ProfileResult struct {
	Signature      model.SchemaSignature
	ColumnProfiles []model.ColumnProfile
	Warnings       []string
	ShortRows      int64
	LongRows       int64
	HasHeader      bool
	HeaderNames    []string
}

// ProfileBlock runs delimiter detection, header confirmation, and
// per-column accumulation over one block's lines.
func ProfileBlock(lines []string, cfg Config) ProfileResult {
	delim, columnCount, mixed := DetectDelimiter(lines, cfg)

	var rows [][]string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue // blank lines never count as rows
		}
		row, _ := SplitRow(line, delim)
		rows = append(rows, row)
	}

	result := ProfileResult{
		Signature: model.SchemaSignature{
			Delimiter:   delim,
			ColumnCount: columnCount,
		},
	}
	if mixed {
		result.Warnings = append(result.Warnings, "MixedDelimiter")
	}
	if len(rows) == 0 {
		result.Signature.ColumnTypes = []model.ColumnType{}
		return result
	}

	hasHeader := detectHeader(rows, cfg.HeaderNonTextRatio)
	dataRows := rows
	if hasHeader {
		result.HasHeader = true
		result.HeaderNames = rows[0]
		result.Signature.HeaderSample = rows[0]
		dataRows = rows[1:]
	}

	accs := make([]*columnAccumulator, columnCount)
	for i := range accs {
		accs[i] = newColumnAccumulator(cfg)
	}

	for _, row := range dataRows {
		switch {
		case len(row) < columnCount:
			result.ShortRows++
		case len(row) > columnCount:
			result.LongRows++
		}
		for i := 0; i < columnCount && i < len(row); i++ {
			accs[i].observe(row[i])
		}
	}

	types := make([]model.ColumnType, columnCount)
	profiles := make([]model.ColumnProfile, columnCount)
	for i, acc := range accs {
		var name *string
		if hasHeader && i < len(result.HeaderNames) {
			n := result.HeaderNames[i]
			name = &n
		}
		profiles[i] = acc.toProfile(i, name, cfg.TopKSize)
		types[i] = acc.hist.DominantType()
	}

	result.Signature.ColumnTypes = types
	result.ColumnProfiles = profiles
	return result
}
