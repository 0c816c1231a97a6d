// Package normalize implements the Offset Detector & Row Normalizer: for
// every file, it selects a source column for each canonical column (by
// header cluster match, falling back to a dominant-type match), then reorders
// emitted rows into canonical order.
package normalize

import (
	"math"

	"github.com/gurre/csvfusion/model"
)

// Detector resolves per-file column mappings against a canonical schema.
type Detector struct {
	Clusters model.HeaderClusterDocument
}

// DetectFile returns the ordered source-to-canonical column mapping for
// one file's schema definition against a canonical schema.
func (d *Detector) DetectFile(filePath string, def model.SchemaDefinition, canon model.CanonicalSchema) model.FileSchemaMapping {
	clusterForColumn := d.clusterLookup(filePath)

	mappings := make([]model.ColumnMapping, 0, len(canon.Columns))
	usedSources := map[int]bool{}

	for canonIdx, cc := range canon.Columns {
		srcIdx, confidence, ok := matchByCluster(filePath, cc.Name, clusterForColumn, def, usedSources)
		if !ok {
			srcIdx, confidence, ok = matchByProfile(cc, def, usedSources)
		}
		if !ok {
			mappings = append(mappings, model.ColumnMapping{SourceIndex: -1, CanonicalIndex: canonIdx, Confidence: 0})
			continue
		}
		usedSources[srcIdx] = true
		mappings = append(mappings, model.ColumnMapping{SourceIndex: srcIdx, CanonicalIndex: canonIdx, Confidence: confidence})
	}

	return model.FileSchemaMapping{FilePath: filePath, SchemaID: def.SchemaID, Mappings: mappings}
}

// clusterLookup indexes this file's header clusters by column index.
func (d *Detector) clusterLookup(filePath string) map[int]model.HeaderCluster {
	out := map[int]model.HeaderCluster{}
	for _, c := range d.Clusters.Clusters {
		for _, m := range c.Members {
			if m.FilePath == filePath {
				out[m.ColumnIndex] = c
			}
		}
	}
	return out
}

func matchByCluster(filePath, canonName string, clusters map[int]model.HeaderCluster, def model.SchemaDefinition, used map[int]bool) (int, float64, bool) {
	for colIdx, cluster := range clusters {
		if used[colIdx] {
			continue
		}
		if cluster.CanonicalName == canonName && colIdx < len(def.Columns) {
			return colIdx, cluster.Confidence, true
		}
	}
	return 0, 0, false
}

// matchByProfile is the fallback when no cluster ties the canonical column
// to a source column by name: it picks the first unused column, in column
// order, whose dominant type equals the canonical column's data type, with
// confidence 1.0. Type histograms, null ratios and numeric ranges are not
// compared.
func matchByProfile(cc model.CanonicalColumn, def model.SchemaDefinition, used map[int]bool) (int, float64, bool) {
	best := -1
	bestDist := math.MaxFloat64
	for _, col := range def.Columns {
		if used[col.Index] {
			continue
		}
		if col.DominantType != cc.DataType {
			continue
		}
		dist := 0.0 // same dominant type -> zero base distance; ties broken by column order
		if dist < bestDist {
			bestDist = dist
			best = col.Index
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	confidence := 1.0 / (1.0 + bestDist)
	return best, confidence, true
}

// NormalizedRow reorders raw values into canonical column order. Missing
// sources, and source indices at or beyond len(raw), yield nullRepr; raw
// columns that no mapping references are dropped.
func NormalizedRow(raw []string, mapping model.FileSchemaMapping, nullRepr string) []string {
	out := make([]string, len(mapping.Mappings))
	for i, m := range mapping.Mappings {
		if m.SourceIndex < 0 || m.SourceIndex >= len(raw) {
			out[i] = nullRepr
			continue
		}
		out[i] = raw[m.SourceIndex]
	}
	return out
}
