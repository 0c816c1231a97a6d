// Package schema implements the Canonical Schema Registry & Validator:
// a versioned contract store keyed by (namespace, id, version), plus a
// per-row validator that accumulates required/type/enum/range counters.
package schema

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gurre/csvfusion/model"
)

// Registry is an in-memory, versioned canonical schema store. The durable
// backing (sqlite) lives in package store; Registry is the narrow
// query/validate surface every phase actually calls.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]model.CanonicalSchema // key: namespace/id/version
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]model.CanonicalSchema)}
}

func key(namespace, id string, version int) string {
	return fmt.Sprintf("%s/%s/%d", namespace, id, version)
}

// Put registers (or replaces) a canonical schema version.
func (r *Registry) Put(cs model.CanonicalSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[key(cs.Namespace, cs.ID, cs.Version)] = cs
}

// Get returns the canonical schema for (namespace, id, version).
func (r *Registry) Get(namespace, id string, version int) (model.CanonicalSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.schemas[key(namespace, id, version)]
	return cs, ok
}

// Counters is the per-(job, schema) aggregate produced by validating every
// row against a canonical schema.
type Counters struct {
	Rows            int64
	MissingRequired int64
	TypeMismatches  int64
}

// ValidationOutcome classifies one canonical column's check for one row.
// Exactly one of OK/MissingRequired/TypeMismatch holds for every
// (canonical schema, row, column) triple.
type ValidationOutcome int

const (
	OutcomeOK ValidationOutcome = iota
	OutcomeMissingRequired
	OutcomeTypeMismatch
)

// ValidateRow checks a canonically-ordered row (already reordered by
// normalize.NormalizedRow) against cs, returning one outcome per column
// and updating counters. The row is never rejected: mismatches are
// counted but every row is still emitted; no SCHEMA_MISMATCH error is
// raised for them.
func ValidateRow(row []string, cs model.CanonicalSchema, counters *Counters) []ValidationOutcome {
	outcomes := make([]ValidationOutcome, len(cs.Columns))
	counters.Rows++

	for i, col := range cs.Columns {
		var value string
		if i < len(row) {
			value = row[i]
		}
		isNull := value == ""

		switch {
		case col.Required && isNull:
			outcomes[i] = OutcomeMissingRequired
			counters.MissingRequired++
		case isNull && col.AllowNull:
			outcomes[i] = OutcomeOK
		case !isNull && !typeParses(value, col.DataType):
			outcomes[i] = OutcomeTypeMismatch
			counters.TypeMismatches++
		case !isNull && len(col.AllowedValues) > 0 && !contains(col.AllowedValues, value):
			outcomes[i] = OutcomeTypeMismatch
			counters.TypeMismatches++
		case !isNull && col.Range != nil && !inRange(value, col.Range):
			outcomes[i] = OutcomeTypeMismatch
			counters.TypeMismatches++
		default:
			outcomes[i] = OutcomeOK
		}
	}
	return outcomes
}

func typeParses(value string, t model.ColumnType) bool {
	switch t {
	case model.TypeNumeric:
		_, err := strconv.ParseFloat(value, 64)
		return err == nil
	case model.TypeBool:
		_, err := strconv.ParseBool(value)
		return err == nil
	default:
		return true
	}
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func inRange(value string, r *model.NumericRange) bool {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false
	}
	if r.Min != nil && f < *r.Min {
		return false
	}
	if r.Max != nil && f > *r.Max {
		return false
	}
	return true
}
