package schema

import (
	"fmt"
	"strings"

	"github.com/gurre/csvfusion/model"
)

// DeriveCanonical binds every SchemaDefinition in m to a CanonicalSchema,
// naming columns from the header cluster their source column belongs to
// (falling back to a positional name) and collapsing definitions that
// derive an identical column signature onto one shared canonical schema.
// csvfusion has no externally hand-authored schema contracts, so the
// review verb derives them from the clustered mapping instead of
// requiring them pre-registered.
func DeriveCanonical(m *model.Mapping, clusters model.HeaderClusterDocument) map[string]model.CanonicalSchema {
	registry := make(map[string]model.CanonicalSchema)
	bySignature := make(map[string]string)

	for i := range m.Schemas {
		def := &m.Schemas[i]
		if def.CanonicalSchemaID != nil {
			continue
		}

		cols := deriveColumns(def, clusters)
		sig := columnSignature(cols)

		id, ok := bySignature[sig]
		if !ok {
			id = fmt.Sprintf("schema_%d", len(bySignature)+1)
			bySignature[sig] = id
			registry[id] = model.CanonicalSchema{
				Namespace: "csvfusion",
				ID:        id,
				Version:   1,
				Columns:   cols,
			}
		}

		version := 1
		boundID := id
		def.CanonicalSchemaID = &boundID
		def.CanonicalSchemaVer = &version
	}

	return registry
}

func deriveColumns(def *model.SchemaDefinition, clusters model.HeaderClusterDocument) []model.CanonicalColumn {
	names := canonicalNamesForSchema(def, clusters)
	cols := make([]model.CanonicalColumn, len(def.Columns))
	for i, c := range def.Columns {
		name, ok := names[c.Index]
		if !ok || name == "" {
			name = fmt.Sprintf("col_%d", c.Index)
		}
		cols[i] = model.CanonicalColumn{
			Name:      name,
			DataType:  c.DominantType,
			AllowNull: true,
		}
	}
	return cols
}

// canonicalNamesForSchema looks up the canonical cluster name for each
// column index this schema's source files contribute, preferring any
// cluster that references one of the definition's files.
func canonicalNamesForSchema(def *model.SchemaDefinition, clusters model.HeaderClusterDocument) map[int]string {
	files := make(map[string]bool, len(def.BlocksByFile))
	for fp := range def.BlocksByFile {
		files[fp] = true
	}

	out := map[int]string{}
	for _, cluster := range clusters.Clusters {
		for _, member := range cluster.Members {
			if !files[member.FilePath] {
				continue
			}
			if _, already := out[member.ColumnIndex]; already {
				continue
			}
			out[member.ColumnIndex] = cluster.CanonicalName
		}
	}
	return out
}

func columnSignature(cols []model.CanonicalColumn) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Name + ":" + string(c.DataType)
	}
	return strings.Join(parts, "|")
}
