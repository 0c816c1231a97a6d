package materialize

import (
	"sort"

	"github.com/gurre/csvfusion/model"
)

// Task is the materialization plan for one SchemaDefinition: an ordered
// list of files, each with its blocks in line order, plus the canonical
// schema it validates and writes against.
type Task struct {
	SchemaDef model.SchemaDefinition
	Canonical model.CanonicalSchema
	Files     []FileBlocks
}

// FileBlocks is one file's ordered block list within a Task.
type FileBlocks struct {
	FilePath string
	Blocks   []model.FileBlock
}

// BuildPlan derives one Task per SchemaDefinition that has a bound
// canonical schema; schemas with no canonical binding are skipped.
// Files and blocks are ordered deterministically by path and start line,
// giving each schema a stable row-emission order.
func BuildPlan(m model.Mapping, canonical map[string]model.CanonicalSchema) []Task {
	blocksByID := make(map[string]model.FileBlock, len(m.Blocks))
	for _, b := range m.Blocks {
		blocksByID[b.BlockID] = b
	}

	var tasks []Task
	for _, def := range m.Schemas {
		if def.CanonicalSchemaID == nil {
			continue
		}
		cs, ok := canonical[*def.CanonicalSchemaID]
		if !ok {
			continue
		}

		files := make([]FileBlocks, 0, len(def.BlocksByFile))
		for path, blockIDs := range def.BlocksByFile {
			blocks := make([]model.FileBlock, 0, len(blockIDs))
			for _, id := range blockIDs {
				if b, ok := blocksByID[id]; ok {
					blocks = append(blocks, b)
				}
			}
			sort.Slice(blocks, func(i, j int) bool { return blocks[i].StartLine < blocks[j].StartLine })
			files = append(files, FileBlocks{FilePath: path, Blocks: blocks})
		}
		sort.Slice(files, func(i, j int) bool { return files[i].FilePath < files[j].FilePath })

		tasks = append(tasks, Task{SchemaDef: def, Canonical: cs, Files: files})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].SchemaDef.SchemaID < tasks[j].SchemaDef.SchemaID })
	return tasks
}
