package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/normalize"
	"github.com/gurre/csvfusion/store"
)

func runNormalize(args []string) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	mappingPath := fs.String("mapping", "mapping.review.json", "path to the reviewed mapping artifact")
	clustersPath := fs.String("clusters", "mapping.header_clusters.json", "path to the header cluster document")
	storePath := fs.String("store", "csvfusion.db", "path to the durable sqlite store")
	out := fs.String("out", "mapping.normalized.json", "path to write the normalized mapping")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var mapping model.Mapping
	if err := readJSON(*mappingPath, &mapping); err != nil {
		return err
	}
	var clusters model.HeaderClusterDocument
	if err := readJSON(*clustersPath, &clusters); err != nil {
		return err
	}

	st, err := store.Open(*storePath)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	detector := &normalize.Detector{Clusters: clusters}
	mapping.SchemaMapping = mapping.SchemaMapping[:0]

	bound := 0
	for _, def := range mapping.Schemas {
		if def.CanonicalSchemaID == nil || def.CanonicalSchemaVer == nil {
			continue
		}
		canon, ok, err := st.GetSchema(ctx, "csvfusion", *def.CanonicalSchemaID, *def.CanonicalSchemaVer)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		bound++
		for filePath := range def.BlocksByFile {
			mapping.SchemaMapping = append(mapping.SchemaMapping, detector.DetectFile(filePath, def, canon))
		}
	}

	mapping.ArtifactVersion++
	if err := writeJSON(*out, mapping); err != nil {
		return err
	}

	fmt.Printf("normalized %d file-schema mappings across %d bound schema definitions -> %s\n", len(mapping.SchemaMapping), bound, *out)
	return nil
}
