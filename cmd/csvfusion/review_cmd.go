package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/gurre/csvfusion/cluster"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/schema"
	"github.com/gurre/csvfusion/store"
	"github.com/gurre/csvfusion/synonyms"
)

func runReview(args []string) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	mappingPath := fs.String("mapping", "mapping.json", "path to the mapping artifact produced by analyze")
	synonymsPath := fs.String("synonyms", "", "path to a JSON {canonical_term: [variants]} dictionary (defaults to the built-in retail/logistics set)")
	storePath := fs.String("store", "csvfusion.db", "path to the durable sqlite store")
	jobID := fs.String("job-id", "", "job id continuing from analyze")
	reviewOut := fs.String("out", "mapping.review.json", "path to write the reviewed mapping")
	clustersOut := fs.String("clusters-out", "mapping.header_clusters.json", "path to write the header cluster document")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *jobID == "" {
		return fmt.Errorf("%w: -job-id is required", errUsage)
	}

	var mapping model.Mapping
	if err := readJSON(*mappingPath, &mapping); err != nil {
		return err
	}

	syn, err := loadSynonyms(*synonymsPath)
	if err != nil {
		return err
	}

	st, err := store.Open(*storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	jobLog, err := loadOrStartJobLog(ctx, st, *jobID)
	if err != nil {
		return err
	}
	if err := transitionJob(ctx, st, jobLog, model.JobMapping, "clustering headers and binding canonical schemas"); err != nil {
		return err
	}

	var previous *model.HeaderClusterDocument
	if prev, ok, err := st.LatestHeaderClusters(ctx); err == nil && ok {
		previous = &prev
	}

	clusters := cluster.Build(mapping, previous, syn)
	if err := st.PutHeaderClusters(ctx, clusters); err != nil {
		_ = transitionJob(ctx, st, jobLog, model.JobFailed, err.Error())
		return err
	}

	canonical := schema.DeriveCanonical(&mapping, clusters)
	for _, cs := range canonical {
		if err := st.PutSchema(ctx, cs); err != nil {
			_ = transitionJob(ctx, st, jobLog, model.JobFailed, err.Error())
			return err
		}
	}

	if err := writeJSON(*reviewOut, mapping); err != nil {
		return err
	}
	if err := writeJSON(*clustersOut, clusters); err != nil {
		return err
	}

	needsReview := 0
	for _, c := range clusters.Clusters {
		if c.NeedsReview {
			needsReview++
		}
	}
	fmt.Printf("job %s: %d header clusters (%d flagged for review), %d canonical schemas bound -> %s, %s\n",
		*jobID, len(clusters.Clusters), needsReview, len(canonical), *reviewOut, *clustersOut)
	return nil
}

func loadSynonyms(path string) (synonyms.Canonicalizer, error) {
	if path == "" {
		return synonyms.Default(), nil
	}
	var seed map[string][]string
	if err := readJSON(path, &seed); err != nil {
		return nil, err
	}
	return synonyms.NewStaticMap(seed), nil
}
