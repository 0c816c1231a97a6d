// Package main implements the csvfusion command-line interface: five
// verbs (analyze, benchmark, review, normalize, materialize) that drive
// one heterogeneous-CSV-ingestion job through its pipeline phases,
// persisting artifacts to disk between invocations so each verb can run
// as its own process.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gurre/csvfusion/pipelineerr"
)

// errUsage marks a flag-parsing or missing-required-argument failure, so
// exitCodeFor can tell it apart from a pipeline error without threading
// an explicit code through every return path.
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	if len(argv) < 2 {
		printUsage()
		return 2
	}

	verb := argv[1]
	args := argv[2:]

	var err error
	switch verb {
	case "analyze":
		err = runAnalyze(args)
	case "benchmark":
		err = runBenchmark(args)
	case "review":
		err = runReview(args)
	case "normalize":
		err = runNormalize(args)
	case "materialize":
		err = runMaterialize(args)
	case "-h", "-help", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "csvfusion: unknown verb %q\n\n", verb)
		printUsage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "csvfusion %s: %v\n", verb, err)
		return exitCodeFor(err)
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: csvfusion <verb> [flags]

verbs:
  analyze      discover files and profile them into a mapping artifact
  benchmark    measure sustained analysis throughput without persisting artifacts
  review       cluster headers across files and bind schemas to canonical contracts
  normalize    compute per-file column mappings against bound canonical schemas
  materialize  write canonicalized rows to csv, parquet, or database destinations

run 'csvfusion <verb> -h' for verb-specific flags`)
}

// exitCodeFor maps an error to the command's exit-code contract: 0
// success, 2 user error, 3 validation, 4 IO, 5 internal.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), pipelineerr.Is(err, pipelineerr.CodeSandboxViolation), pipelineerr.Is(err, pipelineerr.CodeUserAbort):
		return 2
	case pipelineerr.Is(err, pipelineerr.CodeConfigError):
		return 3
	case pipelineerr.Is(err, pipelineerr.CodeIOError):
		return 4
	default:
		return 5
	}
}
