// Package cli wires the pipeline together behind a small set of
// subcommands meant to be run from cron or by hand.
package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runPipeline(args[1:])
	case "refresh":
		return runRefresh(args[1:])
	case "status":
		return runStatus(args[1:])
	case "browse":
		return runBrowse(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("shorts-pipeline: incremental channel-to-shorts publishing pipeline")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  shorts-pipeline doctor --config pipeline.yaml")
	fmt.Println("  shorts-pipeline run --config pipeline.yaml")
	fmt.Println("  shorts-pipeline status --config pipeline.yaml")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      one full pipeline run: refresh, warm cache, publish segments")
	fmt.Println("  refresh  merge the current channel listing into the tracking file")
	fmt.Println("  status   per-item progress rollup from the tracking file")
	fmt.Println("  browse   interactive read-only tracking file browser")
	fmt.Println("  doctor   dependency and configuration preflight checks")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Runs are resumable; schedule `run` blindly and it picks up where it stopped")
}
