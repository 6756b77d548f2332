package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Cadence Simulator
=================

Runs the clip scheduler and facial loop against a simulated host and speech
clock, then prints the clip sequence and pick counts.

Usage:
  go run ./cmd/simulate [options]

Options:
  -scenario string
        Scenario to play with audio (default "intro")
  -duration duration
        Simulated speech length (default 1m0s)
  -step duration
        Fake clock step (default 10ms)
  -runs int
        Independent runs; luck carries over when a persistent store is configured (default 1)
  -json
        Print the report as JSON
  -quiet
        Only print counts, not the clip sequence
  -help
        Show this help message

Configuration is read like the daemon: CADENCE_CONFIG names a YAML file and
CADENCE_* environment variables override it.

Examples:
  go run ./cmd/simulate -duration 5m
  CADENCE_SEED=42 go run ./cmd/simulate -json
  CADENCE_LUCK_STORE=file CADENCE_LUCK_STORE_PATH=luck.yaml go run ./cmd/simulate -runs 3 -quiet
`)
}

// PrintReport writes r as text, or as indented JSON when asJSON is set.
func PrintReport(w io.Writer, r *Report, asJSON, quiet bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	if _, err := fmt.Fprintf(w, "scenario %s, %s simulated, %d frames\n\n", r.Scenario, r.Duration, r.Frames); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !quiet {
		fmt.Fprintln(tw, "AT\tCLIP\tMODE")
		for _, p := range r.Plays {
			mode := "once"
			if p.Loop {
				mode = "loop"
			}
			fmt.Fprintf(tw, "%.2fs\t%s\t%s\n", p.At.Seconds(), p.Clip, mode)
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintln(tw, "CLIP\tSTARTS\tPICKS\tLUCK")
	for _, k := range r.Keys() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\n", k, r.Counts[k], r.Picks[k], r.Luck[k])
	}
	return tw.Flush()
}
