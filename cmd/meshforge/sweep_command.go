package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"meshforge/internal/sweep"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var dryRun bool
	var only []string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the parameter sweep experiments",
		Long: `Sweep runs the fixed experiment grid (steps, guidance, seed, prompt,
resolution, and mesh quality). Each grid point runs "meshforge run" as a child
process; its image and GLB are filed as {output-dir}/{experiment}/{point}/{name}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exps, err := sweep.Select(sweep.Experiments(), only)
			if err != nil {
				return err
			}
			root, err := filepath.Abs(outputDir)
			if err != nil {
				return fmt.Errorf("resolve output dir: %w", err)
			}
			out := cmd.OutOrStdout()
			if dryRun {
				printSweepPlan(out, sweep.Plan(root, exps))
				return nil
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runner, err := sweep.NewProcessRunner(ctx.childArgs()...)
			if err != nil {
				return err
			}
			harness := sweep.New(root, runner, sweep.WithLogger(logger), sweep.WithOutput(out))
			summary, runErr := harness.Run(cmd.Context(), exps)
			if summary != nil {
				printSweepSummary(out, summary)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "Sweep root directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List planned attempts without running them")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Run only the named experiment (repeatable)")
	return cmd
}

func printSweepPlan(out io.Writer, attempts []sweep.Attempt) {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			a.Experiment,
			a.Point,
			strconv.FormatInt(a.Seed, 10),
			a.ImageDestination(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]column{left("Experiment"), left("Point"), right("Seed"), left("Destination")},
		rows,
	))
	fmt.Fprintf(out, "%d attempts planned\n", len(attempts))
}

func printSweepSummary(out io.Writer, summary *sweep.Summary) {
	counts := summary.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		c := counts[name]
		rows = append(rows, []string{
			displayLabel(name),
			strconv.Itoa(c.Attempts),
			strconv.Itoa(c.Succeeded),
			strconv.Itoa(c.Failed),
			strconv.Itoa(c.Images),
			strconv.Itoa(c.GLBs),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]column{left("Experiment"), right("Attempts"), right("Succeeded"), right("Failed"), right("Images"), right("GLBs")},
			rows,
		))
	}
	fmt.Fprintf(out, "Removed %d temp directories", summary.CleanedDirs)
	if n := len(summary.CleanupErrors); n > 0 {
		fmt.Fprintf(out, " (%d could not be removed)", n)
	}
	fmt.Fprintln(out)
	if summary.Interrupted {
		fmt.Fprintln(out, "Sweep interrupted before every attempt ran")
	}
}
