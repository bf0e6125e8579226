package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"meshforge/internal/deps"
	"meshforge/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check collaborator commands and directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Commands", colorize) {
				fmt.Fprintln(out, line)
			}
			statuses := preflight.CheckSystemDeps(cfg)
			for _, status := range statuses {
				fmt.Fprintln(out, renderDependencyLine(status, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required command(s) unavailable", len(missing))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return errors.New("environment checks failed")
			}
			return nil
		},
	}
}

func renderDependencyLine(status deps.Status, colorize bool) string {
	switch {
	case status.Available:
		return renderStatusLine(status.Name, statusOK, status.Path, colorize)
	case status.Optional:
		return renderStatusLine(status.Name, statusWarn, status.Detail+" (optional: "+status.Description+")", colorize)
	default:
		return renderStatusLine(status.Name, statusError, status.Detail+" ("+status.Description+")", colorize)
	}
}
