package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"meshforge/internal/deps"
	"meshforge/internal/jobs"
	"meshforge/internal/logging"
	"meshforge/internal/pipeline"
	"meshforge/internal/preflight"
	"meshforge/internal/workflow"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs with a bounded worker pool",
		Long: `Worker claims queued jobs oldest first and runs each through the pipeline
in-process, writing outputs under paths.jobs_dir/{job id}. Only one worker may
run per state directory. Interrupt to stop; in-flight jobs are marked failed
and can be retried with "meshforge queue retry".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			for _, result := range preflight.Failed(preflight.RunAll(cmd.Context(), cfg)) {
				logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", result.Name),
					logging.String("detail", result.Detail),
					logging.String(logging.FieldImpact, "jobs depending on this resource will fail"),
				)
			}
			for _, status := range deps.Missing(preflight.CheckSystemDeps(cfg)) {
				logging.WarnWithContext(logger, "collaborator command unavailable", "dependency_missing",
					logging.String("dependency", status.Name),
					logging.String("detail", status.Detail),
					logging.String(logging.FieldErrorHint, "run `meshforge deps` for the full report"),
				)
			}

			controller, err := pipeline.FromConfig(cfg, logger, pipeline.WithOutput(io.Discard))
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *jobs.Store) error {
				mgr := workflow.NewManager(cfg, store, controller, logger, workflow.WithWorkers(workers))
				if err := mgr.Run(cmd.Context(), once); err != nil {
					return err
				}
				summary, err := mgr.Status(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Worker stopped: %d succeeded, %d failed, %d queued\n",
					summary.JobStats[jobs.StatusSucceeded],
					summary.JobStats[jobs.StatusFailed],
					summary.JobStats[jobs.StatusQueued],
				)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (defaults to workflow.workers)")
	cmd.Flags().BoolVar(&once, "once", false, "Exit once the queue is drained")
	return cmd
}
