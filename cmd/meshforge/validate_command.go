package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meshforge/internal/validation"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var input string
	var root string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a mesh and print its report as JSON",
		Long: `Validate runs the configured validator on --input, or on the newest GLB
under {root}/processed_meshes when no input is given (falling back to the
newest *_cleaned.obj).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			target := strings.TrimSpace(input)
			if target == "" {
				if strings.TrimSpace(root) == "" {
					root = cfg.Paths.OutputDir
				}
				if target, err = validation.Latest(root); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Validating %s\n", target)
			}

			inspector := validation.NewInspector(cfg, validation.WithLogger(logger))
			report, err := inspector.Inspect(cmd.Context(), target)
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Mesh to validate")
	cmd.Flags().StringVar(&root, "root", "", "Output root searched when --input is unset (defaults to paths.output_dir)")
	return cmd
}
