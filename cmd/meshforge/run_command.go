package main

import (
	"strings"

	"github.com/spf13/cobra"

	"meshforge/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var outputDir string
	var skipImage bool
	var inputImage string
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one prompt through the text-to-3D pipeline",
		Long: `Run generates an image for --prompt, reconstructs a mesh from it, then
cleans the mesh and converts it to GLB. Each produced artifact is announced on
stdout as "Image saved to: <path>" and "Final GLB: <path>".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCfg, err := flags.runConfig(cmd)
			if err != nil {
				return err
			}
			if strings.TrimSpace(outputDir) == "" {
				outputDir = cfg.Paths.OutputDir
			}
			runCfg = runCfg.WithOutputDir(outputDir).WithManifestPath(manifestPath)
			runCfg.SkipImage = skipImage
			runCfg.InputImage = inputImage
			if runCfg, err = pipeline.NewRunConfig(runCfg); err != nil {
				return err
			}

			controller, err := pipeline.FromConfig(cfg, logger, pipeline.WithOutput(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			_, err = controller.Run(cmd.Context(), runCfg)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output root (defaults to paths.output_dir)")
	cmd.Flags().BoolVar(&skipImage, "skip-image", false, "Reuse --input-image instead of generating one")
	cmd.Flags().StringVar(&inputImage, "input-image", "", "Existing image to reconstruct (with --skip-image)")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Write a JSON run manifest to this path")
	return cmd
}
