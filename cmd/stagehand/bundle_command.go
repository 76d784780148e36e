package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stagehand/internal/bundle"
	"stagehand/internal/logging"
)

func newBundleCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	var outputDir string

	cmd := &cobra.Command{
		Use:   "bundle <hip-file> <rop-path>",
		Short: "Write a job bundle without submitting it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.HipFile = args[0]
			opts.ROPPath = args[1]

			sub, err := ctx.buildSubmission(cmd.Context(), opts)
			if err != nil {
				return err
			}

			root := outputDir
			if root == "" {
				root = ctx.configValue().Paths.BundleDir
			}
			dir, err := bundle.Dir(root, sub.Request.Name, time.Now())
			if err != nil {
				return err
			}
			if err := bundle.Write(dir, sub.Templ, sub.Values, sub.Refs); err != nil {
				return err
			}

			ctx.loggerValue().Info("wrote job bundle",
				logging.String("job", sub.Request.Name),
				logging.Int("steps", len(sub.Request.Steps)),
				logging.String("dir", dir))
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}

	opts.registerFlags(cmd.Flags())
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Bundle root directory (defaults to the configured bundle_dir)")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "Skip fetching queue parameter definitions from the farm")
	return cmd
}
