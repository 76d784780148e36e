package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stagehand/internal/assets"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect a scene's file references",
	}
	assetsCmd.AddCommand(newAssetsScanCommand(ctx))
	return assetsCmd
}

func newAssetsScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <hip-file> <rop-path>",
		Short: "List the input files and output directories a render needs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prober, err := ctx.prober()
			if err != nil {
				return err
			}
			sc, err := prober.Probe(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("probe scene: %w", err)
			}

			lists := assets.ScanScene(sc, args[1]).ToLists()

			rows := make([][]string, 0, len(lists.InputFilenames)+len(lists.InputDirectories)+len(lists.OutputDirectories))
			for _, p := range lists.InputFilenames {
				rows = append(rows, []string{"input file", p})
			}
			for _, p := range lists.InputDirectories {
				rows = append(rows, []string{"input dir", p})
			}
			for _, p := range lists.OutputDirectories {
				rows = append(rows, []string{"output dir", p})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No file references found.")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"Kind", "Path"}, rows, nil))
			return nil
		},
	}
}
