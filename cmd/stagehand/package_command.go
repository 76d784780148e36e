package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"stagehand/internal/depsbundle"
)

func newPackageCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:         "package <deps-dir>",
		Short:       "Zip a dependency tree into platform-suffixed bundles",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := output
			if archive == "" {
				archive = filepath.Base(filepath.Clean(args[0])) + ".zip"
			}

			// Stale copies from a previous run would no longer match the
			// fresh archive byte for byte.
			for _, suffix := range depsbundle.PlatformSuffixes {
				stale := platformArchiveName(archive, suffix)
				if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove stale archive %s: %w", stale, err)
				}
			}

			if err := depsbundle.Create(args[0], archive); err != nil {
				return err
			}
			copies, err := depsbundle.PlatformCopies(archive)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, copy := range copies {
				fmt.Fprintln(out, copy)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (platform suffixes are derived from it)")
	return cmd
}

func platformArchiveName(archive, suffix string) string {
	ext := filepath.Ext(archive)
	return archive[:len(archive)-len(ext)] + "-" + suffix + ext
}
