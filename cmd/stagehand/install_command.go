package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/install"
	"stagehand/internal/version"
)

func newInstallCommand(ctx *commandContext) *cobra.Command {
	var houdiniVersion string
	var sourceDir string
	var installDir string
	var assetDir string
	var depsArchive string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the submitter plugin into Houdini",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var prompt version.Prompter
			if stdoutIsTerminal() {
				prompt = promptHoudiniVersion(cmd)
			}

			installer, err := install.New(install.Options{
				Version:           houdiniVersion,
				CachePath:         ctx.versionCachePath(),
				Prompt:            prompt,
				SourceDir:         sourceDir,
				InstallDir:        installDir,
				AssetDir:          assetDir,
				DepsArchive:       depsArchive,
				HoudiniInstallDir: cfg.Houdini.InstallDir,
				HotlPath:          cfg.Houdini.Hotl,
				Logger:            ctx.loggerValue(),
			})
			if err != nil {
				return err
			}

			result, err := installer.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Installed for Houdini %s\n", result.Version)
			fmt.Fprintf(out, "Package pointer: %s\n", result.PointerPath)
			if result.AssetPath != "" {
				fmt.Fprintf(out, "Compiled asset: %s\n", result.AssetPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&houdiniVersion, "houdini-version", "", "Houdini version (Major.Minor.Patch)")
	cmd.Flags().StringVar(&sourceDir, "source", ".", "Plugin source tree to install")
	cmd.Flags().StringVar(&installDir, "install-dir", "", "Local install tree the pointer file references")
	cmd.Flags().StringVar(&assetDir, "asset-dir", "", "Expanded digital asset directory to compile with hotl")
	cmd.Flags().StringVar(&depsArchive, "deps-archive", "", "Dependency bundle to unpack into the install tree")
	_ = cmd.MarkFlagRequired("install-dir")
	return cmd
}

func promptHoudiniVersion(cmd *cobra.Command) version.Prompter {
	return func() (string, error) {
		fmt.Fprint(cmd.OutOrStdout(), "Houdini version (Major.Minor.Patch): ")
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
