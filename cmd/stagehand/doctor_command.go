package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stagehand/internal/houdini"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the required Houdini tools are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := houdini.CheckBinaries([]houdini.Requirement{
				{
					Name:        "hython",
					Command:     cfg.HythonBinary(),
					Description: "Scene probing and the sticky render session",
				},
				{
					Name:        "hotl",
					Command:     cfg.HotlBinary(),
					Description: "Compiling the submitter digital asset",
					Optional:    true,
				},
			})

			rows := make([][]string, 0, len(statuses))
			missingRequired := false
			for _, status := range statuses {
				state := "ok"
				if !status.Available {
					state = "missing"
					if !status.Optional {
						missingRequired = true
					}
				}
				detail := status.Detail
				if status.Available {
					detail = status.Command
				}
				rows = append(rows, []string{status.Name, state, detail, status.Description})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Tool", "State", "Detail", "Used for"}, rows, nil))

			if missingRequired {
				return fmt.Errorf("required tools are missing; set [houdini] overrides in the config")
			}
			return nil
		},
	}
}
