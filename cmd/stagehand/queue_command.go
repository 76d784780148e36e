package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the configured farm queue",
	}
	queueCmd.AddCommand(newQueueInfoCommand(ctx))
	return queueCmd
}

func newQueueInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the farm, queue, and storage profile this config submits to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.farmClient()
			if err != nil {
				return err
			}

			farmInfo, err := client.GetFarm(cmd.Context(), cfg.Farm.FarmID)
			if err != nil {
				return fmt.Errorf("fetch farm: %w", err)
			}
			queueInfo, err := client.GetQueue(cmd.Context(), cfg.Farm.FarmID, cfg.Farm.QueueID)
			if err != nil {
				return fmt.Errorf("fetch queue: %w", err)
			}

			rows := [][]string{
				{"Farm", farmInfo.DisplayName, cfg.Farm.FarmID},
				{"Queue", queueInfo.DisplayName, cfg.Farm.QueueID},
			}
			if strings.TrimSpace(cfg.Farm.StorageProfileID) != "" {
				profile, err := client.GetStorageProfile(cmd.Context(), cfg.Farm.FarmID, cfg.Farm.QueueID, cfg.Farm.StorageProfileID)
				if err != nil {
					return fmt.Errorf("fetch storage profile: %w", err)
				}
				rows = append(rows, []string{"Storage profile", profile.DisplayName, cfg.Farm.StorageProfileID})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Resource", "Name", "ID"}, rows, nil))
			return nil
		},
	}
}
