package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"stagehand/internal/queueparams"
)

// storedParamsFile keeps the last synced queue parameter values so a
// refreshed definition set can preserve what the user already entered.
const storedParamsFile = "queue_params.json"

func newParamsCommand(ctx *commandContext) *cobra.Command {
	paramsCmd := &cobra.Command{
		Use:   "params",
		Short: "Queue environment parameters",
	}
	paramsCmd.AddCommand(newParamsSyncCommand(ctx))
	return paramsCmd
}

func newParamsSyncCommand(ctx *commandContext) *cobra.Command {
	var set map[string]string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh queue parameter definitions from the farm",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.farmClient()
			if err != nil {
				return err
			}

			defs, err := client.ListQueueParameterDefinitions(cmd.Context(), cfg.Farm.FarmID, cfg.Farm.QueueID)
			if err != nil {
				return fmt.Errorf("fetch queue parameters: %w", err)
			}

			storedPath := filepath.Join(cfg.Paths.DataDir, storedParamsFile)
			stored, err := readStoredParams(storedPath)
			if err != nil {
				return err
			}
			for name, value := range set {
				stored[name] = value
			}

			values, err := queueparams.Merge(defs, stored)
			if err != nil {
				return err
			}
			if err := writeStoredParams(storedPath, values); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(values) == 0 {
				fmt.Fprintln(out, "The queue defines no environment parameters.")
				return nil
			}

			valueByName := make(map[string]string, len(values))
			for _, v := range values {
				valueByName[v.Name] = v.Value
			}

			groups, ungrouped := queueparams.Groups(defs)
			labels := make([]string, 0, len(groups))
			for label := range groups {
				labels = append(labels, label)
			}
			sort.Strings(labels)

			var rows [][]string
			appendRows := func(group string, defs []queueparams.Definition) {
				for _, def := range defs {
					if def.Hidden() {
						continue
					}
					rows = append(rows, []string{group, def.Label(), def.Type, valueByName[def.Name]})
				}
			}
			for _, label := range labels {
				appendRows(label, groups[label])
			}
			appendRows("", ungrouped)

			fmt.Fprintln(out, renderTable([]string{"Group", "Parameter", "Type", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&set, "set", nil, "Override a parameter value as name=value (repeatable)")
	return cmd
}

func readStoredParams(path string) (map[string]string, error) {
	stored := map[string]string{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return stored, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stored parameters: %w", err)
	}
	var values []queueparams.Value
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse stored parameters: %w", err)
	}
	for _, v := range values {
		stored[v.Name] = v.Value
	}
	return stored, nil
}

func writeStoredParams(path string, values []queueparams.Value) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stored parameters: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write stored parameters: %w", err)
	}
	return nil
}
