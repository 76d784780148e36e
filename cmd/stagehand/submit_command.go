package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stagehand/internal/bundle"
	"stagehand/internal/farm"
	"stagehand/internal/history"
	"stagehand/internal/logging"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit <hip-file> <rop-path>",
		Short: "Submit a render job to the farm",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.HipFile = args[0]
			opts.ROPPath = args[1]

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.farmClient()
			if err != nil {
				return err
			}

			sub, err := ctx.buildSubmission(cmd.Context(), opts)
			if err != nil {
				return err
			}

			dir, err := bundle.Dir(cfg.Paths.BundleDir, sub.Request.Name, time.Now())
			if err != nil {
				return err
			}
			if err := bundle.Write(dir, sub.Templ, sub.Values, sub.Refs); err != nil {
				return err
			}

			templateYAML, err := yaml.Marshal(sub.Templ)
			if err != nil {
				return fmt.Errorf("encode job template: %w", err)
			}

			parameters := map[string]string{"HipFile": sub.Request.HipFile}
			for _, value := range sub.Request.QueueValues {
				parameters[value.Name] = value.Value
			}

			jobID, err := client.CreateJob(cmd.Context(), cfg.Farm.FarmID, cfg.Farm.QueueID, farm.CreateJobRequest{
				Template:            string(templateYAML),
				TemplateType:        "YAML",
				Priority:            sub.Request.Priority,
				TargetTaskRunStatus: sub.Request.InitialStatus,
				MaxFailedTasksCount: sub.Request.FailedTasksLimit,
				MaxRetriesPerTask:   sub.Request.TaskRetryLimit,
				Parameters:          parameters,
				StorageProfileID:    cfg.Farm.StorageProfileID,
			})
			if err != nil {
				return err
			}

			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			if _, err := store.Record(cmd.Context(), history.Submission{
				JobID:     jobID,
				JobName:   sub.Request.Name,
				FarmID:    cfg.Farm.FarmID,
				QueueID:   cfg.Farm.QueueID,
				HipFile:   sub.Request.HipFile,
				BundleDir: dir,
				StepCount: len(sub.Request.Steps),
			}); err != nil {
				return fmt.Errorf("record submission: %w", err)
			}

			ctx.loggerValue().Info("submitted job",
				logging.String("job_id", jobID),
				logging.String("job", sub.Request.Name),
				logging.Int("steps", len(sub.Request.Steps)))
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}

	opts.registerFlags(cmd.Flags())
	return cmd
}
