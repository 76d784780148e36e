package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"stagehand/internal/assets"
	"stagehand/internal/job"
	"stagehand/internal/queueparams"
	"stagehand/internal/rop"
	"stagehand/internal/scene"
)

// submitOptions carries the job settings shared by bundle and submit.
type submitOptions struct {
	HipFile string
	ROPPath string

	Name             string
	Description      string
	Priority         int
	Paused           bool
	FailedTasksLimit int
	TaskRetryLimit   int
	SeparateSteps    bool

	// Parameters are queue-environment values entered on the command line,
	// keyed by definition name.
	Parameters map[string]string
	// Offline skips the farm round trip for queue parameter definitions.
	Offline bool
}

func (o *submitOptions) registerFlags(set *pflag.FlagSet) {
	set.StringVar(&o.Name, "name", "", "Job name (defaults to the hip file name)")
	set.StringVar(&o.Description, "description", "", "Job description")
	set.IntVar(&o.Priority, "priority", 50, "Job priority")
	set.BoolVar(&o.Paused, "paused", false, "Create the job in a paused state")
	set.IntVar(&o.FailedTasksLimit, "failed-tasks-limit", 20, "Maximum failed tasks before the job stops")
	set.IntVar(&o.TaskRetryLimit, "task-retry-limit", 5, "Maximum retries per task")
	set.BoolVar(&o.SeparateSteps, "separate-steps", false, "Submit each render node as its own step")
	set.StringToStringVar(&o.Parameters, "parameter", nil, "Queue parameter value as name=value (repeatable)")
}

// submission is a fully resolved job ready to be bundled or submitted.
type submission struct {
	Request job.Request
	Templ   *job.Template
	Values  job.ParameterValues
	Refs    assets.Lists
	Scene   *scene.Scene
}

// buildSubmission probes the scene, resolves render steps, scans asset
// references, merges queue parameters, and assembles the job documents.
func (c *commandContext) buildSubmission(ctx context.Context, opts submitOptions) (*submission, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	prober, err := c.prober()
	if err != nil {
		return nil, err
	}
	sc, err := prober.Probe(ctx, opts.HipFile, opts.ROPPath)
	if err != nil {
		return nil, fmt.Errorf("probe scene: %w", err)
	}

	steps, err := rop.BuildSteps(sc, opts.ROPPath, opts.SeparateSteps)
	if err != nil {
		return nil, err
	}
	refs := assets.ScanScene(sc, opts.ROPPath).ToLists()

	var defs []queueparams.Definition
	var values []queueparams.Value
	if !opts.Offline && strings.TrimSpace(cfg.Farm.Endpoint) != "" {
		client, err := c.farmClient()
		if err != nil {
			return nil, err
		}
		defs, err = client.ListQueueParameterDefinitions(ctx, cfg.Farm.FarmID, cfg.Farm.QueueID)
		if err != nil {
			return nil, fmt.Errorf("fetch queue parameters: %w", err)
		}
		values, err = queueparams.Merge(defs, opts.Parameters)
		if err != nil {
			return nil, err
		}
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		base := filepath.Base(sc.HipFile)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	initialStatus := "READY"
	if opts.Paused {
		initialStatus = "PAUSED"
	}

	req := job.Request{
		Name:             name,
		Description:      opts.Description,
		Priority:         opts.Priority,
		InitialStatus:    initialStatus,
		FailedTasksLimit: opts.FailedTasksLimit,
		TaskRetryLimit:   opts.TaskRetryLimit,
		HipFile:          sc.HipFile,
		HoudiniVersion:   houdiniVersionFor(sc, cfg.Houdini.Version),
		SeparateSteps:    opts.SeparateSteps,
		Steps:            steps,
		QueueDefinitions: defs,
		QueueValues:      values,
	}
	tmpl, err := req.BuildTemplate()
	if err != nil {
		return nil, err
	}

	return &submission{
		Request: req,
		Templ:   tmpl,
		Values:  req.BuildParameterValues(),
		Refs:    refs,
		Scene:   sc,
	}, nil
}

// houdiniVersionFor prefers the version the scene was probed with, falling
// back to the configured one. The render host loads the matching build.
func houdiniVersionFor(sc *scene.Scene, configured string) string {
	if v := strings.TrimSpace(sc.HoudiniVersion); v != "" {
		return v
	}
	return strings.TrimSpace(configured)
}
