// Package job builds Open Job Description templates for Houdini render
// submissions. Each render step runs inside an environment that keeps a
// background Houdini session alive across tasks.
package job

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"stagehand/internal/queueparams"
	"stagehand/internal/rop"
)

// SpecificationVersion identifies the template dialect.
const SpecificationVersion = "jobtemplate-2023-09"

// AdaptorCommand is the worker-side binary the template invokes.
const AdaptorCommand = "stagehand-adaptor"

const cancelationNotifyThenTerminate = "NOTIFY_THEN_TERMINATE"

// frameParamRef is quoted by the YAML encoder; the quotes are stripped after
// encoding so the scheduler substitutes an integer, not a string.
const frameParamRef = "{{Task.Param.Frame}}"

// ParameterDefinition is one job parameter of the template. It covers both
// queue-environment parameters and the intrinsic HipFile parameter.
type ParameterDefinition struct {
	Name          string                     `yaml:"name"`
	Type          string                     `yaml:"type"`
	ObjectType    string                     `yaml:"objectType,omitempty"`
	DataFlow      string                     `yaml:"dataFlow,omitempty"`
	Default       string                     `yaml:"default,omitempty"`
	Description   string                     `yaml:"description,omitempty"`
	AllowedValues []string                   `yaml:"allowedValues,omitempty"`
	MinValue      string                     `yaml:"minValue,omitempty"`
	MaxValue      string                     `yaml:"maxValue,omitempty"`
	UserInterface *queueparams.UserInterface `yaml:"userInterface,omitempty"`
}

// EmbeddedFile is a text attachment materialized into the session directory.
type EmbeddedFile struct {
	Name     string `yaml:"name"`
	Filename string `yaml:"filename"`
	Type     string `yaml:"type"`
	Data     string `yaml:"data"`
}

// Cancelation describes how a running action is interrupted.
type Cancelation struct {
	Mode string `yaml:"mode"`
}

// Action is one command invocation of a script.
type Action struct {
	Command     string       `yaml:"command"`
	Args        []string     `yaml:"args"`
	Cancelation *Cancelation `yaml:"cancelation,omitempty"`
}

// Actions groups the lifecycle hooks of a script.
type Actions struct {
	OnEnter *Action `yaml:"onEnter,omitempty"`
	OnExit  *Action `yaml:"onExit,omitempty"`
	OnRun   *Action `yaml:"onRun,omitempty"`
}

// Script pairs embedded files with lifecycle actions.
type Script struct {
	EmbeddedFiles []EmbeddedFile `yaml:"embeddedFiles,omitempty"`
	Actions       Actions        `yaml:"actions"`
}

// Environment wraps a script that runs around a step's tasks.
type Environment struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Script      Script `yaml:"script"`
}

// TaskParameter defines one axis of a step's parameter space.
type TaskParameter struct {
	Name  string `yaml:"name"`
	Range string `yaml:"range"`
	Type  string `yaml:"type"`
}

// ParameterSpace expands a step into one task per parameter combination.
type ParameterSpace struct {
	TaskParameterDefinitions []TaskParameter `yaml:"taskParameterDefinitions"`
}

// Dependency names a step that must finish first.
type Dependency struct {
	DependsOn string `yaml:"dependsOn"`
}

// StepTemplate is one renderable step of the job.
type StepTemplate struct {
	Name             string          `yaml:"name"`
	StepEnvironments []Environment   `yaml:"stepEnvironments,omitempty"`
	ParameterSpace   *ParameterSpace `yaml:"parameterSpace,omitempty"`
	Dependencies     []Dependency    `yaml:"dependencies,omitempty"`
	Script           Script          `yaml:"script"`
}

// Template is a complete job template document.
type Template struct {
	SpecificationVersion string                `yaml:"specificationVersion"`
	Name                 string                `yaml:"name"`
	Description          string                `yaml:"description,omitempty"`
	ParameterDefinitions []ParameterDefinition `yaml:"parameterDefinitions"`
	Steps                []StepTemplate        `yaml:"steps"`
}

// ParameterValue is one resolved job parameter.
type ParameterValue struct {
	Name  string `yaml:"name" json:"name"`
	Value any    `yaml:"value" json:"value"`
}

// ParameterValues is the parameter_values document of a bundle.
type ParameterValues struct {
	ParameterValues []ParameterValue `yaml:"parameterValues" json:"parameterValues"`
}

// Request carries everything needed to build a submission.
type Request struct {
	Name             string
	Description      string
	Priority         int
	InitialStatus    string
	FailedTasksLimit int
	TaskRetryLimit   int

	HipFile        string
	HoudiniVersion string
	SeparateSteps  bool
	Steps          []rop.Step

	QueueDefinitions []queueparams.Definition
	QueueValues      []queueparams.Value
}

// BuildTemplate assembles the template document from the resolved steps.
func (r Request) BuildTemplate() (*Template, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, errors.New("job name required")
	}
	if len(r.Steps) == 0 {
		return nil, errors.New("no render steps; the submitter node needs an input network")
	}

	defs := make([]ParameterDefinition, 0, len(r.QueueDefinitions)+1)
	for _, qd := range r.QueueDefinitions {
		defs = append(defs, ParameterDefinition{
			Name:          qd.Name,
			Type:          qd.Type,
			Default:       qd.Default,
			Description:   qd.Description,
			AllowedValues: qd.AllowedValues,
			MinValue:      qd.MinValue,
			MaxValue:      qd.MaxValue,
			UserInterface: qd.UserInterface,
		})
	}
	defs = append(defs, ParameterDefinition{
		Name:       "HipFile",
		Type:       "PATH",
		ObjectType: "FILE",
		DataFlow:   "IN",
		Default:    r.HipFile,
	})

	steps := make([]StepTemplate, 0, len(r.Steps))
	for _, step := range r.Steps {
		tmpl, err := r.stepTemplate(step)
		if err != nil {
			return nil, err
		}
		steps = append(steps, tmpl)
	}

	return &Template{
		SpecificationVersion: SpecificationVersion,
		Name:                 r.Name,
		Description:          r.Description,
		ParameterDefinitions: defs,
		Steps:                steps,
	}, nil
}

// BuildParameterValues assembles the parameter_values document.
func (r Request) BuildParameterValues() ParameterValues {
	values := []ParameterValue{
		{Name: "deadline:priority", Value: r.Priority},
		{Name: "deadline:targetTaskRunStatus", Value: r.InitialStatus},
		{Name: "deadline:maxFailedTasksCount", Value: r.FailedTasksLimit},
		{Name: "deadline:maxRetriesPerTask", Value: r.TaskRetryLimit},
		{Name: "HipFile", Value: r.HipFile},
	}
	for _, qv := range r.QueueValues {
		values = append(values, ParameterValue{Name: qv.Name, Value: qv.Value})
	}
	return ParameterValues{ParameterValues: values}
}

// initData is the adaptor bootstrap document embedded in each step's
// environment. Keys stay alphabetical to keep the encoded form stable.
type initData struct {
	IgnoreInputNodes bool   `yaml:"ignore_input_nodes"`
	RenderNode       string `yaml:"render_node"`
	SceneFile        string `yaml:"scene_file"`
	Version          string `yaml:"version"`
	WedgeNode        string `yaml:"wedge_node"`
	WedgeNum         string `yaml:"wedgenum"`
}

type frameRange struct {
	Start any `yaml:"start"`
	End   any `yaml:"end"`
	Step  any `yaml:"step"`
}

type runData struct {
	FrameRange       frameRange `yaml:"frame_range"`
	IgnoreInputNodes bool       `yaml:"ignore_input_nodes"`
	RenderNode       string     `yaml:"render_node"`
}

func (r Request) stepTemplate(step rop.Step) (StepTemplate, error) {
	initDoc, err := yaml.Marshal(initData{
		IgnoreInputNodes: r.SeparateSteps,
		RenderNode:       step.Path,
		SceneFile:        "{{Param.HipFile}}",
		Version:          r.HoudiniVersion,
		WedgeNode:        step.WedgeNode,
		WedgeNum:         step.WedgeNum,
	})
	if err != nil {
		return StepTemplate{}, fmt.Errorf("encode init data: %w", err)
	}

	run := runData{
		IgnoreInputNodes: r.SeparateSteps,
		RenderNode:       step.Path,
	}
	var paramSpace *ParameterSpace
	if step.Strategy == rop.StrategySequential {
		run.FrameRange = frameRange{Start: step.Start, End: step.End, Step: step.Inc}
	} else {
		run.FrameRange = frameRange{Start: frameParamRef, End: frameParamRef, Step: 1}
		paramSpace = &ParameterSpace{
			TaskParameterDefinitions: []TaskParameter{
				{Name: "Frame", Range: step.FrameRangeExpression(), Type: "INT"},
			},
		}
	}
	runDoc, err := yaml.Marshal(run)
	if err != nil {
		return StepTemplate{}, fmt.Errorf("encode run data: %w", err)
	}
	runText := strings.ReplaceAll(string(runDoc), "'"+frameParamRef+"'", frameParamRef)

	var deps []Dependency
	for _, name := range step.DependencyNames {
		deps = append(deps, Dependency{DependsOn: name})
	}

	return StepTemplate{
		Name:             step.Name,
		StepEnvironments: houdiniEnvironments(string(initDoc)),
		ParameterSpace:   paramSpace,
		Dependencies:     deps,
		Script: Script{
			EmbeddedFiles: []EmbeddedFile{
				{Name: "runData", Filename: "run-data.yaml", Type: "TEXT", Data: runText},
			},
			Actions: Actions{
				OnRun: &Action{
					Command: AdaptorCommand,
					Args: []string{
						"daemon", "run",
						"--connection-file", "{{Session.WorkingDirectory}}/connection.json",
						"--run-data", "file://{{Task.File.runData}}",
					},
					Cancelation: &Cancelation{Mode: cancelationNotifyThenTerminate},
				},
			},
		},
	}, nil
}

// houdiniEnvironments returns the step environment that starts the
// background Houdini session before the first task and stops it afterwards.
func houdiniEnvironments(initDoc string) []Environment {
	return []Environment{
		{
			Name:        "Houdini",
			Description: "Runs Houdini in the background.",
			Script: Script{
				EmbeddedFiles: []EmbeddedFile{
					{Name: "initData", Filename: "init-data.yaml", Type: "TEXT", Data: initDoc},
				},
				Actions: Actions{
					OnEnter: &Action{
						Command: AdaptorCommand,
						Args: []string{
							"daemon", "start",
							"--path-mapping-rules", "file://{{Session.PathMappingRulesFile}}",
							"--connection-file", "{{Session.WorkingDirectory}}/connection.json",
							"--init-data", "file://{{Env.File.initData}}",
						},
						Cancelation: &Cancelation{Mode: cancelationNotifyThenTerminate},
					},
					OnExit: &Action{
						Command: AdaptorCommand,
						Args: []string{
							"daemon", "stop",
							"--connection-file", "{{Session.WorkingDirectory}}/connection.json",
						},
						Cancelation: &Cancelation{Mode: cancelationNotifyThenTerminate},
					},
				},
			},
		},
	}
}
