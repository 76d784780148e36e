package adaptor

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitData bootstraps a render session: which scene to load and which node
// to drive. Optional keys are pointers so absence can be told from zero
// values.
type InitData struct {
	SceneFile           string  `yaml:"scene_file" json:"scene_file"`
	RenderNode          string  `yaml:"render_node" json:"render_node"`
	Version             string  `yaml:"version,omitempty" json:"version,omitempty"`
	IgnoreInputNodes    *bool   `yaml:"ignore_input_nodes,omitempty" json:"ignore_input_nodes,omitempty"`
	WedgeNum            *string `yaml:"wedgenum,omitempty" json:"wedgenum,omitempty"`
	WedgeNode           *string `yaml:"wedge_node,omitempty" json:"wedge_node,omitempty"`
	StrictErrorChecking bool    `yaml:"strict_error_checking,omitempty" json:"strict_error_checking,omitempty"`
}

// ParseInitData decodes and validates an init data document.
func ParseInitData(raw []byte) (*InitData, error) {
	var data InitData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate checks the required keys.
func (d *InitData) Validate() error {
	var missing []string
	if strings.TrimSpace(d.SceneFile) == "" {
		missing = append(missing, "scene_file")
	}
	if strings.TrimSpace(d.RenderNode) == "" {
		missing = append(missing, "render_node")
	}
	if len(missing) > 0 {
		return fmt.Errorf("init data missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InitActions converts the init data into the bootstrap action sequence the
// client works through before the first render.
func (d *InitData) InitActions() []Action {
	actions := []Action{
		{Name: "scene_file", Args: map[string]any{"scene_file": d.SceneFile}},
		{Name: "render_node", Args: map[string]any{"render_node": d.RenderNode}},
	}
	if d.IgnoreInputNodes != nil {
		actions = append(actions, Action{
			Name: "ignore_input_nodes",
			Args: map[string]any{"ignore_input_nodes": *d.IgnoreInputNodes},
		})
	}
	if d.WedgeNum != nil {
		actions = append(actions, Action{
			Name: "wedgenum",
			Args: map[string]any{"wedgenum": *d.WedgeNum},
		})
	}
	if d.WedgeNode != nil {
		actions = append(actions, Action{
			Name: "wedge_node",
			Args: map[string]any{"wedge_node": *d.WedgeNode},
		})
	}
	return actions
}

// FrameRange is the span of frames one render covers.
type FrameRange struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
	Step  int `yaml:"step" json:"step"`
}

// RunData describes one render request within an established session.
type RunData struct {
	RenderNode       string     `yaml:"render_node,omitempty" json:"render_node,omitempty"`
	IgnoreInputNodes *bool      `yaml:"ignore_input_nodes,omitempty" json:"ignore_input_nodes,omitempty"`
	FrameRange       FrameRange `yaml:"frame_range" json:"frame_range"`
}

// ParseRunData decodes and validates a run data document.
func ParseRunData(raw []byte) (*RunData, error) {
	var data RunData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse run data: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate checks the frame range is usable.
func (d *RunData) Validate() error {
	if d.FrameRange.Step == 0 {
		return fmt.Errorf("run data frame range needs a non-zero step")
	}
	if d.FrameRange.Step > 0 && d.FrameRange.End < d.FrameRange.Start {
		return fmt.Errorf("run data frame range end %d precedes start %d", d.FrameRange.End, d.FrameRange.Start)
	}
	return nil
}

// RenderAction builds the start_render action for this run.
func (d *RunData) RenderAction() Action {
	args := map[string]any{
		"frame_range": map[string]any{
			"start": d.FrameRange.Start,
			"end":   d.FrameRange.End,
			"step":  d.FrameRange.Step,
		},
	}
	if d.RenderNode != "" {
		args["render_node"] = d.RenderNode
	}
	if d.IgnoreInputNodes != nil {
		args["ignore_input_nodes"] = *d.IgnoreInputNodes
	}
	return Action{Name: "start_render", Args: args}
}
