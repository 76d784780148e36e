package rop

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"stagehand/internal/scene"
)

// Strategy selects how a step's frame range is split into farm tasks.
type Strategy string

const (
	// StrategyParallel renders one task per frame.
	StrategyParallel Strategy = "PARALLEL"
	// StrategySequential renders the whole range, in order, in one task.
	StrategySequential Strategy = "SEQUENTIAL"
)

// StrategyParmName is the per-node override parameter users set on a driver.
const StrategyParmName = "deadline_cloud_render_strategy"

// submitterNodeTypes are excluded from the step list: they describe the
// submission, not a render.
var submitterNodeTypes = map[string]struct{}{
	"deadline":       {},
	"deadline_cloud": {},
}

// Step is one renderable unit of the job.
type Step struct {
	ID              string
	Name            string
	Path            string
	DependencyIDs   []string
	DependencyNames []string
	WedgeNode       string
	WedgeNum        string
	Start           int
	End             int
	Inc             int
	Strategy        Strategy
}

// FrameRangeExpression renders the task parameter range ("start-end:inc").
func (s Step) FrameRangeExpression() string {
	return fmt.Sprintf("%d-%d:%d", s.Start, s.End, s.Inc)
}

// ParseRenderList parses hscript "render -p -c -F" output into steps. Node
// metadata (strategy, submitter filtering) is resolved against the scene.
func ParseRenderList(listing string, sc *scene.Scene) ([]Step, error) {
	var steps []Step
	for _, line := range strings.Split(listing, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		step, skip, err := parseRenderLine(line, sc)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		steps = append(steps, step)
	}
	expandDependencyNames(steps)
	return steps, nil
}

func parseRenderLine(line string, sc *scene.Scene) (Step, bool, error) {
	// Two tab-separated sections: the rop listing and the frame range.
	parts := strings.SplitN(line, "\t", 2)
	if len(parts) != 2 {
		return Step{}, false, fmt.Errorf("render listing: malformed line %q", line)
	}

	tokens := strings.Fields(parts[0])
	if len(tokens) < 2 {
		return Step{}, false, fmt.Errorf("render listing: malformed rop section %q", parts[0])
	}
	id := tokens[0]
	path := tokens[len(tokens)-1]
	var deps []string
	for _, token := range tokens[1 : len(tokens)-1] {
		if token == "[" || token == "]" {
			continue
		}
		deps = append(deps, token)
	}

	frange := strings.TrimSpace(parts[1])
	frange = strings.TrimPrefix(frange, "(")
	frange = strings.TrimSuffix(frange, ")")
	rangeTokens := strings.Fields(frange)
	rangeInts := make([]int, 0, len(rangeTokens))
	for _, token := range rangeTokens {
		value, err := strconv.Atoi(token)
		if err != nil {
			return Step{}, false, fmt.Errorf("render listing: bad frame value %q in %q", token, line)
		}
		rangeInts = append(rangeInts, value)
	}
	switch len(rangeInts) {
	case 1:
		rangeInts = []int{rangeInts[0], rangeInts[0], 1}
	case 3:
	default:
		return Step{}, false, fmt.Errorf("render listing: bad frame range in %q", line)
	}

	strategy := StrategyParallel
	if sc != nil {
		if node, ok := sc.NodeAt(path); ok {
			if _, isSubmitter := submitterNodeTypes[node.Type]; isSubmitter {
				return Step{}, true, nil
			}
			resolved, err := ResolveStrategy(node)
			if err != nil {
				return Step{}, false, err
			}
			strategy = resolved
		}
	}

	return Step{
		ID:            id,
		Name:          fmt.Sprintf("%s-%s", path, id),
		Path:          path,
		DependencyIDs: deps,
		Start:         rangeInts[0],
		End:           rangeInts[1],
		Inc:           rangeInts[2],
		Strategy:      strategy,
	}, false, nil
}

func expandDependencyNames(steps []Step) {
	byID := make(map[string]string, len(steps))
	for _, step := range steps {
		byID[step.ID] = step.Name
	}
	for i := range steps {
		if len(steps[i].DependencyIDs) == 0 {
			continue
		}
		names := make([]string, 0, len(steps[i].DependencyIDs))
		for _, id := range steps[i].DependencyIDs {
			if name, ok := byID[id]; ok {
				names = append(names, name)
			}
		}
		steps[i].DependencyNames = names
	}
}

// ResolveStrategy decides a node's render strategy. PARALLEL is the default;
// geometry drivers with simulation reset enabled are SEQUENTIAL. The explicit
// strategy parameter overrides either way, and "default" keeps the computed
// value.
func ResolveStrategy(node scene.Node) (Strategy, error) {
	strategy := StrategyParallel
	if node.TypeWithCategory == "Driver/geometry" && node.ParmIsTruthy("initsim") {
		strategy = StrategySequential
	}

	raw, ok := node.Parm(StrategyParmName)
	if !ok || strings.TrimSpace(raw) == "" {
		return strategy, nil
	}
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(StrategySequential):
		return StrategySequential, nil
	case string(StrategyParallel):
		return StrategyParallel, nil
	case "DEFAULT":
		return strategy, nil
	default:
		return "", fmt.Errorf("node %q has unexpected value %q for its %q parameter; use %s, %s, or DEFAULT",
			node.Path, raw, StrategyParmName, StrategyParallel, StrategySequential)
	}
}

// BuildSteps converts the probed scene into the final step list for a
// submitter node. When the submitter's inputs all terminate in wedge nodes the
// steps are expanded per wedge variation. When separateSteps is false the
// whole network collapses into the single step of the directly connected
// driver, which then renders its input network itself.
func BuildSteps(sc *scene.Scene, submitterPath string, separateSteps bool) ([]Step, error) {
	if sc == nil {
		return nil, errors.New("scene required")
	}
	base, err := ParseRenderList(sc.RenderList, sc)
	if err != nil {
		return nil, err
	}

	steps := base
	if wedged, ok, err := wedgeSteps(sc, submitterPath, base); err != nil {
		return nil, err
	} else if ok {
		steps = wedged
	}

	if !separateSteps {
		if len(steps) == 0 {
			return nil, nil
		}
		connected := steps[len(steps)-1]
		connected.DependencyIDs = nil
		connected.DependencyNames = nil
		connected.Name = connected.Path
		return []Step{connected}, nil
	}
	return steps, nil
}

// wedgeSteps expands the step list per wedge variation when every input of
// the submitter node is a wedge node. Nested wedge networks are not
// supported and fall back to the plain step list.
func wedgeSteps(sc *scene.Scene, submitterPath string, base []Step) ([]Step, bool, error) {
	submitter, ok := sc.NodeAt(submitterPath)
	if !ok || len(submitter.Inputs) == 0 {
		return nil, false, nil
	}

	var wedgeNodes []scene.Node
	for _, inputPath := range submitter.Inputs {
		input, ok := sc.NodeAt(inputPath)
		if !ok || input.Type != "wedge" {
			return nil, false, nil
		}
		wedgeNodes = append(wedgeNodes, input)
	}
	for _, wedge := range wedgeNodes {
		for _, ancestorPath := range wedge.InputAncestors {
			if ancestor, ok := sc.NodeAt(ancestorPath); ok && ancestor.Type == "wedge" {
				return nil, false, nil
			}
		}
	}

	var result []Step
	for _, wedge := range wedgeNodes {
		prefix, _ := wedge.Parm("prefix")
		if prefix == "" {
			prefix = "wedge"
		}
		driven, err := wedgeRenderSteps(sc, wedge, base)
		if err != nil {
			return nil, false, err
		}
		for num := 0; num < wedge.WedgeCount; num++ {
			suffix := fmt.Sprintf("%s-%d", prefix, num)
			for _, step := range driven {
				copied := step
				copied.WedgeNode = wedge.Path
				copied.WedgeNum = strconv.Itoa(num)
				copied.Name = fmt.Sprintf("%s-%s", step.Name, suffix)
				if len(step.DependencyNames) > 0 {
					names := make([]string, 0, len(step.DependencyNames))
					for _, name := range step.DependencyNames {
						names = append(names, fmt.Sprintf("%s-%s", name, suffix))
					}
					copied.DependencyNames = names
				}
				result = append(result, copied)
			}
		}
	}
	if len(result) == 0 {
		return nil, false, nil
	}
	return result, true, nil
}

// wedgeRenderSteps returns the steps of the network a wedge node drives: the
// node connected as its first input, or the node named by its driver
// parameter, plus that node's transitive dependencies. Only these steps are
// duplicated per variation; the wedge node itself never renders as a step.
// Order follows the render listing, dependencies first.
func wedgeRenderSteps(sc *scene.Scene, wedge scene.Node, base []Step) ([]Step, error) {
	target := ""
	if len(wedge.Inputs) > 0 {
		target = wedge.Inputs[0]
	} else if driver, ok := wedge.Parm("driver"); ok && strings.TrimSpace(driver) != "" {
		target = resolveNodePath(wedge.Path, strings.TrimSpace(driver))
	}
	if target == "" {
		return nil, fmt.Errorf("wedge node %q has no input and no driver parameter", wedge.Path)
	}

	indexByID := make(map[string]int, len(base))
	rootID := ""
	for i, step := range base {
		indexByID[step.ID] = i
		if step.Path == target {
			rootID = step.ID
		}
	}
	if rootID == "" {
		return nil, fmt.Errorf("wedge node %q drives %q, which is not in the render listing", wedge.Path, target)
	}

	wanted := map[string]struct{}{rootID: {}}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range base[indexByID[id]].DependencyIDs {
			if _, seen := wanted[dep]; seen {
				continue
			}
			if _, ok := indexByID[dep]; !ok {
				continue
			}
			wanted[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}

	driven := make([]Step, 0, len(wanted))
	for _, step := range base {
		if _, ok := wanted[step.ID]; ok {
			driven = append(driven, step)
		}
	}
	return driven, nil
}

// resolveNodePath interprets a possibly relative node reference against the
// referring node, matching how Houdini resolves them.
func resolveNodePath(from, target string) string {
	if strings.HasPrefix(target, "/") {
		return target
	}
	return path.Join(from, target)
}
