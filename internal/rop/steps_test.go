package rop

import (
	"strings"
	"testing"

	"stagehand/internal/scene"
)

func testScene() *scene.Scene {
	return &scene.Scene{
		RenderList: "1 [ ] /out/geo1 \t( 1 10 1 )\n" +
			"2 [ 1 ] /out/mantra1 \t( 1 240 1 )\n" +
			"3 [ 2 ] /out/cloud1 \t( 1 240 1 )\n",
		Nodes: map[string]scene.Node{
			"/out/geo1": {
				Path:             "/out/geo1",
				Type:             "geometry",
				TypeWithCategory: "Driver/geometry",
				Parms:            map[string]string{"initsim": "1"},
			},
			"/out/mantra1": {
				Path:             "/out/mantra1",
				Type:             "ifd",
				TypeWithCategory: "Driver/ifd",
			},
			"/out/cloud1": {
				Path:             "/out/cloud1",
				Type:             "deadline_cloud",
				TypeWithCategory: "Driver/deadline_cloud",
				Inputs:           []string{"/out/mantra1"},
			},
		},
	}
}

func TestParseRenderListSkipsSubmitterAndExpandsDeps(t *testing.T) {
	steps, err := ParseRenderList(testScene().RenderList, testScene())
	if err != nil {
		t.Fatalf("ParseRenderList failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2 (submitter node skipped)", len(steps))
	}
	if steps[0].Path != "/out/geo1" || steps[1].Path != "/out/mantra1" {
		t.Errorf("step order: %q, %q", steps[0].Path, steps[1].Path)
	}
	if steps[0].Name != "/out/geo1-1" {
		t.Errorf("step name = %q", steps[0].Name)
	}
	if len(steps[1].DependencyNames) != 1 || steps[1].DependencyNames[0] != "/out/geo1-1" {
		t.Errorf("dependency names = %v", steps[1].DependencyNames)
	}
}

func TestParseRenderListSingleFrame(t *testing.T) {
	listing := "1 /out/mantra1 \t( 42 )\n"
	steps, err := ParseRenderList(listing, nil)
	if err != nil {
		t.Fatalf("ParseRenderList failed: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("got %d steps", len(steps))
	}
	step := steps[0]
	if step.Start != 42 || step.End != 42 || step.Inc != 1 {
		t.Errorf("frame range = %d %d %d", step.Start, step.End, step.Inc)
	}
}

func TestParseRenderListMalformed(t *testing.T) {
	for _, listing := range []string{
		"no tabs here",
		"1 /out/a \t( x y z )",
		"1 /out/a \t( 1 2 )",
	} {
		if _, err := ParseRenderList(listing, nil); err == nil {
			t.Errorf("expected error for %q", listing)
		}
	}
}

func TestResolveStrategy(t *testing.T) {
	cases := []struct {
		name    string
		node    scene.Node
		want    Strategy
		wantErr bool
	}{
		{
			name: "default parallel",
			node: scene.Node{Path: "/out/mantra1", TypeWithCategory: "Driver/ifd"},
			want: StrategyParallel,
		},
		{
			name: "initsim geometry sequential",
			node: scene.Node{
				Path:             "/out/geo1",
				TypeWithCategory: "Driver/geometry",
				Parms:            map[string]string{"initsim": "1"},
			},
			want: StrategySequential,
		},
		{
			name: "initsim off stays parallel",
			node: scene.Node{
				Path:             "/out/geo1",
				TypeWithCategory: "Driver/geometry",
				Parms:            map[string]string{"initsim": "0"},
			},
			want: StrategyParallel,
		},
		{
			name: "explicit sequential override",
			node: scene.Node{
				Path:             "/out/mantra1",
				TypeWithCategory: "Driver/ifd",
				Parms:            map[string]string{StrategyParmName: "sequential"},
			},
			want: StrategySequential,
		},
		{
			name: "explicit parallel override beats initsim",
			node: scene.Node{
				Path:             "/out/geo1",
				TypeWithCategory: "Driver/geometry",
				Parms: map[string]string{
					"initsim":        "1",
					StrategyParmName: "PARALLEL",
				},
			},
			want: StrategyParallel,
		},
		{
			name: "default keeps computed value",
			node: scene.Node{
				Path:             "/out/geo1",
				TypeWithCategory: "Driver/geometry",
				Parms: map[string]string{
					"initsim":        "1",
					StrategyParmName: "default",
				},
			},
			want: StrategySequential,
		},
		{
			name: "unknown value is an error",
			node: scene.Node{
				Path:             "/out/mantra1",
				TypeWithCategory: "Driver/ifd",
				Parms:            map[string]string{StrategyParmName: "SOMETIMES"},
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveStrategy(tc.node)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tc.node.Path) {
					t.Errorf("error should name the node: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveStrategy failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("strategy = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBuildStepsCollapsedNetwork(t *testing.T) {
	steps, err := BuildSteps(testScene(), "/out/cloud1", false)
	if err != nil {
		t.Fatalf("BuildSteps failed: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	step := steps[0]
	if step.Name != "/out/mantra1" {
		t.Errorf("collapsed step name = %q, want bare path", step.Name)
	}
	if len(step.DependencyIDs) != 0 || len(step.DependencyNames) != 0 {
		t.Error("collapsed step should have no dependencies")
	}
}

func TestBuildStepsSeparate(t *testing.T) {
	steps, err := BuildSteps(testScene(), "/out/cloud1", true)
	if err != nil {
		t.Fatalf("BuildSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
}

func TestBuildStepsWedgeExpansion(t *testing.T) {
	sc := &scene.Scene{
		RenderList: "1 /out/mantra1 \t( 1 10 1 )\n" +
			"2 [ 1 ] /out/wedge1 \t( 1 10 1 )\n",
		Nodes: map[string]scene.Node{
			"/out/mantra1": {Path: "/out/mantra1", Type: "ifd", TypeWithCategory: "Driver/ifd"},
			"/out/wedge1": {
				Path:       "/out/wedge1",
				Type:       "wedge",
				Parms:      map[string]string{"prefix": "var", "driver": "/out/mantra1"},
				WedgeCount: 3,
			},
			"/out/cloud1": {
				Path:   "/out/cloud1",
				Type:   "deadline_cloud",
				Inputs: []string{"/out/wedge1"},
			},
		},
	}
	steps, err := BuildSteps(sc, "/out/cloud1", true)
	if err != nil {
		t.Fatalf("BuildSteps failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d wedged steps, want 3", len(steps))
	}
	if steps[0].Name != "/out/mantra1-1-var-0" {
		t.Errorf("wedged name = %q", steps[0].Name)
	}
	if steps[2].WedgeNum != "2" || steps[2].WedgeNode != "/out/wedge1" {
		t.Errorf("wedge metadata = %+v", steps[2])
	}
	for _, step := range steps {
		if step.Path == "/out/wedge1" {
			t.Fatalf("wedge node rendered as a step: %+v", step)
		}
	}
}

func TestBuildStepsWedgeExpandsOnlyDrivenNetwork(t *testing.T) {
	sc := &scene.Scene{
		RenderList: "1 /out/geo1 \t( 1 5 1 )\n" +
			"2 [ 1 ] /out/mantra1 \t( 1 5 1 )\n" +
			"3 [ 2 ] /out/wedge1 \t( 1 5 1 )\n" +
			"4 /out/karma1 \t( 1 5 1 )\n" +
			"5 [ 4 ] /out/wedge2 \t( 1 5 1 )\n",
		Nodes: map[string]scene.Node{
			"/out/geo1":    {Path: "/out/geo1", Type: "geometry", TypeWithCategory: "Driver/geometry"},
			"/out/mantra1": {Path: "/out/mantra1", Type: "ifd", TypeWithCategory: "Driver/ifd"},
			"/out/karma1":  {Path: "/out/karma1", Type: "karma", TypeWithCategory: "Driver/karma"},
			"/out/wedge1": {
				Path:       "/out/wedge1",
				Type:       "wedge",
				Inputs:     []string{"/out/mantra1"},
				Parms:      map[string]string{"prefix": "sim"},
				WedgeCount: 2,
			},
			"/out/wedge2": {
				Path:       "/out/wedge2",
				Type:       "wedge",
				Parms:      map[string]string{"prefix": "look", "driver": "../karma1"},
				WedgeCount: 2,
			},
			"/out/cloud1": {
				Path:   "/out/cloud1",
				Type:   "deadline_cloud",
				Inputs: []string{"/out/wedge1", "/out/wedge2"},
			},
		},
	}
	steps, err := BuildSteps(sc, "/out/cloud1", true)
	if err != nil {
		t.Fatalf("BuildSteps failed: %v", err)
	}
	// wedge1 drives geo1+mantra1 (2 steps x 2 variations), wedge2 drives
	// karma1 (1 step x 2 variations).
	if len(steps) != 6 {
		t.Fatalf("got %d wedged steps, want 6", len(steps))
	}
	for _, step := range steps {
		switch step.WedgeNode {
		case "/out/wedge1":
			if step.Path != "/out/geo1" && step.Path != "/out/mantra1" {
				t.Errorf("wedge1 expanded foreign step %q", step.Path)
			}
		case "/out/wedge2":
			if step.Path != "/out/karma1" {
				t.Errorf("wedge2 expanded foreign step %q", step.Path)
			}
		default:
			t.Errorf("step without wedge metadata: %+v", step)
		}
	}
	if steps[0].Name != "/out/geo1-1-sim-0" || steps[1].Name != "/out/mantra1-2-sim-0" {
		t.Errorf("wedge1 variation 0 names = %q, %q", steps[0].Name, steps[1].Name)
	}
	if steps[1].DependencyNames[0] != "/out/geo1-1-sim-0" {
		t.Errorf("wedged dependency name = %q", steps[1].DependencyNames[0])
	}
	if steps[4].Name != "/out/karma1-4-look-0" {
		t.Errorf("wedge2 variation 0 name = %q", steps[4].Name)
	}
}

func TestBuildStepsNestedWedgeFallsBack(t *testing.T) {
	sc := &scene.Scene{
		RenderList: "1 /out/mantra1 \t( 1 10 1 )\n",
		Nodes: map[string]scene.Node{
			"/out/mantra1": {Path: "/out/mantra1", Type: "ifd", TypeWithCategory: "Driver/ifd"},
			"/out/wedge2":  {Path: "/out/wedge2", Type: "wedge", WedgeCount: 2},
			"/out/wedge1": {
				Path:           "/out/wedge1",
				Type:           "wedge",
				WedgeCount:     2,
				InputAncestors: []string{"/out/wedge2", "/out/mantra1"},
			},
			"/out/cloud1": {
				Path:   "/out/cloud1",
				Type:   "deadline_cloud",
				Inputs: []string{"/out/wedge1"},
			},
		},
	}
	steps, err := BuildSteps(sc, "/out/cloud1", true)
	if err != nil {
		t.Fatalf("BuildSteps failed: %v", err)
	}
	if len(steps) != 1 || steps[0].WedgeNode != "" {
		t.Errorf("nested wedge should fall back to plain steps: %+v", steps)
	}
}
