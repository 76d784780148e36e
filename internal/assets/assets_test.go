package assets

import (
	"reflect"
	"testing"

	"stagehand/internal/scene"
)

func TestTimeVarsToGlob(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/shots/beauty.$F4.exr", "/shots/beauty.*.exr"},
		{"/shots/beauty.${F4}.exr", "/shots/beauty.*.exr"},
		{"/shots/beauty.$FF.exr", "/shots/beauty.*.exr"},
		{"/sim/cache.$SF.bgeo", "/sim/cache.*.bgeo"},
		{"/sim/cache.$ST.bgeo", "/sim/cache.*.bgeo"},
		{"/tex/map.$T.rat", "/tex/map.*.rat"},
		{"/shots/`chs('take')`.exr", "/shots/*.exr"},
		{"/static/plate.exr", "/static/plate.exr"},
		{"$HIP/geo/model.bgeo", "$HIP/geo/model.bgeo"},
	}
	for _, tc := range cases {
		if got := TimeVarsToGlob(tc.in); got != tc.want {
			t.Errorf("TimeVarsToGlob(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSortPathsFrameSequences(t *testing.T) {
	paths := []string{
		"/shots/beauty.10.exr",
		"/shots/beauty.2.exr",
		"/shots/beauty.1.exr",
	}
	SortPaths(paths)
	want := []string{
		"/shots/beauty.1.exr",
		"/shots/beauty.2.exr",
		"/shots/beauty.10.exr",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("sorted = %v", paths)
	}
}

func TestMergeScanKeepsManualEntries(t *testing.T) {
	display := NewReferences()
	display.InputFilenames.Add("/manual/extra.abc")
	display.InputFilenames.Add("/scene/old_texture.rat")
	display.OutputDirectories.Add("/render/old")

	detected := NewReferences()
	detected.InputFilenames.Add("/scene/new_texture.rat")
	detected.OutputDirectories.Add("/render/new")

	previous := NewReferences()
	previous.InputFilenames.Add("/scene/old_texture.rat")
	previous.OutputDirectories.Add("/render/old")

	lists, auto := MergeScan(display, detected, previous)

	wantInputs := []string{"/manual/extra.abc", "/scene/new_texture.rat"}
	if !reflect.DeepEqual(lists.InputFilenames, wantInputs) {
		t.Errorf("input filenames = %v, want %v", lists.InputFilenames, wantInputs)
	}
	if !reflect.DeepEqual(lists.OutputDirectories, []string{"/render/new"}) {
		t.Errorf("output directories = %v", lists.OutputDirectories)
	}
	if !reflect.DeepEqual(auto.InputFilenames, []string{"/scene/new_texture.rat"}) {
		t.Errorf("auto inputs = %v", auto.InputFilenames)
	}
}

func scanTestScene() *scene.Scene {
	return &scene.Scene{
		HipFile: "/projects/shot010.hip",
		Nodes: map[string]scene.Node{
			"/out/mantra1": {
				Path:             "/out/mantra1",
				TypeWithCategory: "Driver/ifd",
				Parms:            map[string]string{"vm_picture": "/render/beauty/frame.$F4.exr"},
			},
			"/out/fetch1": {
				Path:             "/out/fetch1",
				TypeWithCategory: "Driver/fetch",
				Parms:            map[string]string{"source": "../mantra1"},
			},
			"/out/cloud1": {
				Path:             "/out/cloud1",
				TypeWithCategory: "Driver/deadline_cloud",
				InputAncestors:   []string{"/out/mantra1", "/out/fetch1"},
				Parms:            map[string]string{"some_file": "/ignored/by/node.txt"},
			},
		},
		FileRefs: []scene.FileRef{
			{NodePath: "/geo/model", ParmName: "file", Raw: "$HIP/geo/model.bgeo", Evaluated: "/projects/geo/model.bgeo", IsFile: true},
			{NodePath: "/geo/cache", ParmName: "file", Raw: "$HIP/cache", Evaluated: "/projects/cache", IsDir: true},
			{NodePath: "/mat/tex", ParmName: "map", Raw: "opdef:/Shop/principled::2.0", Evaluated: "opdef:/Shop/principled::2.0"},
			{NodePath: "/tasks/top", ParmName: "taskgraphfile", Raw: "/tmp/taskgraph.json", Evaluated: "/tmp/taskgraph.json", IsFile: true},
			{NodePath: "/out/cloud1", ParmName: "some_file", Raw: "/ignored/by/node.txt", Evaluated: "/ignored/by/node.txt", IsFile: true},
			{NodePath: "/geo/missing", ParmName: "file", Raw: "/gone/away.bgeo", Evaluated: "/gone/away.bgeo"},
		},
	}
}

func TestScanScene(t *testing.T) {
	refs := ScanScene(scanTestScene(), "/out/cloud1")

	for _, want := range []string{"/projects/shot010.hip", "$HIP/geo/model.bgeo"} {
		if !refs.InputFilenames.Contains(want) {
			t.Errorf("input filenames missing %q: %v", want, refs.InputFilenames.Sorted())
		}
	}
	for _, unwanted := range []string{
		"opdef:/Shop/principled::2.0",
		"/tmp/taskgraph.json",
		"/ignored/by/node.txt",
		"/gone/away.bgeo",
	} {
		if refs.InputFilenames.Contains(unwanted) || refs.InputDirectories.Contains(unwanted) {
			t.Errorf("reference %q should have been filtered", unwanted)
		}
	}
	if !refs.InputDirectories.Contains("$HIP/cache") {
		t.Errorf("input directories = %v", refs.InputDirectories.Sorted())
	}
	// Both the mantra driver and the fetch pointing at it resolve to the
	// same render directory.
	if !reflect.DeepEqual(refs.OutputDirectories.Sorted(), []string{"/render/beauty"}) {
		t.Errorf("output directories = %v", refs.OutputDirectories.Sorted())
	}
}

func TestOutputDirectoriesUnknownType(t *testing.T) {
	sc := scanTestScene()
	node := scene.Node{Path: "/out/custom", TypeWithCategory: "Driver/custom_rop"}
	if got := OutputDirectories(sc, node); len(got) != 0 {
		t.Errorf("unknown type should derive nothing, got %v", got.Sorted())
	}
}

func TestScanSceneRedshiftAndVRayOutputs(t *testing.T) {
	sc := &scene.Scene{
		HipFile: "/projects/shot020.hip",
		Nodes: map[string]scene.Node{
			"/out/rs1": {
				Path:             "/out/rs1",
				TypeWithCategory: "Driver/Redshift_ROP",
				Parms:            map[string]string{"RS_outputFileNamePrefix": "/render/rs/beauty.$F4.exr"},
			},
			"/out/vray1": {
				Path:             "/out/vray1",
				TypeWithCategory: "Driver/vray_renderer",
				Parms:            map[string]string{"SettingsOutput_img_file_path": "/render/vray/beauty.exr"},
			},
			"/out/cloud1": {
				Path:           "/out/cloud1",
				Type:           "deadline_cloud",
				InputAncestors: []string{"/out/rs1", "/out/vray1"},
			},
		},
	}
	refs := ScanScene(sc, "/out/cloud1")
	want := []string{"/render/rs", "/render/vray"}
	if !reflect.DeepEqual(refs.OutputDirectories.Sorted(), want) {
		t.Errorf("output directories = %v, want %v", refs.OutputDirectories.Sorted(), want)
	}
}

func TestRendermanOutputsSkipsDisplayDevices(t *testing.T) {
	node := scene.Node{
		Path:             "/out/ris1",
		TypeWithCategory: "Driver/ris::3.0",
		Parms: map[string]string{
			"ri_displays":  "3",
			"ri_device_0":  "it",
			"ri_display_0": "/render/preview.exr",
			"ri_device_1":  "openexr",
			"ri_display_1": "/render/ris/beauty.exr",
			"ri_device_2":  "houdini",
			"ri_display_2": "/render/mplay.exr",
		},
	}
	got := OutputDirectories(&scene.Scene{}, node)
	if !reflect.DeepEqual(got.Sorted(), []string{"/render/ris"}) {
		t.Errorf("renderman outputs = %v", got.Sorted())
	}
}
