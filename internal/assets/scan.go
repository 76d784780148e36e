package assets

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"stagehand/internal/scene"
)

// ignoreRefPrefixes are reference values that never point at real files.
var ignoreRefPrefixes = []string{"opdef:", "oplib:", "temp:", "op:"}

// ignoreRefParms are parameter names whose references are render outputs or
// internal bookkeeping, not attachable inputs.
var ignoreRefParms = map[string]struct{}{
	"taskgraphfile":               {},
	"pdg_workingdir":              {},
	"soho_program":                {},
	"BakeView_img_file_path":      {},
	"OutputDeepWriter_file":       {},
	"SettingsOutput_img_file_path": {},
	"RS_outputFileNamePrefix":     {},
	"savetodirectory_directory":   {},
}

// outputDirResolver derives output directories for node types that need more
// than a single parm lookup.
type outputDirResolver func(sc *scene.Scene, node scene.Node) Set

// outputParmByType maps a node's type-with-category to the parameter holding
// its output path.
var outputParmByType = map[string]string{
	"Driver/alembic":           "filename",
	"Driver/arnold":            "ar_picture",
	"Driver/baketexture::3.0":  "vm_uvoutputpicture1",
	"Driver/channel":           "chopoutput",
	"Driver/comp":              "copoutput",
	"Driver/dop":               "dopoutput",
	"Sop/filecache":            "file",
	"Sop/filecache::2.0":       "file",
	"Driver/filmboxfbx":        "sopoutput",
	"Driver/geometry":          "sopoutput",
	"Driver/karma":             "picture",
	"Driver/ifd":               "vm_picture",
	"Driver/opengl":            "picture",
	"Driver/Redshift_ROP":      "RS_outputFileNamePrefix",
	"Sop/rop_alembic":          "filename",
	"Dop/rop_dop":              "dopoutput",
	"Driver/vray_renderer":     "SettingsOutput_img_file_path",
	"Sop/rop_vrayproxy":        "filepath",
	"Driver/rop_vrayproxy":     "filepath",
}

var outputResolverByType map[string]outputDirResolver

// Populated in init to break the initialization cycle between the map and
// the resolvers that call back into OutputDirectories.
func init() {
	outputResolverByType = map[string]outputDirResolver{
		"Driver/fetch":    fetchOutputs,
		"Driver/wedge":    wedgeOutputs,
		"Driver/ris::3.0": rendermanOutputs,
	}
}

// ScanScene walks the probed scene and returns the detected asset
// references: the hip file and every existing file or directory referenced
// by a parameter, plus the output directories of every node feeding the
// submitter.
func ScanScene(sc *scene.Scene, submitterPath string) References {
	refs := NewReferences()
	if sc == nil {
		return refs
	}
	refs.InputFilenames.Add(sc.HipFile)

	for _, ref := range sc.FileRefs {
		if ref.NodePath == submitterPath {
			continue
		}
		if hasIgnoredPrefix(ref.Raw) {
			continue
		}
		if _, ignored := ignoreRefParms[ref.ParmName]; ignored {
			continue
		}
		// Record the unexpanded value so a sequence parameterized on $F
		// stays one entry instead of one per frame. Existence was checked
		// against the evaluated path when the scene was probed.
		if ref.IsDir {
			refs.InputDirectories.Add(ref.Raw)
		}
		if ref.IsFile {
			refs.InputFilenames.Add(ref.Raw)
		}
	}

	if submitter, ok := sc.NodeAt(submitterPath); ok {
		for _, ancestorPath := range submitter.InputAncestors {
			if ancestor, ok := sc.NodeAt(ancestorPath); ok {
				refs.OutputDirectories.Update(OutputDirectories(sc, ancestor))
			}
		}
	}
	return refs
}

// OutputDirectories returns the directories a node renders into, derived
// from its type's output parameter. Unknown types contribute nothing.
func OutputDirectories(sc *scene.Scene, node scene.Node) Set {
	if resolver, ok := outputResolverByType[node.TypeWithCategory]; ok {
		return resolver(sc, node)
	}
	parmName, ok := outputParmByType[node.TypeWithCategory]
	if !ok {
		return Set{}
	}
	value, ok := node.Parm(parmName)
	if !ok || value == "" {
		return Set{}
	}
	return NewSet(dirOf(value))
}

// fetchOutputs follows a fetch node's source parm to the node it renders.
func fetchOutputs(sc *scene.Scene, node scene.Node) Set {
	return indirectOutputs(sc, node, "source")
}

// wedgeOutputs follows a wedge node's driver parm to the node it varies.
func wedgeOutputs(sc *scene.Scene, node scene.Node) Set {
	return indirectOutputs(sc, node, "driver")
}

func indirectOutputs(sc *scene.Scene, node scene.Node, parmName string) Set {
	target, ok := node.Parm(parmName)
	if !ok || target == "" {
		return Set{}
	}
	inner, ok := sc.NodeAt(resolveNodePath(node.Path, target))
	if !ok {
		return Set{}
	}
	return OutputDirectories(sc, inner)
}

// rendermanOutputs collects the file-device displays of a RenderMan node.
// Interactive display devices are skipped.
func rendermanOutputs(_ *scene.Scene, node scene.Node) Set {
	out := Set{}
	countRaw, ok := node.Parm("ri_displays")
	if !ok {
		return out
	}
	count, err := strconv.Atoi(strings.TrimSpace(countRaw))
	if err != nil {
		return out
	}
	for i := 0; i < count; i++ {
		device, _ := node.Parm("ri_device_" + strconv.Itoa(i))
		if device == "it" || device == "houdini" {
			continue
		}
		display, _ := node.Parm("ri_display_" + strconv.Itoa(i))
		if display != "" {
			out.Add(dirOf(display))
		}
	}
	return out
}

func hasIgnoredPrefix(value string) bool {
	for _, prefix := range ignoreRefPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// resolveNodePath interprets a possibly relative node reference. Relative
// references resolve against the referring node, matching how Houdini
// resolves them.
func resolveNodePath(from, target string) string {
	if strings.HasPrefix(target, "/") {
		return target
	}
	return path.Join(from, target)
}

// dirOf returns the directory portion of a path, tolerating Windows
// separators in values authored on another platform.
func dirOf(p string) string {
	return path.Dir(filepath.ToSlash(p))
}
