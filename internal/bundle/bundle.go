// Package bundle writes job bundles: self-contained directories holding the
// job template, parameter values, and asset references of one submission.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"stagehand/internal/assets"
	"stagehand/internal/job"
)

// File names inside a bundle directory.
const (
	TemplateFile        = "template.yaml"
	ParameterValuesFile = "parameter_values.yaml"
	AssetReferencesFile = "asset_references.yaml"
)

// assetReferencesDoc mirrors the asset_references.yaml layout.
type assetReferencesDoc struct {
	AssetReferences assetReferencesBody `yaml:"assetReferences"`
}

type assetReferencesBody struct {
	Inputs          assetInputs  `yaml:"inputs"`
	Outputs         assetOutputs `yaml:"outputs"`
	ReferencedPaths []string     `yaml:"referencedPaths"`
}

type assetInputs struct {
	Filenames   []string `yaml:"filenames"`
	Directories []string `yaml:"directories"`
}

type assetOutputs struct {
	Directories []string `yaml:"directories"`
}

// Dir creates a fresh bundle directory under root, named by submission date
// and job name so bundles stay browsable.
func Dir(root, jobName string, now time.Time) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("bundle root required")
	}
	name := sanitizeName(jobName)
	dir := filepath.Join(root, now.Format("2006-01-02"), fmt.Sprintf("%s-%s", name, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create bundle dir: %w", err)
	}
	return dir, nil
}

// Write serializes the three bundle documents into dir.
func Write(dir string, tmpl *job.Template, values job.ParameterValues, refs assets.Lists) error {
	if err := writeYAML(filepath.Join(dir, TemplateFile), tmpl); err != nil {
		return err
	}
	if err := writeYAML(filepath.Join(dir, ParameterValuesFile), values); err != nil {
		return err
	}
	doc := assetReferencesDoc{
		AssetReferences: assetReferencesBody{
			Inputs: assetInputs{
				Filenames:   emptyNotNil(refs.InputFilenames),
				Directories: emptyNotNil(refs.InputDirectories),
			},
			Outputs:         assetOutputs{Directories: emptyNotNil(refs.OutputDirectories)},
			ReferencedPaths: []string{},
		},
	}
	return writeYAML(filepath.Join(dir, AssetReferencesFile), doc)
}

func writeYAML(path string, doc any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// emptyNotNil keeps empty lists rendering as [] instead of null.
func emptyNotNil(paths []string) []string {
	if paths == nil {
		return []string{}
	}
	return paths
}

// sanitizeName makes a job name safe to use as a directory component.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, name)
}
