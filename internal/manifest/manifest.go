// Package manifest parses the per-directory testinfo.yml file that tells the
// locator how sources in a directory are named and how to run them.
//
// Container fields may contain {{ source.<field> }} placeholders. Loading is
// two-phase: the YAML is decoded once per directory and each container field
// is compiled as its own template, then Resolve executes those templates for
// each Source with that Source as the only context. A value that starts with
// a placeholder must be quoted so YAML reads it as a string.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"text/template"

	"polyglot/internal/naming"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest file looked for in every directory.
const FileName = "testinfo.yml"

// ErrInvalidManifest wraps malformed or incomplete manifests.
var ErrInvalidManifest = errors.New("invalid manifest")

// Folder is the folder section of a manifest.
type Folder struct {
	Extension string        `yaml:"extension"`
	Naming    naming.Scheme `yaml:"naming"`
}

// ContainerSpec is the resolved container section for one Source.
type ContainerSpec struct {
	Image string `yaml:"image"`
	Tag   string `yaml:"tag"`
	Cmd   string `yaml:"cmd"`
	Build string `yaml:"build,omitempty"`
}

// Reference returns "image:tag".
func (c ContainerSpec) Reference() string {
	return c.Image + ":" + c.Tag
}

// HasBuild reports whether a build step is configured.
func (c ContainerSpec) HasBuild() bool {
	return c.Build != ""
}

// SourceContext is the data exposed to templates as "source".
type SourceContext struct {
	Name      string // stem, e.g. hello-world
	Extension string // with leading dot, e.g. .py
	Path      string // directory
	FullPath  string
	Language  string // directory basename
}

func (s SourceContext) data() map[string]interface{} {
	return map[string]interface{}{
		"source": map[string]string{
			"name":      s.Name,
			"extension": s.Extension,
			"path":      s.Path,
			"full_path": s.FullPath,
			"language":  s.Language,
		},
	}
}

// Manifest is a parsed testinfo.yml. The container fields stay compiled
// templates until Resolve is called for a specific Source.
type Manifest struct {
	Folder Folder

	// Path is the manifest file, when loaded from disk.
	Path string

	container *containerTemplates
}

type rawContainer struct {
	Image string `yaml:"image"`
	Tag   string `yaml:"tag"`
	Cmd   string `yaml:"cmd"`
	Build string `yaml:"build"`
}

type document struct {
	Folder    *Folder       `yaml:"folder"`
	Container *rawContainer `yaml:"container"`
}

// containerTemplates holds one template per container field; nil means the
// field was absent or empty.
type containerTemplates struct {
	image, tag, cmd, build *template.Template
}

// placeholderRe matches the start of a "{{ source.x }}" action so it can be
// rewritten to the dotted form text/template expects.
var placeholderRe = regexp.MustCompile(`\{\{(-?)\s*source\.`)

// Parse parses manifest bytes, validates the folder section and compiles the
// container fields. Placeholders are checked against an empty Source so an
// unknown source field fails here rather than per Source.
func Parse(data []byte) (*Manifest, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if doc.Folder == nil {
		return nil, fmt.Errorf("%w: missing folder section", ErrInvalidManifest)
	}
	if doc.Folder.Extension == "" {
		return nil, fmt.Errorf("%w: folder.extension is required", ErrInvalidManifest)
	}
	if doc.Folder.Naming == "" {
		return nil, fmt.Errorf("%w: folder.naming is required", ErrInvalidManifest)
	}

	m := &Manifest{Folder: *doc.Folder}
	if doc.Container != nil {
		ct, err := compileContainer(doc.Container)
		if err != nil {
			return nil, err
		}
		if _, err := ct.execute(SourceContext{}); err != nil {
			return nil, err
		}
		m.container = ct
	}
	return m, nil
}

func compileContainer(raw *rawContainer) (*containerTemplates, error) {
	var ct containerTemplates
	fields := []struct {
		name string
		text string
		dst  **template.Template
	}{
		{"image", raw.Image, &ct.image},
		{"tag", raw.Tag, &ct.tag},
		{"cmd", raw.Cmd, &ct.cmd},
		{"build", raw.Build, &ct.build},
	}
	for _, f := range fields {
		if f.text == "" {
			continue
		}
		text := placeholderRe.ReplaceAllString(f.text, "{{$1 .source.")
		tmpl, err := template.New(f.name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: container.%s: %v", ErrInvalidManifest, f.name, err)
		}
		*f.dst = tmpl
	}
	return &ct, nil
}

func (ct *containerTemplates) execute(src SourceContext) (ContainerSpec, error) {
	data := src.data()
	render := func(t *template.Template) (string, error) {
		if t == nil {
			return "", nil
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("%w: container.%s: %v", ErrInvalidManifest, t.Name(), err)
		}
		return buf.String(), nil
	}

	var spec ContainerSpec
	var err error
	if spec.Image, err = render(ct.image); err != nil {
		return ContainerSpec{}, err
	}
	if spec.Tag, err = render(ct.tag); err != nil {
		return ContainerSpec{}, err
	}
	if spec.Cmd, err = render(ct.cmd); err != nil {
		return ContainerSpec{}, err
	}
	if spec.Build, err = render(ct.build); err != nil {
		return ContainerSpec{}, err
	}
	return spec, nil
}

// Load reads FileName from dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Resolve executes the container templates with src as the only context.
// Substituted values are never re-read as YAML.
func (m *Manifest) Resolve(src SourceContext) (ContainerSpec, error) {
	if m.container == nil {
		return ContainerSpec{}, fmt.Errorf("%w: missing container section", ErrInvalidManifest)
	}
	spec, err := m.container.execute(src)
	if err != nil {
		return ContainerSpec{}, err
	}
	switch {
	case spec.Image == "":
		return ContainerSpec{}, fmt.Errorf("%w: container.image is required", ErrInvalidManifest)
	case spec.Tag == "":
		return ContainerSpec{}, fmt.Errorf("%w: container.tag is required", ErrInvalidManifest)
	case spec.Cmd == "":
		return ContainerSpec{}, fmt.Errorf("%w: container.cmd is required", ErrInvalidManifest)
	}
	return spec, nil
}
