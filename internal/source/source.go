// Package source models a single sample program on disk and finds every
// sample in a source tree.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"polyglot/internal/container"
	"polyglot/internal/logging"
	"polyglot/internal/manifest"
)

// Executor runs commands in a per-source container. *container.Manager
// satisfies it.
type Executor interface {
	Exec(ctx context.Context, t container.Target, command string) (*container.ExecResult, error)
	Release(ctx context.Context, t container.Target) error
}

// BuildError is returned when a build command exits non-zero.
type BuildError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("unable to build using cmd %q (exit %d):\n%s", e.Command, e.ExitCode, e.Output)
}

// Source is one sample program file.
type Source struct {
	name      string
	extension string
	path      string
	language  string
	project   string

	spec manifest.ContainerSpec
}

// New creates a Source for filename in dir and resolves its container spec.
// The language is the directory's basename.
func New(filename, dir, project string, m *manifest.Manifest) (*Source, error) {
	ext := filepath.Ext(filename)
	s := &Source{
		name:      strings.TrimSuffix(filename, ext),
		extension: ext,
		path:      dir,
		language:  filepath.Base(dir),
		project:   project,
	}
	spec, err := m.Resolve(s.templateContext())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.FullPath(), err)
	}
	s.spec = spec
	return s, nil
}

func (s *Source) templateContext() manifest.SourceContext {
	return manifest.SourceContext{
		Name:      s.name,
		Extension: s.extension,
		Path:      s.path,
		FullPath:  s.FullPath(),
		Language:  s.language,
	}
}

// Name returns the filename without extension.
func (s *Source) Name() string { return s.name }

// Extension returns the extension including the leading dot.
func (s *Source) Extension() string { return s.extension }

// Filename returns name plus extension.
func (s *Source) Filename() string { return s.name + s.extension }

// Path returns the containing directory.
func (s *Source) Path() string { return s.path }

// Language returns the containing directory's basename.
func (s *Source) Language() string { return s.language }

// Project returns the catalog identifier this source implements.
func (s *Source) Project() string { return s.project }

// FullPath returns Path/Name+Extension.
func (s *Source) FullPath() string { return filepath.Join(s.path, s.Filename()) }

// ContainerSpec returns the container section resolved for this source.
func (s *Source) ContainerSpec() manifest.ContainerSpec { return s.spec }

func (s *Source) String() string {
	return fmt.Sprintf("Source(name: %s, path: %s)", s.name, s.path)
}

// Build runs the build command with params appended. Without a build command
// it does nothing.
func (s *Source) Build(ctx context.Context, x Executor, params string) error {
	if !s.spec.HasBuild() {
		return nil
	}
	command := joinCommand(s.spec.Build, params)
	logging.SourceDebug("Building %s: %s", s.Filename(), command)

	res, err := x.Exec(ctx, s, command)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &BuildError{Command: command, ExitCode: res.ExitCode, Output: res.String()}
	}
	return nil
}

// Run runs the source with params appended and returns its output whatever
// the exit code.
func (s *Source) Run(ctx context.Context, x Executor, params string) (string, error) {
	command := joinCommand(s.spec.Cmd, params)
	logging.SourceDebug("Running %s: %s", s.Filename(), command)

	res, err := x.Exec(ctx, s, command)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		logging.Source("%s exited %d", s.Filename(), res.ExitCode)
	}
	return res.String(), nil
}

// Exec runs an arbitrary command in the source's container.
func (s *Source) Exec(ctx context.Context, x Executor, command string) (string, error) {
	res, err := x.Exec(ctx, s, command)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// Cleanup releases the source's container and workspace.
func (s *Source) Cleanup(ctx context.Context, x Executor) error {
	return x.Release(ctx, s)
}

func joinCommand(cmd, params string) string {
	return strings.TrimSpace(cmd + " " + params)
}
