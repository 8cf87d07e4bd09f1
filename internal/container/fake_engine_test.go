package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"polyglot/internal/manifest"
)

// fakeEngine records every call and serves images from an in-memory set.
type fakeEngine struct {
	images  map[string]bool
	pullErr error
	runErr  error
	rmErr   error
	ticks   int

	lists   int
	pulls   []string
	runs    []RunOptions
	execs   [][]string
	removed []string
	seq     int
	exit    int
	output  string

	// mountedFiles captures the workspace contents seen at run time.
	mountedFiles []string
}

func newFakeEngine(images ...string) *fakeEngine {
	f := &fakeEngine{images: make(map[string]bool)}
	for _, i := range images {
		f.images[i] = true
	}
	return f
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) ListImages(_ context.Context, ref string) ([]Image, error) {
	f.lists++
	if f.images[ref] {
		return []Image{{ID: "sha256:" + ref, Tags: []string{ref}}}, nil
	}
	return nil, nil
}

func (f *fakeEngine) PullImage(_ context.Context, ref string, progress func()) error {
	f.pulls = append(f.pulls, ref)
	for i := 0; i < f.ticks; i++ {
		progress()
	}
	if f.pullErr != nil {
		return f.pullErr
	}
	f.images[ref] = true
	return nil
}

func (f *fakeEngine) RunContainer(_ context.Context, opts RunOptions) (string, error) {
	f.runs = append(f.runs, opts)
	if f.runErr != nil {
		return "", f.runErr
	}
	for _, m := range opts.Mounts {
		entries, _ := os.ReadDir(m.Source)
		for _, e := range entries {
			f.mountedFiles = append(f.mountedFiles, e.Name())
		}
	}
	f.seq++
	return fmt.Sprintf("c%d", f.seq), nil
}

func (f *fakeEngine) Exec(_ context.Context, id string, argv []string, workdir string) (*ExecResult, error) {
	f.execs = append(f.execs, append([]string{id, workdir}, argv...))
	return &ExecResult{ExitCode: f.exit, Output: []byte(f.output)}, nil
}

func (f *fakeEngine) RemoveContainer(_ context.Context, id string, opts RemoveOptions) error {
	if f.rmErr != nil {
		return f.rmErr
	}
	if !opts.Force || !opts.RemoveVolumes {
		return fmt.Errorf("expected forced removal with volumes")
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeEngine) Close() error { return nil }

type fakeTarget struct {
	path string
	spec manifest.ContainerSpec
}

func (t fakeTarget) FullPath() string { return t.path }

func (t fakeTarget) Name() string {
	base := filepath.Base(t.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (t fakeTarget) ContainerSpec() manifest.ContainerSpec { return t.spec }

func newTarget(t *testing.T, dir, file string) fakeTarget {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte("print('Hello, World!')\n"), 0644))
	return fakeTarget{
		path: path,
		spec: manifest.ContainerSpec{Image: "python", Tag: "3.7-alpine", Cmd: "python " + file},
	}
}
