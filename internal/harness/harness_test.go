package harness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyglot/internal/config"
	"polyglot/internal/container"
	"polyglot/internal/manifest"
	"polyglot/internal/project"
	"polyglot/internal/source"
	"polyglot/internal/testrun"
)

type fakeContainers struct {
	mu       sync.Mutex
	execs    []string
	released []string
	pulled   []string
	exit     map[string]int
	pullErr  error
	execErr  error
}

func (f *fakeContainers) Exec(_ context.Context, t container.Target, command string) (*container.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, command)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &container.ExecResult{ExitCode: f.exit[command], Output: []byte("out: " + command)}, nil
}

func (f *fakeContainers) Release(_ context.Context, t container.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, filepath.Base(t.FullPath()))
	return nil
}

func (f *fakeContainers) ResolveImage(_ context.Context, spec manifest.ContainerSpec) (*container.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, spec.Reference())
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return &container.Image{ID: spec.Reference()}, nil
}

type fakeRunner struct {
	ids  []string
	ran  [][]string
	code int
}

func (r *fakeRunner) Collect(context.Context) ([]string, error) { return r.ids, nil }

func (r *fakeRunner) Exec(_ context.Context, ids []string) (int, error) {
	r.ran = append(r.ran, ids)
	return r.code, nil
}

const catalogYAML = `projects:
  helloworld:
    words: [hello, world]
  fileio:
    words: [file, io]
    acronyms: [io]
    requires_parameters: true
    tests: [test_file_io, test_file_io_missing]
`

func newHarness(t *testing.T, input string) (*Harness, *fakeContainers, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"p/python/testinfo.yml":   "folder: {extension: .py, naming: hyphen}\ncontainer: {image: python, tag: '3.7', cmd: 'python {{ source.name }}.py'}\n",
		"p/python/hello-world.py": "",
		"p/python/file-IO.py":     "",
		"c/c/testinfo.yml":        "folder: {extension: .c, naming: hyphen}\ncontainer: {image: gcc, tag: '8.3', build: 'gcc -o {{ source.name }} {{ source.name }}.c', cmd: './{{ source.name }}'}\n",
		"c/c/hello-world.c":       "",
		"go/testinfo.yml":         "folder: {extension: .go, naming: hyphen}\ncontainer: {image: golang, tag: '1.22', cmd: 'go run {{ source.name }}.go'}\n",
		"go/hello-world.go":       "",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	cfg, err := config.Parse([]byte(catalogYAML))
	require.NoError(t, err)
	catalog, err := project.New(cfg)
	require.NoError(t, err)
	locator, err := source.NewLocator(catalog, nil)
	require.NoError(t, err)

	fc := &fakeContainers{exit: map[string]int{}}
	var out bytes.Buffer
	return &Harness{
		Catalog:    catalog,
		Locator:    locator,
		Containers: fc,
		Root:       root,
		Out:        &out,
		Prompter:   NewLinePrompter(strings.NewReader(input), &out),
		Parallel:   2,
	}, fc, &out
}

func filenames(srcs []*source.Source) []string {
	var out []string
	for _, s := range srcs {
		out = append(out, s.Filename())
	}
	return out
}

func TestSelect(t *testing.T) {
	h, _, _ := newHarness(t, "")

	all, err := h.Select(Selection{})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-IO.py", "hello-world.c", "hello-world.go", "hello-world.py"}, filenames(all))

	byLang, err := h.Select(Selection{Language: "python"})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-IO.py", "hello-world.py"}, filenames(byLang))

	flat, err := h.Select(Selection{Language: "go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello-world.go"}, filenames(flat), "falls back to <root>/<language>")

	byProject, err := h.Select(Selection{Project: "HelloWorld"})
	require.NoError(t, err)
	assert.Len(t, byProject, 3)

	bySource, err := h.Select(Selection{Source: "FILE-io.PY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-IO.py"}, filenames(bySource))
}

func TestSelect_Errors(t *testing.T) {
	h, _, _ := newHarness(t, "")

	_, err := h.Select(Selection{Language: "cobol"})
	assert.ErrorIs(t, err, ErrNoSources)
	assert.EqualError(t, err, `No valid sources found for language: "cobol"`)

	_, err = h.Select(Selection{Project: "quine"})
	assert.EqualError(t, err, `No valid sources found for project: "quine"`)

	_, err = h.Select(Selection{Source: "quine.py"})
	assert.EqualError(t, err, `Source "quine.py" could not be found`)
}

func TestRun(t *testing.T) {
	h, fc, out := newHarness(t, "input.txt\n")

	require.NoError(t, h.Run(context.Background(), Selection{Language: "python"}))

	assert.Equal(t, []string{"python file-IO.py input.txt", "python hello-world.py"}, fc.execs)
	assert.Equal(t, []string{"file-IO.py", "hello-world.py"}, fc.released)
	assert.Contains(t, out.String(), `input parameters for "fileio": `)
	assert.Contains(t, out.String(), "Running \"hello-world.py\"...\nout: python hello-world.py\n")
}

func TestRun_PromptsOncePerProject(t *testing.T) {
	h, fc, out := newHarness(t, "a.txt\nb.txt\n")

	require.NoError(t, h.Run(context.Background(), Selection{Project: "fileio"}))
	assert.Equal(t, 1, strings.Count(out.String(), "input parameters"))
	assert.Equal(t, []string{"python file-IO.py a.txt"}, fc.execs)
}

func TestRun_BuildFailureSkipsOnlyThatSource(t *testing.T) {
	h, fc, out := newHarness(t, "")
	fc.exit["gcc -o hello-world hello-world.c"] = 1

	err := h.Run(context.Background(), Selection{Project: "helloworld"})
	var buildErr *source.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "gcc -o hello-world hello-world.c", buildErr.Command)
	assert.Contains(t, err.Error(), "hello-world.c: ")

	assert.Equal(t, []string{
		"gcc -o hello-world hello-world.c",
		"go run hello-world.go",
		"python hello-world.py",
	}, fc.execs, "remaining sources still build and run")
	assert.Equal(t, []string{"hello-world.c", "hello-world.go", "hello-world.py"}, fc.released)
	assert.Contains(t, out.String(), "unable to build using cmd")
	assert.Contains(t, out.String(), "out: python hello-world.py\n")
}

func TestRun_EngineErrorStops(t *testing.T) {
	h, fc, _ := newHarness(t, "")
	fc.execErr = container.ErrEngineUnavailable

	err := h.Run(context.Background(), Selection{Project: "helloworld"})
	assert.ErrorIs(t, err, container.ErrEngineUnavailable)
	assert.Len(t, fc.execs, 1)
	assert.Equal(t, []string{"hello-world.c"}, fc.released)
}

func TestDownload(t *testing.T) {
	h, fc, _ := newHarness(t, "")

	require.NoError(t, h.Download(context.Background(), Selection{}))
	pulled := append([]string(nil), fc.pulled...)
	sort.Strings(pulled)
	assert.Equal(t, []string{"gcc:8.3", "golang:1.22", "python:3.7"}, pulled, "one resolve per distinct image")
}

func TestDownload_Error(t *testing.T) {
	h, fc, _ := newHarness(t, "")
	fc.pullErr = container.ErrRegistryPull

	err := h.Download(context.Background(), Selection{Language: "c"})
	assert.ErrorIs(t, err, container.ErrRegistryPull)
}

func TestTest(t *testing.T) {
	h, _, _ := newHarness(t, "")
	runner := &fakeRunner{ids: []string{
		"test/test_hello_world.py::test_helloworld[hello-world.py]",
		"test/test_hello_world.py::test_helloworld[hello-world.c]",
		"test/test_file_io.py::test_file_io[file-IO.py-input]",
		"test/test_file_io.py::test_file_io_missing[file-IO.py]",
	}, code: 3}
	ctx := context.Background()

	code, err := h.Test(ctx, Selection{}, runner)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Nil(t, runner.ran[0])

	_, err = h.Test(ctx, Selection{Source: "hello-world.c"}, runner)
	require.NoError(t, err)
	assert.Equal(t, []string{"test/test_hello_world.py::test_helloworld[hello-world.c]"}, runner.ran[1])

	_, err = h.Test(ctx, Selection{Project: "fileio"}, runner)
	require.NoError(t, err)
	assert.Equal(t, runner.ids[2:], runner.ran[2])

	_, err = h.Test(ctx, Selection{Language: "python"}, runner)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"test/test_file_io.py::test_file_io[file-IO.py-input]",
		"test/test_file_io.py::test_file_io_missing[file-IO.py]",
		"test/test_hello_world.py::test_helloworld[hello-world.py]",
	}, runner.ran[3])

	_, err = h.Test(ctx, Selection{Source: "hello-world.go"}, runner)
	assert.ErrorIs(t, err, testrun.ErrNoTests)
	assert.EqualError(t, err, `No tests could be found for source "hello-world.go"`)

	_, err = h.Test(ctx, Selection{Project: "nope"}, runner)
	assert.True(t, errors.Is(err, project.ErrUnknownProject))
}

func TestLinePrompter_EOF(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader(""), &out)
	v, err := p.Prompt(context.Background(), "fileio")
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.Equal(t, `input parameters for "fileio": `, out.String())
}
