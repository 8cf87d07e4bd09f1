package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyglot/internal/container"
	"polyglot/internal/manifest"
)

// recordingExecutor counts container operations and replays canned results.
type recordingExecutor struct {
	commands []string
	releases int
	result   container.ExecResult
	err      error
}

func (r *recordingExecutor) Exec(_ context.Context, t container.Target, command string) (*container.ExecResult, error) {
	r.commands = append(r.commands, command)
	if r.err != nil {
		return nil, r.err
	}
	res := r.result
	return &res, nil
}

func (r *recordingExecutor) Release(_ context.Context, t container.Target) error {
	r.releases++
	return nil
}

func mustManifest(t *testing.T, yml string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(yml))
	require.NoError(t, err)
	return m
}

const cManifest = `folder:
  extension: ".c"
  naming: "hyphen"
container:
  image: "gcc"
  tag: "8.3"
  build: "gcc -o {{ source.name }} {{ source.name }}{{ source.extension }}"
  cmd: "./{{ source.name }}"
`

const pyManifest = `folder:
  extension: ".py"
  naming: "underscore"
container:
  image: "python"
  tag: "3.7-alpine"
  cmd: "python {{ source.name }}{{ source.extension }}"
`

func TestNew(t *testing.T) {
	src, err := New("hello-world.c", "/archive/c/c", "helloworld", mustManifest(t, cManifest))
	require.NoError(t, err)

	assert.Equal(t, "hello-world", src.Name())
	assert.Equal(t, ".c", src.Extension())
	assert.Equal(t, "hello-world.c", src.Filename())
	assert.Equal(t, "c", src.Language())
	assert.Equal(t, "/archive/c/c", src.Path())
	assert.Equal(t, "/archive/c/c/hello-world.c", src.FullPath())
	assert.Equal(t, "helloworld", src.Project())
	assert.Equal(t, "./hello-world", src.ContainerSpec().Cmd)
	assert.Equal(t, "gcc -o hello-world hello-world.c", src.ContainerSpec().Build)
	assert.Equal(t, "Source(name: hello-world, path: /archive/c/c)", src.String())
}

func TestBuild_NoBuildCommand(t *testing.T) {
	src, err := New("hello_world.py", "/archive/p/python", "helloworld", mustManifest(t, pyManifest))
	require.NoError(t, err)

	x := &recordingExecutor{}
	require.NoError(t, src.Build(context.Background(), x, "ignored"))
	assert.Empty(t, x.commands, "no container operations without a build command")
}

func TestBuild(t *testing.T) {
	src, err := New("hello-world.c", "/archive/c/c", "helloworld", mustManifest(t, cManifest))
	require.NoError(t, err)

	x := &recordingExecutor{}
	require.NoError(t, src.Build(context.Background(), x, ""))
	assert.Equal(t, []string{"gcc -o hello-world hello-world.c"}, x.commands)

	x = &recordingExecutor{result: container.ExecResult{ExitCode: 1, Output: []byte("error: expected ';'")}}
	err = src.Build(context.Background(), x, "-O2")
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "gcc -o hello-world hello-world.c -O2", buildErr.Command)
	assert.Equal(t, 1, buildErr.ExitCode)
	assert.Contains(t, err.Error(), "error: expected ';'")
}

func TestRun(t *testing.T) {
	src, err := New("hello-world.c", "/archive/c/c", "helloworld", mustManifest(t, cManifest))
	require.NoError(t, err)

	x := &recordingExecutor{result: container.ExecResult{ExitCode: 2, Output: []byte("Usage: please input a number\n")}}
	out, err := src.Run(context.Background(), x, `"1 2 3"`)
	require.NoError(t, err, "non-zero exit is not an error for run")
	assert.Equal(t, "Usage: please input a number\n", out)
	assert.Equal(t, []string{`./hello-world "1 2 3"`}, x.commands)

	x = &recordingExecutor{err: errors.New("engine down")}
	_, err = src.Run(context.Background(), x, "")
	assert.ErrorContains(t, err, "engine down")
}

func TestExecAndCleanup(t *testing.T) {
	src, err := New("hello-world.c", "/archive/c/c", "helloworld", mustManifest(t, cManifest))
	require.NoError(t, err)

	x := &recordingExecutor{result: container.ExecResult{Output: []byte("hello-world.c\n")}}
	out, err := src.Exec(context.Background(), x, "ls")
	require.NoError(t, err)
	assert.Equal(t, "hello-world.c\n", out)

	require.NoError(t, src.Cleanup(context.Background(), x))
	assert.Equal(t, 1, x.releases)
}

func TestNew_ResolveError(t *testing.T) {
	_, err := New("x.py", "/d/python", "x", mustManifest(t, "folder: {extension: .py, naming: hyphen}\n"))
	assert.ErrorIs(t, err, manifest.ErrInvalidManifest)
}
