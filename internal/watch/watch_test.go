package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"polyglot/internal/manifest"
	"polyglot/internal/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSource(t *testing.T, dir, file string) *source.Source {
	t.Helper()
	m, err := manifest.Parse([]byte(`folder: {extension: .py, naming: hyphen}
container: {image: python, tag: "3", cmd: "python {{ source.name }}.py"}
`))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte("print(1)\n"), 0644))
	src, err := source.New(file, dir, "x", m)
	require.NoError(t, err)
	return src
}

func TestWatcher_DebouncedTrigger(t *testing.T) {
	dir := t.TempDir()
	hello := newSource(t, dir, "hello-world.py")
	other := newSource(t, dir, "fizz-buzz.py")

	changed := make(chan string, 10)
	w, err := New([]*source.Source{hello, other}, func(_ context.Context, s *source.Source) {
		changed <- s.Filename()
	})
	require.NoError(t, err)
	w.debounceDur = 50 * time.Millisecond
	w.tick = 10 * time.Millisecond
	assert.Equal(t, []string{dir}, w.Dirs())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(hello.FullPath(), []byte("print(2)\n"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))

	select {
	case name := <-changed:
		assert.Equal(t, "hello-world.py", name)
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}

	select {
	case name := <-changed:
		t.Fatalf("unexpected second trigger for %s", name)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)

	stats := w.Stats()
	assert.Equal(t, 1, stats.Triggered)
	assert.Equal(t, hello.FullPath(), stats.LastPath)
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]*source.Source{newSource(t, dir, "hello-world.py")}, func(context.Context, *source.Source) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.Run(ctx))
}

func TestWatcher_MissingDir(t *testing.T) {
	dir := t.TempDir()
	src := newSource(t, dir, "hello-world.py")
	require.NoError(t, os.RemoveAll(dir))

	w, err := New([]*source.Source{src}, func(context.Context, *source.Source) {})
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background()))
}
