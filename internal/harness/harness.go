// Package harness implements the run, download, test and watch workflows on
// top of the catalog, the locator and the container manager.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"polyglot/internal/container"
	"polyglot/internal/logging"
	"polyglot/internal/manifest"
	"polyglot/internal/project"
	"polyglot/internal/source"
	"polyglot/internal/testrun"
	"polyglot/internal/watch"
)

// ErrNoSources is returned when a selection matches nothing.
var ErrNoSources = errors.New("no valid sources found")

// SelectionError carries the user-facing message for a failed selection.
type SelectionError struct {
	Msg string
	Err error
}

func (e *SelectionError) Error() string { return e.Msg }

func (e *SelectionError) Unwrap() error { return e.Err }

// Containers is the container surface the workflows need. *container.Manager
// satisfies it.
type Containers interface {
	source.Executor
	ResolveImage(ctx context.Context, spec manifest.ContainerSpec) (*container.Image, error)
}

// TestRunner is the external test suite. *testrun.Runner satisfies it.
type TestRunner interface {
	Collect(ctx context.Context) ([]string, error)
	Exec(ctx context.Context, ids []string) (int, error)
}

// Selection narrows a workflow to one source file, one project or one
// language. At most one field may be set; none means everything.
type Selection struct {
	Source   string
	Project  string
	Language string
}

// Harness wires the workflows together.
type Harness struct {
	Catalog    *project.Catalog
	Locator    *source.Locator
	Containers Containers
	Root       string
	Out        io.Writer
	Prompter   Prompter
	// Parallel bounds concurrent image pulls in Download.
	Parallel int
}

// Select returns the sources matching sel.
func (h *Harness) Select(sel Selection) ([]*source.Source, error) {
	switch {
	case sel.Language != "":
		dir, ok := h.languageDir(sel.Language)
		if !ok {
			return nil, noSources("language", sel.Language)
		}
		found, err := h.Locator.Locate(dir)
		if err != nil {
			return nil, err
		}
		srcs := source.Flatten(found)
		if len(srcs) == 0 {
			return nil, noSources("language", sel.Language)
		}
		return srcs, nil

	case sel.Project != "":
		id, ok := h.Catalog.Canonical(sel.Project)
		if !ok {
			return nil, noSources("project", sel.Project)
		}
		found, err := h.Locator.Locate(h.Root)
		if err != nil {
			return nil, err
		}
		return found[id], nil

	case sel.Source != "":
		found, err := h.Locator.Locate(h.Root)
		if err != nil {
			return nil, err
		}
		for _, s := range source.Flatten(found) {
			if strings.EqualFold(s.Filename(), sel.Source) {
				return []*source.Source{s}, nil
			}
		}
		return nil, &SelectionError{Msg: fmt.Sprintf("Source %q could not be found", sel.Source), Err: ErrNoSources}

	default:
		found, err := h.Locator.Locate(h.Root)
		if err != nil {
			return nil, err
		}
		return source.Flatten(found), nil
	}
}

// languageDir resolves <root>/<first letter>/<language>, falling back to
// <root>/<language>.
func (h *Harness) languageDir(language string) (string, bool) {
	candidates := []string{
		filepath.Join(h.Root, string([]rune(language)[:1]), language),
		filepath.Join(h.Root, language),
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, true
		}
	}
	return "", false
}

func noSources(kind, value string) error {
	return &SelectionError{Msg: fmt.Sprintf("No valid sources found for %s: %q", kind, value), Err: ErrNoSources}
}

// Run builds and runs every selected source, prompting once per project for
// parameters when the project needs them. Each source's container is
// released as soon as it has run. A failed build only skips that source;
// the build errors are joined and returned once every source was tried.
// Any other error stops the run.
func (h *Harness) Run(ctx context.Context, sel Selection) error {
	srcs, err := h.Select(sel)
	if err != nil {
		return err
	}
	logging.Harness("Running %d sources", len(srcs))

	params := make(map[string]string)
	var failed []error
	for _, s := range srcs {
		p, ok := params[s.Project()]
		if !ok {
			p, err = h.params(ctx, s.Project())
			if err != nil {
				return err
			}
			params[s.Project()] = p
		}
		if err := h.buildAndRun(ctx, s, p); err != nil {
			var buildErr *source.BuildError
			if !errors.As(err, &buildErr) {
				return err
			}
			logging.HarnessWarn("%s: %v", s.Filename(), err)
			fmt.Fprintln(h.Out, err)
			failed = append(failed, fmt.Errorf("%s: %w", s.Filename(), err))
		}
	}
	if len(failed) > 0 {
		logging.HarnessWarn("%d of %d sources failed to build", len(failed), len(srcs))
	}
	return errors.Join(failed...)
}

func (h *Harness) params(ctx context.Context, id string) (string, error) {
	spec, ok := h.Catalog.TryLookup(id)
	if !ok || !spec.RequiresParameters || h.Prompter == nil {
		return "", nil
	}
	return h.Prompter.Prompt(ctx, id)
}

func (h *Harness) buildAndRun(ctx context.Context, s *source.Source, params string) (err error) {
	fmt.Fprintln(h.Out)
	fmt.Fprintf(h.Out, "Running %q...\n", s.Filename())

	defer func() {
		cerr := s.Cleanup(context.WithoutCancel(ctx), h.Containers)
		if cerr != nil && !errors.Is(cerr, container.ErrReleaseWithoutAcquire) {
			err = errors.Join(err, cerr)
		}
	}()

	if err := s.Build(ctx, h.Containers, ""); err != nil {
		return err
	}
	out, err := s.Run(ctx, h.Containers, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(h.Out, out)
	return nil
}

// Download pulls every distinct image the selected sources need.
func (h *Harness) Download(ctx context.Context, sel Selection) error {
	srcs, err := h.Select(sel)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var specs []manifest.ContainerSpec
	for _, s := range srcs {
		spec := s.ContainerSpec()
		if !seen[spec.Reference()] {
			seen[spec.Reference()] = true
			specs = append(specs, spec)
		}
	}
	logging.Harness("Resolving %d images for %d sources", len(specs), len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, h.Parallel))
	for _, spec := range specs {
		g.Go(func() error {
			_, err := h.Containers.ResolveImage(gctx, spec)
			return err
		})
	}
	return g.Wait()
}

// Test forwards the tests for the selected sources to runner and returns
// its exit code. Without a selection the whole suite runs.
func (h *Harness) Test(ctx context.Context, sel Selection, runner TestRunner) (int, error) {
	if sel == (Selection{}) {
		return runner.Exec(ctx, nil)
	}

	if sel.Project != "" {
		id, ok := h.Catalog.Canonical(sel.Project)
		if !ok {
			return 0, &SelectionError{Msg: fmt.Sprintf("Either tests or sources not found for project: %q", sel.Project), Err: project.ErrUnknownProject}
		}
		ids, err := runner.Collect(ctx)
		if err != nil {
			return 0, err
		}
		spec, _ := h.Catalog.TryLookup(id)
		tests := testrun.Select(ids, spec.TestNames(id), "")
		if len(tests) == 0 {
			return 0, &SelectionError{Msg: fmt.Sprintf("Either tests or sources not found for project: %q", sel.Project), Err: testrun.ErrNoTests}
		}
		return runner.Exec(ctx, tests)
	}

	srcs, err := h.Select(sel)
	if err != nil {
		return 0, err
	}
	ids, err := runner.Collect(ctx)
	if err != nil {
		return 0, err
	}

	var tests []string
	for _, s := range srcs {
		spec, ok := h.Catalog.TryLookup(s.Project())
		if !ok {
			continue
		}
		tests = append(tests, testrun.Select(ids, spec.TestNames(s.Project()), s.Filename())...)
	}
	if len(tests) == 0 {
		msg := fmt.Sprintf("No tests could be found for source %q", sel.Source)
		if sel.Language != "" {
			msg = fmt.Sprintf("No tests found for sources in language %q", sel.Language)
		}
		return 0, &SelectionError{Msg: msg, Err: testrun.ErrNoTests}
	}
	return runner.Exec(ctx, tests)
}

// Watch rebuilds and reruns a selected source each time its file is saved,
// until ctx is cancelled. Parameters are asked for up front.
func (h *Harness) Watch(ctx context.Context, sel Selection) error {
	srcs, err := h.Select(sel)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		return ErrNoSources
	}

	params := make(map[string]string)
	for _, s := range srcs {
		if _, ok := params[s.Project()]; ok {
			continue
		}
		p, err := h.params(ctx, s.Project())
		if err != nil {
			return err
		}
		params[s.Project()] = p
	}

	w, err := watch.New(srcs, func(ctx context.Context, s *source.Source) {
		if err := h.buildAndRun(ctx, s, params[s.Project()]); err != nil {
			logging.HarnessWarn("%s: %v", s.Filename(), err)
			fmt.Fprintln(h.Out, err)
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(h.Out, "Watching %d sources, press Ctrl+C to stop\n", len(srcs))
	return w.Run(ctx)
}
