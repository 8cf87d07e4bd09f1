// Package testrun drives the external test suite that verifies sample
// programs. Tests are addressed by node ids of the form
// path/to/test_file.py::test_function[source-file-params].
package testrun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/google/shlex"

	"polyglot/internal/config"
	"polyglot/internal/logging"
)

// ErrNoTests is returned when a selection matches no collected test.
var ErrNoTests = errors.New("no tests found")

// Runner invokes the external test framework.
type Runner struct {
	CollectCmd []string
	RunCmd     []string
	Dir        string
	Stdout     io.Writer
	Stderr     io.Writer
}

// NewRunner builds a Runner from settings.test_runner, running in dir.
func NewRunner(cfg config.TestRunnerConfig, dir string) (*Runner, error) {
	collect, err := shlex.Split(cfg.Collect)
	if err != nil || len(collect) == 0 {
		return nil, fmt.Errorf("invalid test_runner.collect %q: %v", cfg.Collect, err)
	}
	run, err := shlex.Split(cfg.Run)
	if err != nil || len(run) == 0 {
		return nil, fmt.Errorf("invalid test_runner.run %q: %v", cfg.Run, err)
	}
	return &Runner{
		CollectCmd: collect,
		RunCmd:     run,
		Dir:        dir,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}, nil
}

// Collect runs the collect command and returns every node id it printed.
func (r *Runner) Collect(ctx context.Context) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryTestRun, "Collect")
	defer timer.Stop()

	cmd := exec.CommandContext(ctx, r.CollectCmd[0], r.CollectCmd[1:]...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("test collection failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	ids := ParseNodeIDs(&stdout)
	logging.TestRun("Collected %d tests", len(ids))
	return ids, nil
}

// ParseNodeIDs extracts node ids, one per line, ignoring summary lines.
func ParseNodeIDs(r io.Reader) []string {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.Contains(line, "::") {
			ids = append(ids, line)
		}
	}
	return ids
}

// Select returns the ids matching any of testNames. With a filename only
// parametrizations for that file are kept; otherwise any parametrization
// matches.
func Select(ids []string, testNames []string, filename string) []string {
	var out []string
	for _, name := range testNames {
		re := pattern(name, filename)
		for _, id := range ids {
			if re.MatchString(id) {
				out = append(out, id)
			}
		}
	}
	return out
}

func pattern(testName, filename string) *regexp.Regexp {
	prefix := `^[\w./-]*::` + regexp.QuoteMeta(testName)
	if filename == "" {
		return regexp.MustCompile(prefix + `\[.+\]$`)
	}
	return regexp.MustCompile(prefix + `\[` + regexp.QuoteMeta(filename) + `(-.*)?\]$`)
}

// Exec runs the suite restricted to ids (all tests when ids is empty) and
// returns the framework's exit code.
func (r *Runner) Exec(ctx context.Context, ids []string) (int, error) {
	args := append(append([]string{}, r.RunCmd[1:]...), ids...)
	logging.TestRunDebug("Running %s with %d selected tests", r.RunCmd[0], len(ids))

	cmd := exec.CommandContext(ctx, r.RunCmd[0], args...)
	cmd.Dir = r.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}
