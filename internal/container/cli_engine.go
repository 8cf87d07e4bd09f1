package container

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"polyglot/internal/logging"
)

// CLIEngine drives a docker-compatible binary (docker or podman) through
// os/exec. It needs nothing beyond the binary on PATH.
type CLIEngine struct {
	binary string
	path   string
}

// NewCLIEngine locates binary on PATH and checks that it responds.
func NewCLIEngine(ctx context.Context, binary string) (*CLIEngine, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrEngineUnavailable, binary)
	}

	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(vctx, path, "version")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s found but not responsive: %v: %s", ErrEngineUnavailable, binary, err, strings.TrimSpace(stderr.String()))
	}

	logging.ContainerDebug("Using %s CLI at %s", binary, path)
	return &CLIEngine{binary: binary, path: path}, nil
}

// Name implements Engine.
func (e *CLIEngine) Name() string { return e.binary }

// ListImages implements Engine.
func (e *CLIEngine) ListImages(ctx context.Context, ref string) ([]Image, error) {
	out, err := e.output(ctx, "images", "--quiet", "--no-trunc", ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return parseImageIDs(out, ref), nil
}

// PullImage implements Engine.
func (e *CLIEngine) PullImage(ctx context.Context, ref string, progress func()) error {
	cmd := exec.CommandContext(ctx, e.path, "pull", ref)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		logging.ContainerDebug("pull %s: %s", ref, scanner.Text())
		if progress != nil {
			progress()
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s pull: %w: %s", e.binary, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// RunContainer implements Engine with create followed by start.
func (e *CLIEngine) RunContainer(ctx context.Context, opts RunOptions) (string, error) {
	args := createArgs(opts)
	logging.ContainerDebug("%s create args: %v", e.binary, args)

	out, err := e.output(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", fmt.Errorf("failed to create container: %s returned no id", e.binary)
	}

	if _, err := e.output(ctx, "start", id); err != nil {
		_, _ = e.output(context.WithoutCancel(ctx), removeArgs(id, RemoveOptions{Force: true, RemoveVolumes: true})...)
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return id, nil
}

// Exec implements Engine. A non-zero exit is reported in the result, not as
// an error.
func (e *CLIEngine) Exec(ctx context.Context, id string, argv []string, workdir string) (*ExecResult, error) {
	args := execArgs(id, argv, workdir)
	logging.ContainerDebug("%s exec args: %v", e.binary, args)

	cmd := exec.CommandContext(ctx, e.path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{Output: out.Bytes(), Duration: time.Since(start)}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("%s exec: %w", e.binary, err)
	}
	return result, nil
}

// RemoveContainer implements Engine.
func (e *CLIEngine) RemoveContainer(ctx context.Context, id string, opts RemoveOptions) error {
	if _, err := e.output(ctx, removeArgs(id, opts)...); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Close implements Engine.
func (e *CLIEngine) Close() error { return nil }

func (e *CLIEngine) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, e.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", e.binary, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func createArgs(opts RunOptions) []string {
	args := []string{"create"}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.WorkingDir != "" {
		args = append(args, "-w", opts.WorkingDir)
	}
	for _, m := range opts.Mounts {
		args = append(args, "-v", bindSpec(m))
	}

	keys := make([]string, 0, len(opts.Labels))
	for k := range opts.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	args = append(args, opts.Image)
	return append(args, opts.Cmd...)
}

func execArgs(id string, argv []string, workdir string) []string {
	args := []string{"exec"}
	if workdir != "" {
		args = append(args, "-w", workdir)
	}
	args = append(args, id)
	return append(args, argv...)
}

func removeArgs(id string, opts RemoveOptions) []string {
	args := []string{"rm"}
	if opts.Force {
		args = append(args, "-f")
	}
	if opts.RemoveVolumes {
		args = append(args, "-v")
	}
	return append(args, id)
}

func parseImageIDs(out, ref string) []Image {
	seen := make(map[string]bool)
	var images []Image
	for _, line := range strings.Split(out, "\n") {
		id := strings.TrimSpace(line)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		images = append(images, Image{ID: id, Tags: []string{ref}})
	}
	return images
}
