// Package container provisions one disposable container per source file and
// runs commands inside it. The Manager owns the lifecycle; an Engine is the
// thin adapter over a concrete container runtime.
package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polyglot/internal/config"
)

var (
	// ErrRegistryPull wraps failures while pulling an image.
	ErrRegistryPull = errors.New("image pull failed")

	// ErrImageNotFound is returned when an image is still absent after a pull.
	ErrImageNotFound = errors.New("image not found")

	// ErrReleaseWithoutAcquire is returned when releasing a source that has no container.
	ErrReleaseWithoutAcquire = errors.New("no container acquired for source")

	// ErrEngineUnavailable is returned when the selected runtime cannot be reached.
	ErrEngineUnavailable = errors.New("container engine unavailable")
)

// Engine is the subset of a container runtime the Manager needs.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// ListImages returns local images matching ref ("image:tag").
	ListImages(ctx context.Context, ref string) ([]Image, error)

	// PullImage pulls ref, calling progress once per streamed status update.
	PullImage(ctx context.Context, ref string, progress func()) error

	// RunContainer creates and starts a detached container and returns its ID.
	RunContainer(ctx context.Context, opts RunOptions) (string, error)

	// Exec runs argv inside a running container and blocks until it exits.
	Exec(ctx context.Context, id string, argv []string, workdir string) (*ExecResult, error)

	// RemoveContainer removes a container.
	RemoveContainer(ctx context.Context, id string, opts RemoveOptions) error

	Close() error
}

// Image is a local container image.
type Image struct {
	ID   string
	Tags []string
}

// Mount is a host bind mount.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunOptions describes a container to start.
type RunOptions struct {
	Name       string
	Image      string
	Cmd        []string
	WorkingDir string
	Mounts     []Mount
	Labels     map[string]string
}

// RemoveOptions controls container removal.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	// Output holds stdout and stderr interleaved.
	Output   []byte
	Duration time.Duration
}

// String returns the output decoded as text.
func (r *ExecResult) String() string {
	return string(r.Output)
}

// NewEngine returns the engine selected by settings.container.engine.
func NewEngine(ctx context.Context, kind string) (Engine, error) {
	switch kind {
	case config.EngineAPI, "":
		e, err := NewAPIEngine(ctx)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EngineDocker, config.EnginePodman:
		e, err := NewCLIEngine(ctx, kind)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown container engine %q (valid: %v)", kind, config.ValidEngines)
	}
}
