package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"polyglot/internal/config"
	"polyglot/internal/logging"
	"polyglot/internal/manifest"
)

// Target is anything that can be run in a container: a file on disk plus
// the container section resolved for it.
type Target interface {
	// FullPath identifies the target and is the file copied into the workspace.
	FullPath() string
	// Name is the filename stem, used as the container name prefix.
	Name() string
	ContainerSpec() manifest.ContainerSpec
}

// Container is a running container bound to one target.
type Container struct {
	ID        string
	Name      string
	Image     string
	Workspace string
	CreatedAt time.Time
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// MountPoint is where the workspace appears inside the container.
	MountPoint string
	// IdleCommand keeps the container alive between execs.
	IdleCommand string
	// TempDir is the parent for workspaces ("" = os.TempDir()).
	TempDir string
	// Progress receives pull progress. Nil disables it.
	Progress io.Writer
	// PullInterval is how often a "... " tick is written during a pull.
	// Zero disables ticks.
	PullInterval time.Duration
}

// DefaultManagerConfig returns the configuration used by the CLI.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MountPoint:   "/src",
		IdleCommand:  "sleep 1h",
		Progress:     os.Stdout,
		PullInterval: 5 * time.Second,
	}
}

// ManagerConfigFrom applies settings.container on top of the defaults. Pull
// ticks are only written when stdout is a terminal.
func ManagerConfigFrom(cc config.ContainerConfig) ManagerConfig {
	mc := DefaultManagerConfig()
	if cc.MountPoint != "" {
		mc.MountPoint = cc.MountPoint
	}
	if cc.IdleCommand != "" {
		mc.IdleCommand = cc.IdleCommand
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		mc.PullInterval = 0
	}
	return mc
}

// Manager binds at most one container and one workspace to each target,
// keyed by the target's full path.
//
// A Manager is not safe for concurrent use, with the exception of
// ResolveImage, which touches no Manager state.
type Manager struct {
	engine     Engine
	cfg        ManagerConfig
	containers map[string]*Container
	workspaces map[string]string
	now        func() time.Time
}

// NewManager creates a Manager over engine.
func NewManager(engine Engine, cfg ManagerConfig) *Manager {
	if cfg.MountPoint == "" {
		cfg.MountPoint = "/src"
	}
	if cfg.IdleCommand == "" {
		cfg.IdleCommand = "sleep 1h"
	}
	return &Manager{
		engine:     engine,
		cfg:        cfg,
		containers: make(map[string]*Container),
		workspaces: make(map[string]string),
		now:        time.Now,
	}
}

// ResolveImage returns the local image for spec, pulling it first if it is
// not present. Pull failures are returned without retry.
func (m *Manager) ResolveImage(ctx context.Context, spec manifest.ContainerSpec) (*Image, error) {
	ref := spec.Reference()
	images, err := m.engine.ListImages(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		logging.ContainerDebug("Image %s present locally (%s)", ref, images[0].ID)
		return &images[0], nil
	}

	timer := logging.StartTimer(logging.CategoryContainer, "Pull "+ref)
	m.progressf("Pulling %s... ", ref)
	last := m.now()
	err = m.engine.PullImage(ctx, ref, func() {
		if m.cfg.PullInterval <= 0 {
			return
		}
		if now := m.now(); now.Sub(last) > m.cfg.PullInterval {
			m.progressf("... ")
			last = now
		}
	})
	if err != nil {
		m.progressf("failed\n")
		logging.ContainerError("Pull of %s failed: %v", ref, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrRegistryPull, ref, err)
	}
	m.progressf("done\n")
	timer.Stop()

	images, err = m.engine.ListImages(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, ref)
	}
	logging.Container("Pulled %s", ref)
	return &images[0], nil
}

// Acquire returns the container bound to t, provisioning one if needed: a
// fresh workspace holding a copy of the file, the image, and a detached
// container with the workspace mounted read-write. On any failure nothing is
// registered and the workspace is removed.
func (m *Manager) Acquire(ctx context.Context, t Target) (*Container, error) {
	key := t.FullPath()
	if c, ok := m.containers[key]; ok {
		return c, nil
	}

	ws, err := os.MkdirTemp(m.cfg.TempDir, "polyglot-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	registered := false
	defer func() {
		if !registered {
			_ = os.RemoveAll(ws)
		}
	}()

	if err := copyFile(key, filepath.Join(ws, filepath.Base(key))); err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", key, err)
	}

	spec := t.ContainerSpec()
	img, err := m.ResolveImage(ctx, spec)
	if err != nil {
		return nil, err
	}

	idle, err := shlex.Split(m.cfg.IdleCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid idle command %q: %w", m.cfg.IdleCommand, err)
	}

	name := t.Name() + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	id, err := m.engine.RunContainer(ctx, RunOptions{
		Name:       name,
		Image:      spec.Reference(),
		Cmd:        idle,
		WorkingDir: m.cfg.MountPoint,
		Mounts:     []Mount{{Source: ws, Target: m.cfg.MountPoint}},
		Labels: map[string]string{
			"polyglot.managed": "true",
			"polyglot.source":  key,
		},
	})
	if err != nil {
		return nil, err
	}

	c := &Container{
		ID:        id,
		Name:      name,
		Image:     img.ID,
		Workspace: ws,
		CreatedAt: m.now(),
	}
	m.containers[key] = c
	m.workspaces[key] = ws
	registered = true

	logging.Container("Started %s for %s (%s)", name, key, spec.Reference())
	return c, nil
}

// Exec runs command, split shell-style, in t's container with the mount
// point as working directory. The container is acquired if necessary. No
// deadline is imposed beyond ctx.
func (m *Manager) Exec(ctx context.Context, t Target, command string) (*ExecResult, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command for %s", t.FullPath())
	}

	c, err := m.Acquire(ctx, t)
	if err != nil {
		return nil, err
	}

	logging.ContainerDebug("exec in %s: %v", c.Name, argv)
	res, err := m.engine.Exec(ctx, c.ID, argv, m.cfg.MountPoint)
	if err != nil {
		return nil, err
	}
	logging.ContainerDebug("exec in %s exited %d after %v", c.Name, res.ExitCode, res.Duration)
	return res, nil
}

// Release force-removes t's container with its anonymous volumes and then
// its workspace. If the engine refuses the removal the binding is kept so
// the caller can retry.
func (m *Manager) Release(ctx context.Context, t Target) error {
	return m.release(ctx, t.FullPath())
}

func (m *Manager) release(ctx context.Context, key string) error {
	c, ok := m.containers[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReleaseWithoutAcquire, key)
	}

	if err := m.engine.RemoveContainer(ctx, c.ID, RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		logging.ContainerError("Failed to remove %s: %v", c.Name, err)
		return fmt.Errorf("release %s: %w", key, err)
	}
	if err := os.RemoveAll(m.workspaces[key]); err != nil {
		logging.ContainerWarn("Failed to remove workspace %s: %v", m.workspaces[key], err)
	}

	delete(m.containers, key)
	delete(m.workspaces, key)
	logging.ContainerDebug("Released %s", c.Name)
	return nil
}

// ReleaseAll releases every bound container, in key order, and joins the
// errors.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	keys := make([]string, 0, len(m.containers))
	for k := range m.containers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := m.release(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active returns the number of bound containers.
func (m *Manager) Active() int {
	return len(m.containers)
}

// Close releases the engine connection. Bound containers are not released.
func (m *Manager) Close() error {
	return m.engine.Close()
}

func (m *Manager) progressf(format string, args ...interface{}) {
	if m.cfg.Progress != nil {
		fmt.Fprintf(m.cfg.Progress, format, args...)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
