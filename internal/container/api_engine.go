package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"

	"polyglot/internal/logging"
)

// APIEngine talks to the Docker Engine API through the official SDK. The
// daemon address comes from the standard DOCKER_HOST environment.
type APIEngine struct {
	cli *client.Client
}

// NewAPIEngine connects to the daemon and negotiates the API version.
func NewAPIEngine(ctx context.Context) (*APIEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	logging.ContainerDebug("Connected to Docker daemon at %s (API %s)", cli.DaemonHost(), cli.ClientVersion())
	return &APIEngine{cli: cli}, nil
}

// Name implements Engine.
func (e *APIEngine) Name() string { return "api" }

// ListImages implements Engine.
func (e *APIEngine) ListImages(ctx context.Context, ref string) ([]Image, error) {
	summaries, err := e.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	images := make([]Image, 0, len(summaries))
	for _, s := range summaries {
		images = append(images, Image{ID: s.ID, Tags: s.RepoTags})
	}
	return images, nil
}

// PullImage implements Engine. The pull stream is drained to completion; an
// error message embedded in the stream fails the pull.
func (e *APIEngine) PullImage(ctx context.Context, ref string, progress func()) error {
	rc, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return msg.Error
		}
		if progress != nil {
			progress()
		}
	}
}

// RunContainer implements Engine.
func (e *APIEngine) RunContainer(ctx context.Context, opts RunOptions) (string, error) {
	binds := make([]string, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		binds = append(binds, bindSpec(m))
	}

	created, err := e.cli.ContainerCreate(ctx,
		&dockercontainer.Config{
			Image:      opts.Image,
			Cmd:        opts.Cmd,
			WorkingDir: opts.WorkingDir,
			Labels:     opts.Labels,
		},
		&dockercontainer.HostConfig{Binds: binds},
		nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range created.Warnings {
		logging.ContainerWarn("Create %s: %s", opts.Name, w)
	}

	if err := e.cli.ContainerStart(ctx, created.ID, dockercontainer.StartOptions{}); err != nil {
		_ = e.cli.ContainerRemove(context.WithoutCancel(ctx), created.ID, dockercontainer.RemoveOptions{Force: true, RemoveVolumes: true})
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return created.ID, nil
}

// Exec implements Engine.
func (e *APIEngine) Exec(ctx context.Context, id string, argv []string, workdir string) (*ExecResult, error) {
	start := time.Now()

	created, err := e.cli.ContainerExecCreate(ctx, id, dockercontainer.ExecOptions{
		Cmd:          argv,
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	att, err := e.cli.ContainerExecAttach(ctx, created.ID, dockercontainer.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer att.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, att.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Output:   out.Bytes(),
		Duration: time.Since(start),
	}, nil
}

// RemoveContainer implements Engine.
func (e *APIEngine) RemoveContainer(ctx context.Context, id string, opts RemoveOptions) error {
	return e.cli.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{
		RemoveVolumes: opts.RemoveVolumes,
		Force:         opts.Force,
	})
}

// Close implements Engine.
func (e *APIEngine) Close() error {
	return e.cli.Close()
}

func bindSpec(m Mount) string {
	mode := "rw"
	if m.ReadOnly {
		mode = "ro"
	}
	return m.Source + ":" + m.Target + ":" + mode
}
