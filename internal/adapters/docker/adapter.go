package docker

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/melih/diskforge/internal/core/domain"
)

// rootlessOption is reported in the engine security options when the
// daemon runs without root privileges (Docker and Podman alike).
const rootlessOption = "name=rootless"

// Adapter implements ports.ContainerRuntime using the Docker SDK. Engines are
// addressed by ID and mapped to Docker API hosts; Podman is reached through
// its Docker compatible socket.
type Adapter struct {
	hosts map[string]string

	mu      sync.Mutex
	clients map[string]*client.Client
}

// NewAdapter creates a new Docker adapter. hosts maps engine IDs to API
// hosts such as unix:///run/podman/podman.sock. An engine mapped to an empty
// host, or any engine when hosts is empty, uses the DOCKER_* environment.
func NewAdapter(hosts map[string]string) *Adapter {
	return &Adapter{
		hosts:   hosts,
		clients: make(map[string]*client.Client),
	}
}

// Returns the client for an engine, connecting on first use.
func (a *Adapter) client(engineID string) (*client.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cli, ok := a.clients[engineID]; ok {
		return cli, nil
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if len(a.hosts) > 0 {
		host, ok := a.hosts[engineID]
		if !ok {
			return nil, fmt.Errorf("unknown engine %q", engineID)
		}
		if host != "" {
			opts = append(opts, client.WithHost(host))
		}
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	a.clients[engineID] = cli
	return cli, nil
}

// Close releases every engine connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for id, cli := range a.clients {
		if err := cli.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.clients, id)
	}
	return firstErr
}

// IsRootful reports whether the engine daemon runs as root
func (a *Adapter) IsRootful(ctx context.Context, engineID string) (bool, error) {
	cli, err := a.client(engineID)
	if err != nil {
		return false, err
	}
	info, err := cli.Info(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get engine info: %w", err)
	}
	return !slices.Contains(info.SecurityOptions, rootlessOption), nil
}

// PullImage pulls ref and waits until the pull completes. Errors reported
// inside the progress stream are returned as well.
func (a *Adapter) PullImage(ctx context.Context, engineID, ref string) error {
	cli, err := a.client(engineID)
	if err != nil {
		return err
	}

	reader, err := cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	return nil
}

// ListContainers returns all containers of the engine, running or not.
func (a *Adapter) ListContainers(ctx context.Context, engineID string) ([]domain.Container, error) {
	cli, err := a.client(engineID)
	if err != nil {
		return nil, err
	}

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		result = append(result, domain.Container{
			ID:     c.ID,
			Names:  c.Names,
			Image:  c.Image,
			State:  c.State,
			Labels: c.Labels,
		})
	}
	return result, nil
}

// RemoveContainerIfExists force-removes the named container. A missing
// container is not an error.
func (a *Adapter) RemoveContainerIfExists(ctx context.Context, engineID, name string) error {
	return a.remove(ctx, engineID, name, false)
}

// RemoveContainerAndVolumes force-removes the named container together with
// its anonymous volumes. A missing container is not an error.
func (a *Adapter) RemoveContainerAndVolumes(ctx context.Context, engineID, name string) error {
	return a.remove(ctx, engineID, name, true)
}

func (a *Adapter) remove(ctx context.Context, engineID, name string, volumes bool) error {
	cli, err := a.client(engineID)
	if err != nil {
		return err
	}

	err = cli.ContainerRemove(ctx, name, types.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: volumes,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// CreateAndStart creates the container described by spec and starts it.
func (a *Adapter) CreateAndStart(ctx context.Context, engineID string, spec domain.LaunchSpec) (string, error) {
	cli, err := a.client(engineID)
	if err != nil {
		return "", err
	}

	resp, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:  spec.Image,
			Cmd:    spec.Cmd,
			Labels: spec.Labels,
		},
		&container.HostConfig{
			Privileged:  spec.Privileged,
			SecurityOpt: spec.SecurityOpt,
			Binds:       spec.Binds,
		},
		nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return resp.ID, nil
}

// Logs follows the container output until the engine closes the stream.
func (a *Adapter) Logs(ctx context.Context, engineID, containerID string, onChunk func(stream, data string)) error {
	cli, err := a.client(engineID)
	if err != nil {
		return err
	}

	options := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	}
	logs, err := cli.ContainerLogs(ctx, containerID, options)
	if err != nil {
		return fmt.Errorf("failed to get container logs: %w", err)
	}
	defer logs.Close()

	// The builder runs without a TTY, so stdout and stderr are multiplexed.
	stdout := chunkWriter{stream: "stdout", onChunk: onChunk}
	stderr := chunkWriter{stream: "stderr", onChunk: onChunk}
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to read container logs: %w", err)
	}
	return nil
}

// WaitForExit waits for the container to stop and fails on a non-zero exit.
func (a *Adapter) WaitForExit(ctx context.Context, engineID, containerID string) error {
	cli, err := a.client(engineID)
	if err != nil {
		return err
	}

	statusCh, errCh := cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return fmt.Errorf("container %s failed: %s", containerID, status.Error.Message)
		}
		if status.StatusCode != 0 {
			return fmt.Errorf("container %s exited with code %d", containerID, status.StatusCode)
		}
		return nil
	}
}

// Forwards each write to a chunk callback.
type chunkWriter struct {
	stream  string
	onChunk func(stream, data string)
}

func (w chunkWriter) Write(p []byte) (int, error) {
	w.onChunk(w.stream, string(p))
	return len(p), nil
}
