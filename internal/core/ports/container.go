package ports

import (
	"context"

	"github.com/melih/diskforge/internal/core/domain"
)

// ContainerRuntime defines the container operations a build needs from an
// engine. Every call is addressed to an engine by its opaque ID, so Docker
// and Podman hosts can be mixed without changing the build logic.
type ContainerRuntime interface {
	// IsRootful reports whether the engine runs with root privileges.
	IsRootful(ctx context.Context, engineID string) (bool, error)
	PullImage(ctx context.Context, engineID, ref string) error
	// ListContainers returns containers in any state.
	ListContainers(ctx context.Context, engineID string) ([]domain.Container, error)
	RemoveContainerIfExists(ctx context.Context, engineID, name string) error
	// CreateAndStart returns the ID of the started container.
	CreateAndStart(ctx context.Context, engineID string, spec domain.LaunchSpec) (string, error)
	// Logs follows the container output, calling onChunk for every piece of
	// output until the engine closes the stream.
	Logs(ctx context.Context, engineID, containerID string, onChunk func(stream, data string)) error
	// WaitForExit blocks until the container stops. A non-zero exit code is
	// an error.
	WaitForExit(ctx context.Context, engineID, containerID string) error
	RemoveContainerAndVolumes(ctx context.Context, engineID, name string) error
}
