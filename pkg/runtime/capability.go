package runtime

import (
	"context"
	"io"
	"time"

	"github.com/vitalratel/peleka/pkg/id"
)

// sealed is embedded by every capability interface so only this package can
// produce a conforming implementation.
type sealed interface {
	sealedRuntime()
}

// ImageOps is the image half of the capability set.
type ImageOps interface {
	sealed
	Pull(ctx context.Context, ref string, auth *AuthConfig) error
	ImageExists(ctx context.Context, ref string) (bool, error)
	RemoveImage(ctx context.Context, ref string, force bool) error
}

// ContainerOps is the container lifecycle half of the capability set.
type ContainerOps interface {
	sealed
	Create(ctx context.Context, cfg ContainerConfig) (id.ContainerID, error)
	Start(ctx context.Context, cid id.ContainerID) error
	Stop(ctx context.Context, cid id.ContainerID, timeout time.Duration) error
	RemoveContainer(ctx context.Context, cid id.ContainerID, force bool) error
	Inspect(ctx context.Context, cid id.ContainerID) (ContainerInfo, error)
	List(ctx context.Context, filters ListFilters) ([]ContainerInfo, error)
	Rename(ctx context.Context, cid id.ContainerID, newName string) error
}

// NetworkOps manages user-defined networks and container attachment.
type NetworkOps interface {
	sealed
	CreateNetwork(ctx context.Context, cfg NetworkConfig) (id.NetworkID, error)
	RemoveNetwork(ctx context.Context, nid id.NetworkID) error
	Connect(ctx context.Context, cid id.ContainerID, nid id.NetworkID, aliases []string) error
	Disconnect(ctx context.Context, cid id.ContainerID, nid id.NetworkID) error
	NetworkExists(ctx context.Context, name string) (id.NetworkID, bool, error)
}

// ExecOps runs commands inside a running container.
type ExecOps interface {
	sealed
	Exec(ctx context.Context, cid id.ContainerID, cfg ExecConfig) (ExecResult, error)
}

// LogOps streams container output.
type LogOps interface {
	sealed
	Logs(ctx context.Context, cid id.ContainerID, opts LogOptions) (<-chan LogEntry, io.Closer, error)
}

// RuntimeInfo reports the daemon's own identity and reachability.
type RuntimeInfo interface {
	sealed
	Info(ctx context.Context) (Info, error)
	Ping(ctx context.Context) error
}

// Client is the full capability set one concrete implementation satisfies.
type Client interface {
	ImageOps
	ContainerOps
	NetworkOps
	ExecOps
	LogOps
	RuntimeInfo
}
