// Package daemon provides a client for the shell API of `sparus serve`.
// It implements a transparent fallback pattern: if the daemon is running,
// commands go over its socket; if not, they run in-process.
package daemon

import (
	"context"

	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
)

// Client defines the interface for invoking launcher operations.
// Both RemoteClient (socket) and LocalClient (in-process) implement it.
type Client interface {
	// Invoke runs the named operation and decodes its JSON result into
	// result, which may be nil.
	Invoke(ctx context.Context, command string, params launcher.Params, result interface{}) error

	// StreamEvents subscribes to launcher notifications. The channel is
	// closed when ctx ends or the connection is lost.
	StreamEvents(ctx context.Context) (<-chan events.Event, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}
