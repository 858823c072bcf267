package daemon

import (
	"net"
	"os"
	"time"
)

// New returns a RemoteClient when a daemon answers on socketPath, and
// otherwise the client built by local.
//
// Callers don't need to know whether the daemon is running: the same API
// works in both modes.
func New(socketPath string, local func() (Client, error)) (Client, error) {
	if _, err := os.Stat(socketPath); err == nil {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return NewRemoteClient(socketPath), nil
		}
	}
	return local()
}
