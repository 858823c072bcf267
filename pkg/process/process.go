// Package process holds helpers for inspecting other processes.
package process

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether a process with the given PID exists.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// FindProcess never fails on Unix, even for unknown PIDs.
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes for existence. EPERM still means the process is alive.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
