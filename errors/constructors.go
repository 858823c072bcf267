package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
)

func isPathError(err error) bool {
	var pathErr *fs.PathError
	return stderrors.As(err, &pathErr)
}

// IO creates a local filesystem error for the given path
func IO(op, path string, err error) *SparusError {
	return Wrap(err, KindIO, fmt.Sprintf("%s %s", op, path)).
		WithDetail("path", path)
}

// Update creates an updater state machine error
func Update(message string) *SparusError {
	return New(KindUpdate, message)
}

// Cancelled creates the error returned when an update run is stopped
// before reaching its goal.
func Cancelled(cause error) *SparusError {
	if cause == nil {
		cause = context.Canceled
	}
	return Wrap(cause, KindCancelled, "update cancelled")
}

// Repository creates a remote package repository error
func Repository(op, url string, err error) *SparusError {
	return Wrap(err, KindRepository, fmt.Sprintf("repository %s failed", op)).
		WithDetail("url", url)
}

// HTTPStatus creates an error for a non-success artifact fetch response
func HTTPStatus(url string, status int) *SparusError {
	return New(KindHTTP, fmt.Sprintf("GET %s returned status %d", url, status)).
		WithDetail("url", url).
		WithDetail("status", status)
}

// HTTP creates a transport error for an artifact fetch
func HTTP(url string, err error) *SparusError {
	return Wrap(err, KindHTTP, fmt.Sprintf("GET %s failed", url)).
		WithDetail("url", url)
}

// Status creates an error for a non-OK control-plane status
func Status(err error) *SparusError {
	return Wrap(err, KindStatus, "control plane returned an error")
}

// Wasm creates a plugin sandbox error for the given stage
// (compile, link, trap, type).
func Wasm(stage, plugin string, err error) *SparusError {
	return Wrap(err, KindWasm, fmt.Sprintf("plugin %s: %s failed", plugin, stage)).
		WithDetail("stage", stage).
		WithDetail("plugin", plugin)
}

// PluginNotFound creates an error for a missing plugin export or artifact
func PluginNotFound(plugin, function string) *SparusError {
	msg := fmt.Sprintf("plugin %s not found", plugin)
	if function != "" {
		msg = fmt.Sprintf("plugin %s has no export %q", plugin, function)
	}
	return New(KindPluginMissing, msg).
		WithDetail("plugin", plugin)
}

// JSON creates a malformed document error
func JSON(what string, err error) *SparusError {
	return Wrap(err, KindJSON, fmt.Sprintf("malformed %s", what))
}

// Semver creates an unparsable version error
func Semver(version string, err error) *SparusError {
	return Wrap(err, KindSemver, fmt.Sprintf("invalid version %q", version)).
		WithDetail("version", version)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *SparusError {
	return New(KindConfig, fmt.Sprintf("invalid configuration: %s", reason))
}

// GameNotInstalled creates a game discovery error
func GameNotInstalled(message string) *SparusError {
	return New(KindGameNotInstalled, message)
}
