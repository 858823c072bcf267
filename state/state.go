package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	sparuserrors "github.com/Ludea/Sparus/errors"
)

// DirName is the sidecar directory kept inside every workspace.
const DirName = ".update"

// Stable names the version the workspace content matches.
type Stable struct {
	Version string `json:"version"`
}

// Updating records an in-flight update. Step counts committed packages of
// the current path; Package is the one being downloaded or applied.
type Updating struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Goal            string `json:"goal"`
	Step            int    `json:"step"`
	Steps           int    `json:"steps"`
	Package         string `json:"package"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	Staged          bool   `json:"staged"`
}

// Broken marks a workspace that failed verification and needs repair.
type Broken struct {
	Reason string `json:"reason"`
}

// Workspace is the workspace state machine as persisted.
type Workspace struct {
	Stable   *Stable   `json:"stable,omitempty"`
	Updating *Updating `json:"updating,omitempty"`
	Broken   *Broken   `json:"broken,omitempty"`
}

// File is the document stored at <workspace>/.update/state.json.
type File struct {
	State Workspace `json:"state"`
}

// Status is a coarse view of the state machine.
type Status string

const (
	StatusNew      Status = "new"
	StatusClean    Status = "clean"
	StatusUpdating Status = "updating"
	StatusBroken   Status = "broken"
)

// marshalIndent is replaced in tests.
var marshalIndent = json.MarshalIndent

// Dir returns the sidecar directory of a workspace.
func Dir(workspace string) string {
	return filepath.Join(workspace, DirName)
}

// FilePath returns the path of the state file of a workspace.
func FilePath(workspace string) string {
	return filepath.Join(Dir(workspace), "state.json")
}

// Load reads the state file of a workspace.
// Returns an empty state if the file doesn't exist.
func Load(workspace string) (*File, error) {
	path := FilePath(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, sparuserrors.IO("read state file", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, sparuserrors.JSON("state file", err).WithDetail("path", path)
	}
	return &f, nil
}

// Save writes the state file atomically.
func Save(workspace string, f *File) error {
	dir := Dir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sparuserrors.IO("create state directory", dir, err)
	}

	data, err := marshalIndent(f, "", "  ")
	if err != nil {
		return sparuserrors.JSON("state file", err)
	}

	path := FilePath(workspace)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sparuserrors.IO("write state file", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return sparuserrors.IO("replace state file", path, err)
	}
	return nil
}

// Version returns the stable version, if any.
func (f *File) Version() (string, bool) {
	if f == nil || f.State.Stable == nil || f.State.Stable.Version == "" {
		return "", false
	}
	return f.State.Stable.Version, true
}

// Status reports where the workspace sits in the state machine.
func (f *File) Status() Status {
	switch {
	case f.State.Broken != nil:
		return StatusBroken
	case f.State.Updating != nil:
		return StatusUpdating
	case f.State.Stable != nil:
		return StatusClean
	default:
		return StatusNew
	}
}
