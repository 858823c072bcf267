// Package workspace applies repository packages to a local directory and
// keeps its sidecar state machine consistent across interruptions.
package workspace

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/updater/metadata"
	"github.com/Ludea/Sparus/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	downloadDir    = "download"
	stagingDir     = "staging"
	stagedFilesDir = "files"
	stagedMetadata = "metadata.json"
	partialDataExt = ".part"
)

// Workspace is a handle on a game directory. Updates on the same handle
// are serialised; waiting callers queue on the lock.
type Workspace struct {
	path   string
	lock   *semaphore.Weighted
	logger *logrus.Entry
}

// Open opens the workspace at path, creating the directory when needed,
// and recovers from an interrupted update: a staged package is committed,
// anything else left in the sidecar scratch space is discarded.
func Open(path string) (*Workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, sparuserrors.IO("resolve workspace", path, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, sparuserrors.IO("create workspace", abs, err)
	}

	w := &Workspace{
		path:   abs,
		lock:   semaphore.NewWeighted(1),
		logger: logging.NewLogger("workspace").WithField("workspace", abs),
	}
	if err := w.recover(); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the absolute workspace directory.
func (w *Workspace) Path() string {
	return w.path
}

// Lock acquires exclusive access to the workspace. The returned function
// releases it.
func (w *Workspace) Lock(ctx context.Context) (func(), error) {
	if err := w.lock.Acquire(ctx, 1); err != nil {
		return nil, sparuserrors.Cancelled(err)
	}
	return func() { w.lock.Release(1) }, nil
}

// State loads the persisted state machine.
func (w *Workspace) State() (*state.File, error) {
	return state.Load(w.path)
}

// Version returns the installed version, if any.
func (w *Workspace) Version() (string, bool) {
	st, err := state.Load(w.path)
	if err != nil {
		return "", false
	}
	return st.Version()
}

func (w *Workspace) sidecar(parts ...string) string {
	return filepath.Join(append([]string{state.Dir(w.path)}, parts...)...)
}

func (w *Workspace) partPath(pkg string) string {
	return w.sidecar(downloadDir, pkg+partialDataExt)
}

func (w *Workspace) stagingPath(pkg string) string {
	return w.sidecar(stagingDir, pkg)
}

func (w *Workspace) target(p string) string {
	return filepath.Join(w.path, filepath.FromSlash(p))
}

func (w *Workspace) recover() error {
	st, err := state.Load(w.path)
	if err != nil {
		return err
	}

	keepStaged, keepPart := "", ""
	if u := st.State.Updating; u != nil {
		keepPart = u.Package
		if u.Staged {
			keepStaged = u.Package
		}
	}

	if keepStaged != "" {
		meta, err := w.loadStaged(keepStaged)
		if err != nil {
			return err
		}
		w.logger.WithField("package", keepStaged).Info("Finishing interrupted package commit")
		if err := w.commit(keepStaged, meta); err != nil {
			return err
		}
		advance(st, meta)
		if err := state.Save(w.path, st); err != nil {
			return err
		}
		keepPart = ""
	}

	if err := w.prune(stagingDir, "", ""); err != nil {
		return err
	}
	return w.prune(downloadDir, keepPart, partialDataExt)
}

// prune removes scratch entries of a sidecar subdirectory, keeping the one
// named keep+ext.
func (w *Workspace) prune(sub, keep, ext string) error {
	dir := w.sidecar(sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sparuserrors.IO("read", dir, err)
	}
	for _, entry := range entries {
		if keep != "" && entry.Name() == keep+ext {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		w.logger.WithField("path", path).Debug("Removing leftover update file")
		if err := os.RemoveAll(path); err != nil {
			return sparuserrors.IO("remove", path, err)
		}
	}
	return nil
}

func (w *Workspace) saveStaged(pkg string, meta *metadata.PackageMetadata) error {
	path := filepath.Join(w.stagingPath(pkg), stagedMetadata)
	data, err := json.Marshal(meta)
	if err != nil {
		return sparuserrors.JSON("package metadata", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return sparuserrors.IO("write", path, err)
	}
	return nil
}

func (w *Workspace) loadStaged(pkg string) (*metadata.PackageMetadata, error) {
	path := filepath.Join(w.stagingPath(pkg), stagedMetadata)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sparuserrors.IO("read staged metadata", path, err)
	}
	var meta metadata.PackageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, sparuserrors.JSON("staged metadata", err).WithDetail("path", path)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// advance moves the committed version forward past meta and closes the
// update when the goal is reached.
func advance(st *state.File, meta *metadata.PackageMetadata) {
	st.State.Stable = &state.Stable{Version: meta.To}
	u := st.State.Updating
	if u == nil {
		return
	}
	u.Step++
	u.Staged = false
	u.DownloadedBytes = 0
	u.Package = ""
	u.From = meta.To
	if metadata.SameVersion(meta.To, u.Goal) || u.Step >= u.Steps {
		st.State.Updating = nil
	}
}

func markBroken(st *state.File, reason string) {
	st.State.Broken = &state.Broken{Reason: reason}
}
