package workspace

import (
	"context"
	"fmt"
	"os"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/profiling"
	"github.com/Ludea/Sparus/pkg/updater/metadata"
	"github.com/Ludea/Sparus/pkg/updater/progress"
	"github.com/Ludea/Sparus/pkg/updater/repository"
	"github.com/Ludea/Sparus/state"
	"github.com/sirupsen/logrus"
)

// ProgressFunc observes snapshots; returning false cancels the update.
type ProgressFunc func(progress.DownloadInfos) bool

// run carries the per-update state shared by download and apply.
type run struct {
	ws      *Workspace
	ctx     context.Context
	repo    repository.Repository
	tracker *progress.Tracker
	observe ProgressFunc
	st      *state.File
	logger  *logrus.Entry
}

// emit publishes a snapshot and reports cancellation.
func (r *run) emit() error {
	if err := r.ctx.Err(); err != nil {
		return sparuserrors.Cancelled(err)
	}
	if !r.observe(r.tracker.Snapshot()) {
		return sparuserrors.Cancelled(nil)
	}
	return nil
}

func (r *run) save() error {
	return state.Save(r.ws.path, r.st)
}

// Update brings the workspace to goal, or to the repository's current
// version when goal is empty. It holds the workspace lock for the whole
// run, so concurrent calls queue. Packages are committed one at a time:
// an error or cancellation leaves the workspace at the last committed
// package and a later Update resumes from there.
func (w *Workspace) Update(ctx context.Context, repo repository.Repository, goal string, observe ProgressFunc) error {
	if observe == nil {
		observe = func(progress.DownloadInfos) bool { return true }
	}
	unlock, err := w.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := state.Load(w.path)
	if err != nil {
		return err
	}
	if st.State.Broken != nil {
		return sparuserrors.Update(fmt.Sprintf("workspace needs repair: %s", st.State.Broken.Reason)).
			WithDetail("workspace", w.path)
	}

	if goal == "" {
		current, err := repo.Current(ctx)
		if err != nil {
			return err
		}
		goal = current.Version
	}
	if _, err := metadata.ParseVersion(goal); err != nil {
		return err
	}

	from, _ := st.Version()
	logger := w.logger.WithFields(logrus.Fields{"from": from, "goal": goal, "repository": repo.URL()})

	if from != "" && metadata.SameVersion(from, goal) {
		if st.State.Updating != nil {
			st.State.Updating = nil
			if err := state.Save(w.path, st); err != nil {
				return err
			}
		}
		logger.Debug("Workspace already at goal")
		observe(progress.NewTracker(0, nil).Snapshot())
		return nil
	}

	index, err := repo.Packages(ctx)
	if err != nil {
		return err
	}
	chain, err := metadata.FindPath(index.Packages, from, goal)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker(len(chain), nil)
	metas := make([]*metadata.PackageMetadata, len(chain))
	for i, ref := range chain {
		meta, err := repo.PackageMetadata(ctx, ref.Name())
		if err != nil {
			return err
		}
		if err := meta.Validate(); err != nil {
			return err
		}
		metas[i] = meta
		tracker.AddPackage(meta)
	}

	r := &run{ws: w, ctx: ctx, repo: repo, tracker: tracker, observe: observe, st: st, logger: logger}
	logger.WithField("packages", len(chain)).Info("Starting workspace update")
	if err := r.emit(); err != nil {
		return err
	}

	for i, ref := range chain {
		name := ref.Name()
		meta := metas[i]
		tracker.SetPackage(i)

		prev := st.State.Updating
		st.State.Updating = &state.Updating{
			From:    from,
			To:      meta.To,
			Goal:    goal,
			Step:    i,
			Steps:   len(chain),
			Package: name,
		}
		if prev != nil && prev.Package == name {
			st.State.Updating.DownloadedBytes = prev.DownloadedBytes
		}
		if err := r.save(); err != nil {
			return err
		}

		plog := logger.WithFields(logrus.Fields{"package": name, "step": i + 1, "steps": len(chain)})
		pspan := profiling.Start("package " + name)
		plog.Info("Downloading package")
		span := profiling.Start("download")
		err := r.download(name, meta)
		span.Stop()
		if err != nil {
			return r.abort(name, err)
		}
		plog.Info("Applying package")
		span = profiling.Start("stage")
		err = r.stage(name, meta)
		span.Stop()
		if err != nil {
			return r.abort(name, err)
		}

		st.State.Updating.Staged = true
		if err := r.save(); err != nil {
			return err
		}
		span = profiling.Start("commit")
		err = w.commit(name, meta)
		span.Stop()
		if err != nil {
			return err
		}
		advance(st, meta)
		if err := r.save(); err != nil {
			return err
		}
		from = meta.To
		pspan.Stop()
		plog.WithField("version", meta.To).Info("Package committed")

		if i < len(chain)-1 {
			tracker.SetPackage(i + 1)
			if err := r.emit(); err != nil {
				return err
			}
		}
	}

	st.State.Updating = nil
	if err := r.save(); err != nil {
		return err
	}
	tracker.Finish()
	observe(tracker.Snapshot())
	logger.Info("Workspace update complete")
	return nil
}

// abort discards the staging area of an uncommitted package. Downloaded
// data is kept so a later run can resume.
func (r *run) abort(pkg string, cause error) error {
	staging := r.ws.stagingPath(pkg)
	if err := os.RemoveAll(staging); err != nil {
		r.logger.WithError(err).Warn("Failed to remove staging directory")
	}
	if err := r.save(); err != nil {
		r.logger.WithError(err).Warn("Failed to save update state")
	}
	if sparuserrors.Is(cause, sparuserrors.KindCancelled) {
		r.logger.WithField("package", pkg).Info("Workspace update cancelled")
	}
	return cause
}
