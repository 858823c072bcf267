package spawner

import (
	"context"
	"fmt"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/updater/progress"
	"github.com/Ludea/Sparus/pkg/updater/repository"
	"github.com/Ludea/Sparus/pkg/updater/workspace"
)

// UpdateTask brings a shared workspace to a goal version. Progress goes to
// Emitter as sparus://downloadinfos; the result is sent once on the reply
// channel returned by NewUpdateTask.
type UpdateTask struct {
	Workspace *workspace.Workspace
	Repo      repository.Repository
	// Goal is the target version; empty means the repository's current.
	Goal    string
	Emitter events.Emitter
	// Continue, when set, can stop the update by returning false.
	Continue func(progress.DownloadInfos) bool

	reply chan error
}

// NewUpdateTask creates a task and its one-shot reply channel.
func NewUpdateTask(ws *workspace.Workspace, repo repository.Repository, goal string, emitter events.Emitter) (*UpdateTask, <-chan error) {
	if emitter == nil {
		emitter = events.Discard
	}
	reply := make(chan error, 1)
	return &UpdateTask{
		Workspace: ws,
		Repo:      repo,
		Goal:      goal,
		Emitter:   emitter,
		reply:     reply,
	}, reply
}

// Run performs the update and delivers its result.
func (t *UpdateTask) Run(ctx context.Context) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = sparuserrors.Update(fmt.Sprintf("update task panicked: %v", r))
		}
		t.reply <- err
	}()

	err = t.Workspace.Update(ctx, t.Repo, t.Goal, func(p progress.DownloadInfos) bool {
		t.Emitter.Emit(events.DownloadInfos, p)
		if t.Continue != nil {
			return t.Continue(p)
		}
		return true
	})
}
