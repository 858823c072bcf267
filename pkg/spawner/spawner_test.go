package spawner

import (
	"context"
	"sync"
	"testing"
	"time"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/updater/progress"
	"github.com/Ludea/Sparus/pkg/updater/repository"
	"github.com/Ludea/Sparus/pkg/updater/repotest"
	"github.com/Ludea/Sparus/pkg/updater/workspace"
	"github.com/Ludea/Sparus/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnRunsTasks(t *testing.T) {
	s := New()
	defer s.stop()

	results := make(chan int, 10)
	for i := 0; i < 10; i++ {
		i := i
		s.Spawn(TaskFunc(func(context.Context) { results <- i }))
	}
	seen := map[int]bool{}
	for i := 0; i < 10; i++ {
		select {
		case v := <-results:
			seen[v] = true
		case <-time.After(5 * time.Second):
			t.Fatal("task did not run")
		}
	}
	assert.Len(t, seen, 10)
}

func TestRepliesInCompletionOrder(t *testing.T) {
	s := New()
	defer s.stop()

	release := make(chan struct{})
	order := make(chan string, 2)
	s.Spawn(TaskFunc(func(context.Context) {
		<-release
		order <- "slow"
	}))
	s.Spawn(TaskFunc(func(context.Context) {
		order <- "fast"
		close(release)
	}))

	assert.Equal(t, "fast", <-order)
	assert.Equal(t, "slow", <-order)
}

func TestBlockedTaskDoesNotHoldQueue(t *testing.T) {
	s := New()
	defer s.stop()

	release := make(chan struct{})
	defer close(release)
	s.Spawn(TaskFunc(func(context.Context) { <-release }))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		s.Spawn(TaskFunc(func(context.Context) { wg.Done() }))
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("queued tasks waited for a blocked task")
	}
	assert.Equal(t, 0, s.Pending())
}

func TestPanickingTaskDoesNotKillDispatcher(t *testing.T) {
	s := New()
	defer s.stop()

	s.Spawn(TaskFunc(func(context.Context) { panic("boom") }))
	done := make(chan struct{})
	s.Spawn(TaskFunc(func(context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher stopped after a task panic")
	}
}

func TestSpawnAfterStopPanics(t *testing.T) {
	s := New()
	s.stop()
	assert.Panics(t, func() { s.Spawn(TaskFunc(func(context.Context) {})) })
}

func TestStopCancelsRunningTasks(t *testing.T) {
	s := New()
	cancelled := make(chan struct{})
	started := make(chan struct{})
	s.Spawn(TaskFunc(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started
	s.stop()
	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestUpdateTask(t *testing.T) {
	b := repotest.New(t, t.TempDir())
	b.Version("1.0.0", repotest.Tree{"game": {Content: "binary", Exe: true}})
	b.Complete("1.0.0")
	b.Current("1.0.0")
	repo, err := repository.Open(b.Dir(), repository.Auth{})
	require.NoError(t, err)

	dir := t.TempDir()
	ws, err := workspace.Open(dir)
	require.NoError(t, err)

	bus := events.NewBus(1000)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	s := New()
	defer s.stop()

	var wg sync.WaitGroup
	replies := make([]<-chan error, 2)
	for i := range replies {
		task, reply := NewUpdateTask(ws, repo, "", bus)
		replies[i] = reply
		s.Spawn(task)
	}
	for _, reply := range replies {
		wg.Add(1)
		go func(reply <-chan error) {
			defer wg.Done()
			assert.NoError(t, <-reply)
		}(reply)
	}
	wg.Wait()

	st, err := state.Load(dir)
	require.NoError(t, err)
	v, _ := st.Version()
	assert.Equal(t, "1.0.0", v)

	ev := <-sub
	assert.Equal(t, events.DownloadInfos, ev.Name)
	_, ok := ev.Payload.(progress.DownloadInfos)
	assert.True(t, ok)
}

func TestUpdateTaskCancelled(t *testing.T) {
	b := repotest.New(t, t.TempDir())
	b.Version("1.0.0", repotest.Tree{"game": {Content: "binary", Exe: true}})
	b.Complete("1.0.0")
	b.Current("1.0.0")
	repo, err := repository.Open(b.Dir(), repository.Auth{})
	require.NoError(t, err)
	ws, err := workspace.Open(t.TempDir())
	require.NoError(t, err)

	s := New()
	defer s.stop()

	task, reply := NewUpdateTask(ws, repo, "", nil)
	task.Continue = func(progress.DownloadInfos) bool { return false }
	s.Spawn(task)
	err = <-reply
	assert.True(t, sparuserrors.Is(err, sparuserrors.KindCancelled))
}
