// Package spawner hands update tasks to a single dispatcher goroutine.
// The queue is the only serialisation point: callers enqueue without
// blocking, the dispatcher starts each task on its own goroutine in FIFO
// order, and callers wait on the reply channel carried by each task.
// Tasks run concurrently; updates of the same workspace are serialised by
// the workspace lock, not by the spawner.
package spawner

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ludea/Sparus/logging"
	"github.com/sirupsen/logrus"
)

// Task is a unit of work posted to the spawner. Run must deliver its own
// result, typically on a channel owned by the task.
type Task interface {
	Run(ctx context.Context)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context)

// Run calls f.
func (f TaskFunc) Run(ctx context.Context) { f(ctx) }

// LocalSpawner owns the dispatcher. The queue is unbounded so Spawn never
// waits for the worker.
type LocalSpawner struct {
	mu     sync.Mutex
	wake   *sync.Cond
	queue  []Task
	dead   bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *logrus.Entry
}

// New starts the dispatcher. It runs for the process lifetime.
func New() *LocalSpawner {
	ctx, cancel := context.WithCancel(context.Background())
	s := &LocalSpawner{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logging.NewLogger("spawner"),
	}
	s.wake = sync.NewCond(&s.mu)
	go s.dispatch()
	return s
}

// Spawn enqueues a task. It panics if the dispatcher is gone, since queued
// work could then never drain.
func (s *LocalSpawner) Spawn(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		panic("spawner: dispatcher has shut down")
	}
	s.queue = append(s.queue, task)
	s.wake.Signal()
}

// Pending returns the number of tasks not yet dispatched.
func (s *LocalSpawner) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *LocalSpawner) dispatch() {
	defer func() {
		s.mu.Lock()
		s.dead = true
		s.mu.Unlock()
		close(s.done)
	}()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.dead {
			s.wake.Wait()
		}
		if s.dead {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		go s.run(task)
	}
}

func (s *LocalSpawner) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", fmt.Sprint(r)).Error("Task panicked")
		}
	}()
	task.Run(s.ctx)
}

// stop shuts the dispatcher down and cancels running tasks.
func (s *LocalSpawner) stop() {
	s.mu.Lock()
	s.dead = true
	s.wake.Broadcast()
	s.mu.Unlock()
	s.cancel()
	<-s.done
}
