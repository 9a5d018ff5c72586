package game

import (
	"sync"
	"time"
)

// Scheduler runs deferred tasks for the scripted opponent.
type Scheduler interface {
	Schedule(delay time.Duration, task func())
}

// TimerScheduler runs every task on its own timer goroutine.
type TimerScheduler struct{}

// Schedule runs task once delay has elapsed.
func (TimerScheduler) Schedule(delay time.Duration, task func()) {
	time.AfterFunc(delay, task)
}

type scheduledTask struct {
	delay time.Duration
	run   func()
}

// ManualScheduler queues tasks until the caller runs them. Delays are
// recorded but never waited for.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

// NewManualScheduler creates an empty queue.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule queues task.
func (s *ManualScheduler) Schedule(delay time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduledTask{delay: delay, run: task})
}

// Pending returns the number of queued tasks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunNext runs the oldest queued task, reporting whether there was one.
func (s *ManualScheduler) RunNext() bool {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.mu.Unlock()

	task.run()
	return true
}

// RunAll runs tasks, including ones queued while running, until the queue is
// empty or limit tasks ran. It returns the number of tasks run.
func (s *ManualScheduler) RunAll(limit int) int {
	ran := 0
	for ran < limit && s.RunNext() {
		ran++
	}
	return ran
}

// Drop discards every queued task without running it.
func (s *ManualScheduler) Drop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	s.tasks = nil
	return n
}
