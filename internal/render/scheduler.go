package render

import (
	"sync"
	"time"
)

// DefaultIdleFallback bounds how long a task waits for an idle signal.
const DefaultIdleFallback = 16 * time.Millisecond

// Queue is a manual cooperative scheduler. Tasks run only when drained.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *Queue) Schedule(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// Len is the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// RunNext runs the oldest pending task and reports whether there was one.
func (q *Queue) RunNext() bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.mu.Unlock()

	task()
	return true
}

// Drain runs tasks, including ones they schedule, until none are left. It
// returns how many ran.
func (q *Queue) Drain() int {
	n := 0
	for q.RunNext() {
		n++
	}
	return n
}

// IdleScheduler runs each task after an idle signal or, failing that, after
// a fallback delay, so work resumes within a bounded time even when the host
// never reports idle time.
type IdleScheduler struct {
	idle     <-chan struct{}
	fallback time.Duration
	post     func(func())

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewIdleScheduler posts each task through post once idle fires or fallback
// elapses. A nil idle channel means every task waits for the fallback; a nil
// post runs the task on the waiting goroutine.
func NewIdleScheduler(idle <-chan struct{}, fallback time.Duration, post func(func())) *IdleScheduler {
	if fallback <= 0 {
		fallback = DefaultIdleFallback
	}
	if post == nil {
		post = func(task func()) { task() }
	}
	return &IdleScheduler{idle: idle, fallback: fallback, post: post, done: make(chan struct{})}
}

func (s *IdleScheduler) Schedule(task func()) {
	select {
	case <-s.done:
		return
	default:
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.fallback)
		defer timer.Stop()
		select {
		case <-s.idle:
		case <-timer.C:
		case <-s.done:
			return
		}
		s.post(task)
	}()
}

// Close drops pending tasks and waits for in-flight waits to finish.
func (s *IdleScheduler) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}
