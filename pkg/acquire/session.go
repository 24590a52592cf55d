package acquire

import (
	"context"
	"sync"

	"github.com/heyjunin/HLSgrab/pkg/progress"
)

// Session runs at most one job at a time. Starting a new job cancels the active
// one and waits for it to unwind first.
type Session struct {
	orchestrator *Orchestrator
	notify       func(Notification)

	mu     sync.Mutex
	active *activeJob
}

type activeJob struct {
	ch   *progress.Channel
	done chan struct{}
}

// NewSession creates a Session. notify, when set, is called exactly once per job,
// on the job's goroutine, after its progress channel has finished. notify may call
// Busy or Cancel; it must not call Wait.
func NewSession(o *Orchestrator, notify func(Notification)) *Session {
	return &Session{orchestrator: o, notify: notify}
}

// Start cancels and waits out any active job, then runs rawURL in a new goroutine.
// The returned channel carries the new job's progress; opts configure it.
// The new job is active, and Cancel reaches it, while the previous one unwinds.
func (s *Session) Start(ctx context.Context, rawURL string, opts ...progress.Option) *progress.Channel {
	job := &activeJob{
		ch:   progress.NewChannel(opts...),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	prev := s.active
	s.active = job
	s.mu.Unlock()

	if prev != nil {
		prev.ch.Cancel()
		<-prev.done
	}

	go func() {
		defer close(job.done)
		n := s.orchestrator.run(ctx, rawURL, job.ch)
		if s.notify != nil {
			s.notify(*n)
		}
	}()
	return job.ch
}

// Cancel requests cancellation of the active job, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.ch.Cancel()
	}
}

// Wait blocks until the active job, if any, has finished and been notified.
func (s *Session) Wait() {
	s.mu.Lock()
	job := s.active
	s.mu.Unlock()
	if job != nil {
		<-job.done
	}
}

// Busy reports whether a job is still running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	job := s.active
	s.mu.Unlock()
	if job == nil {
		return false
	}
	select {
	case <-job.done:
		return false
	default:
		return true
	}
}
