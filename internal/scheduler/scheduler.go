// Package scheduler invokes a task on a fixed-delay cadence from a single
// goroutine until it is stopped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chr1sbest/tracedeps/internal/logger"
)

// ErrAlreadyStarted is returned by Start on a scheduler that was started or stopped before.
var ErrAlreadyStarted = errors.New("scheduler already started")

// State is the lifecycle state of a Scheduler.
type State int

const (
	StateUnstarted State = iota
	StateIdle
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "UNSTARTED"
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Task is one unit of scheduled work. The scheduler ignores its result.
type Task func(ctx context.Context)

// Scheduler runs a Task after an initial delay and then again each period
// after the previous invocation returned. Invocations never overlap.
type Scheduler struct {
	task         Task
	initialDelay time.Duration
	period       time.Duration
	log          logger.Logger

	mu     sync.Mutex
	state  State
	runs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an unstarted scheduler. period must be positive.
func New(task Task, initialDelay, period time.Duration, log logger.Logger) (*Scheduler, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %v", period)
	}
	if initialDelay < 0 {
		return nil, fmt.Errorf("initial delay must not be negative, got %v", initialDelay)
	}
	return &Scheduler{
		task:         task,
		initialDelay: initialDelay,
		period:       period,
		log:          log,
		done:         make(chan struct{}),
	}, nil
}

// Start arms the timer. Cancelling ctx has the same effect as Stop, except
// that it does not wait.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnstarted {
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, s.state)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateIdle
	go s.loop(ctx)

	s.log.Debug("Scheduler started",
		logger.F("initial_delay", s.initialDelay),
		logger.F("period", s.period),
	)
	return nil
}

// Stop prevents further invocations and waits for an in-flight one to
// return. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateUnstarted {
		s.state = StateStopped
		close(s.done)
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.done
}

// Wait blocks until the scheduler has stopped.
func (s *Scheduler) Wait() {
	<-s.done
}

// Done is closed once the scheduler has stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Runs returns the number of invocations started so far.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateStopped)

	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Scheduler stopped", logger.F("runs", s.Runs()))
			return
		case <-timer.C:
		}
		// Both channels may be ready at once; stopping wins.
		if ctx.Err() != nil {
			s.log.Debug("Scheduler stopped", logger.F("runs", s.Runs()))
			return
		}

		s.mu.Lock()
		s.state = StateRunning
		s.runs++
		s.mu.Unlock()

		// A started invocation is not interrupted by Stop.
		s.invoke(context.WithoutCancel(ctx))

		s.setState(StateIdle)
		timer.Reset(s.period)
	}
}

func (s *Scheduler) invoke(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Scheduled task panicked", logger.F("panic", p))
		}
	}()
	s.task(ctx)
}
