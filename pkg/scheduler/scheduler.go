// Copyright 2025 Certen Protocol
//
// Cooperative task scheduler, generalized from pkg/batch.Scheduler's
// ticker+stopCh run loop: instead of one timer driving a single batch
// cadence, this scheduler runs an arbitrary set of named Tasks (indexers,
// pipeline drains, lander confirmation polls), each on its own interval,
// with a bounded per-destination concurrency limit and a single shutdown
// broadcast that every task's context observes at once.

package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/certen/interchain-agent/pkg/agentd/logging"
)

// State mirrors pkg/batch.SchedulerState's stopped/running/paused cycle.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// TaskFunc is one unit of scheduled work. It should return promptly when
// ctx is canceled; the scheduler does not force-kill a slow task.
type TaskFunc func(ctx context.Context) error

// Task is one named, interval-driven unit of scheduled work, optionally
// scoped to a destination for per-destination concurrency accounting.
type Task struct {
	Name        string
	Destination string // empty if not destination-scoped
	Interval    time.Duration
	Run         TaskFunc
}

// Scheduler runs a fixed set of Tasks concurrently, each on its own
// ticker, capping how many tasks may run at once for a given destination
// so one slow chain never starves the others' fair share of in-flight
// work.
type Scheduler struct {
	mu    sync.RWMutex
	tasks []Task

	maxPerDestination int
	inFlight          map[string]int

	state  State
	stopCh chan struct{}
	doneCh chan struct{}

	shutdownGrace time.Duration
	logger        *log.Logger
}

// Config tunes the scheduler's concurrency and shutdown behavior.
type Config struct {
	MaxPerDestination int
	ShutdownGrace     time.Duration
}

// DefaultConfig caps four concurrent tasks per destination and allows 30s
// for in-flight tasks to wind down on shutdown.
func DefaultConfig() Config {
	return Config{MaxPerDestination: 4, ShutdownGrace: 30 * time.Second}
}

// New constructs a Scheduler for the given tasks.
func New(cfg Config, tasks []Task) *Scheduler {
	if cfg.MaxPerDestination <= 0 {
		cfg.MaxPerDestination = DefaultConfig().MaxPerDestination
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultConfig().ShutdownGrace
	}
	return &Scheduler{
		tasks:             tasks,
		maxPerDestination: cfg.MaxPerDestination,
		inFlight:          make(map[string]int),
		state:             StateStopped,
		shutdownGrace:     cfg.ShutdownGrace,
		logger:            logging.New("scheduler"),
	}
}

// Start launches one goroutine per task, each driven by its own ticker,
// until ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.state = StateRunning
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.runTask(ctx, t)
		}(t)
	}

	go func() {
		wg.Wait()
		close(s.doneCh)
	}()

	s.logger.Printf("started %d tasks", len(s.tasks))
	return nil
}

// Stop broadcasts a shutdown signal, then waits up to ShutdownGrace for
// every task goroutine to return before giving up on a graceful exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	s.state = StateStopped
	s.mu.Unlock()

	select {
	case <-s.doneCh:
		s.logger.Println("all tasks stopped")
		return nil
	case <-time.After(s.shutdownGrace):
		return fmt.Errorf("scheduler: shutdown grace period (%s) elapsed with tasks still running", s.shutdownGrace)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			paused := s.state == StatePaused
			s.mu.RUnlock()
			if paused {
				continue
			}
			if !s.acquire(t.Destination) {
				continue // destination at concurrency cap this tick, skip and retry next tick
			}
			if err := t.Run(ctx); err != nil {
				s.logger.Printf("task %s failed: %v", t.Name, err)
			}
			s.release(t.Destination)
		}
	}
}

func (s *Scheduler) acquire(destination string) bool {
	if destination == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[destination] >= s.maxPerDestination {
		return false
	}
	s.inFlight[destination]++
	return true
}

func (s *Scheduler) release(destination string) {
	if destination == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[destination]--
}

// Pause and Resume mirror pkg/batch.Scheduler's pause/resume pair.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
	}
}

// State reports the scheduler's current run state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
