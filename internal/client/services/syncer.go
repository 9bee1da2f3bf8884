package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/logging"
)

// SyncFunc runs one full push/pull cycle and reports its outcome.
type SyncFunc func(ctx context.Context) (models.SyncStatus, error)

// Runner executes sync cycles with at-most-one-in-flight plus one-queued
// semantics: triggers arriving while a cycle is running collapse into a
// single extra run. On error the loop stops without consuming the queued
// run; resuming takes a fresh external trigger.
type Runner struct {
	sync     SyncFunc
	timeout  time.Duration
	log      logging.Logger
	onStart  func()
	onFinish func(status models.SyncStatus, err error)

	mu      sync.Mutex
	running bool
	queued  bool
}

// RunnerOptions configures NewRunner. OnStart/OnFinish feed the phase
// machine (SyncStarted / SyncFinished); Timeout is the per-cycle ceiling
// and defaults to 30s.
type RunnerOptions struct {
	Sync     SyncFunc
	Timeout  time.Duration
	Logger   logging.Logger
	OnStart  func()
	OnFinish func(status models.SyncStatus, err error)
}

func NewRunner(opts RunnerOptions) *Runner {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Runner{
		sync:     opts.Sync,
		timeout:  timeout,
		log:      log,
		onStart:  opts.OnStart,
		onFinish: opts.OnFinish,
	}
}

// Trigger requests a sync cycle. Non-blocking: if a cycle is already in
// flight, at most one extra run is queued no matter how many triggers
// arrive.
func (r *Runner) Trigger(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.queued = true
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.loop(ctx)
}

// Busy reports whether a cycle is currently in flight.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context) {
	for {
		if r.onStart != nil {
			r.onStart()
		}

		cycleCtx, cancel := context.WithTimeout(ctx, r.timeout)
		status, err := r.sync(cycleCtx)
		cancel()

		if r.onFinish != nil {
			r.onFinish(status, err)
		}

		r.mu.Lock()
		if err != nil {
			// stop; drop the queued run rather than auto-retrying
			r.running = false
			r.queued = false
			r.mu.Unlock()
			r.log.Warn(ctx, "sync cycle failed", "err", err, "status", string(status))
			return
		}
		if r.queued {
			r.queued = false
			r.mu.Unlock()
			continue
		}
		r.running = false
		r.mu.Unlock()
		return
	}
}

// PendingChecker is the slice of pending-ops accounting the scheduler
// consults before an idle-triggered sync.
type PendingChecker interface {
	HasPending(ctx context.Context) bool
}

// Scheduler is the trigger source for a Runner: it debounces non-immediate
// intents and gates idle syncs on there being something to send.
type Scheduler struct {
	trigger   func()
	debounce  time.Duration
	idleDelay time.Duration
	pending   PendingChecker
	log       logging.Logger

	mu        sync.Mutex
	debounceT *time.Timer
	idleT     *time.Timer
	closed    bool
}

// SchedulerOptions configures NewScheduler. Debounce defaults to 2s,
// IdleDelay to 4s.
type SchedulerOptions struct {
	Trigger   func()
	Debounce  time.Duration
	IdleDelay time.Duration
	Pending   PendingChecker
	Logger    logging.Logger
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	idleDelay := opts.IdleDelay
	if idleDelay <= 0 {
		idleDelay = 4 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Scheduler{
		trigger:   opts.Trigger,
		debounce:  debounce,
		idleDelay: idleDelay,
		pending:   opts.Pending,
		log:       log,
	}
}

// RequestSync asks for a sync. Immediate intents dispatch right away;
// others are debounced, with rapid requests collapsing into one trigger.
func (s *Scheduler) RequestSync(intent Intent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if intent.Immediate {
		if s.debounceT != nil {
			s.debounceT.Stop()
			s.debounceT = nil
		}
		s.mu.Unlock()
		s.trigger()
		return
	}
	if s.debounceT != nil {
		s.debounceT.Reset(s.debounce)
		s.mu.Unlock()
		return
	}
	s.debounceT = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.debounceT = nil
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.trigger()
		}
	})
	s.mu.Unlock()
}

// RequestIdleSync waits for the idle delay, then triggers a sync only when
// the pending-ops accounting says there is something to send. delay <= 0
// uses the configured default.
func (s *Scheduler) RequestIdleSync(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		delay = s.idleDelay
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.idleT != nil {
		s.idleT.Stop()
	}
	s.idleT = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.idleT = nil
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if s.pending != nil && !s.pending.HasPending(ctx) {
			// nothing to send, skip the network chatter
			return
		}
		s.trigger()
	})
	s.mu.Unlock()
}

// Close cancels any armed timers. Subsequent requests are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.debounceT != nil {
		s.debounceT.Stop()
		s.debounceT = nil
	}
	if s.idleT != nil {
		s.idleT.Stop()
		s.idleT = nil
	}
}
