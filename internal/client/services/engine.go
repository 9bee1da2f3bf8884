package services

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/journalsync/internal/client/config"
	"github.com/dmitrijs2005/journalsync/internal/client/gateway"
	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/cryptox"
	"github.com/dmitrijs2005/journalsync/internal/logging"
)

// Engine assembles the whole sync core: the repository stack, the content
// lifecycle, reconciliation, the phase machine, the sync runner/scheduler
// and pending-ops accounting. Inputs arrive through its methods; outputs
// flow through the option callbacks. All callbacks may fire from internal
// goroutines.
type Engine struct {
	cfg     *config.Config
	crypto  *cryptox.Service
	repo    *SyncRepository
	lc      *Lifecycle
	rec     *Reconciler
	phase   *PhaseMachine
	runner  *Runner
	sched   *Scheduler
	tracker *Tracker
	log     logging.Logger

	onSnapshot func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	enabled     bool
	online      bool
	checkedDate string
}

// EngineOptions configures NewEngine. Repos, Gateway and Crypto are
// required; Config falls back to defaults when nil.
type EngineOptions struct {
	Repos   *Repositories
	Gateway gateway.Client
	Crypto  *cryptox.Service
	Config  *config.Config
	Logger  logging.Logger

	// OnSnapshot observes every content-lifecycle change.
	OnSnapshot func(Snapshot)

	// OnPhase observes sync phase transitions.
	OnPhase func(PhaseState)

	// OnPending observes changes of the pending-ops summary.
	OnPending func(models.PendingOpsSummary)

	// OnOfflineStub fires when an opened empty day is known to exist
	// remotely but cannot be fetched right now.
	OnOfflineStub func(date string)
}

func NewEngine(opts EngineOptions) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
		cfg.LoadDefaults()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	e := &Engine{
		cfg:        cfg,
		crypto:     opts.Crypto,
		log:        log,
		onSnapshot: opts.OnSnapshot,
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	local := NewLocalRepository(opts.Crypto, opts.Repos.Notes, opts.Repos.Images, log)
	e.repo = NewSyncRepository(local, opts.Gateway, opts.Repos.SyncState, log)

	e.phase = NewPhaseMachine(opts.OnPhase)

	e.tracker = NewTracker(TrackerOptions{
		Notes:    opts.Repos.Notes,
		Images:   opts.Repos.Images,
		Interval: cfg.PendingPollInterval,
		Logger:   log,
		OnChange: opts.OnPending,
	})

	e.runner = NewRunner(RunnerOptions{
		Sync:     e.repo.Sync,
		Timeout:  cfg.RequestTimeout,
		Logger:   log,
		OnStart:  func() { e.phase.Dispatch(SyncStarted{}) },
		OnFinish: e.syncFinished,
	})

	e.sched = NewScheduler(SchedulerOptions{
		Trigger:   e.triggerSync,
		Debounce:  cfg.SyncDebounce,
		IdleDelay: cfg.IdleSyncDelay,
		Pending:   e.tracker,
		Logger:    log,
	})

	e.lc = NewLifecycle(LifecycleOptions{
		Store:    &engineStore{inner: e.repo, afterWrite: e.localMutated},
		Debounce: cfg.SaveDebounce,
		Timeout:  cfg.RequestTimeout,
		Logger:   log,
		OnChange: e.lifecycleChanged,
	})

	e.rec = NewReconciler(ReconcilerOptions{
		Repo:          e.repo,
		Lifecycle:     e.lc,
		Timeout:       cfg.RequestTimeout,
		OnOfflineStub: opts.OnOfflineStub,
		Logger:        log,
	})

	return e
}

// Start launches the background pending-ops poll.
func (e *Engine) Start() {
	go e.tracker.Run(e.ctx)
	if _, err := e.tracker.Recompute(e.ctx); err != nil {
		e.log.Warn(e.ctx, "initial pending-ops recompute failed", "err", err)
	}
}

// engineStore wraps the repository so every successful local mutation
// schedules a (debounced) sync.
type engineStore struct {
	inner      Repository
	afterWrite func()
}

func (s *engineStore) Get(ctx context.Context, date string) (*models.Note, error) {
	return s.inner.Get(ctx, date)
}

func (s *engineStore) Save(ctx context.Context, date, content string, habits []models.Habit) error {
	if err := s.inner.Save(ctx, date, content, habits); err != nil {
		return err
	}
	s.afterWrite()
	return nil
}

func (s *engineStore) Delete(ctx context.Context, date string) error {
	if err := s.inner.Delete(ctx, date); err != nil {
		return err
	}
	s.afterWrite()
	return nil
}

// Unlock derives the envelope key from the user's password, installs it as
// the keyring's sealing key, and flips the engine to enabled — a populated
// keyring is the enablement signal. Returns the login verifier for the
// remote store.
func (e *Engine) Unlock(password, salt []byte, keyID string) []byte {
	verifier := e.crypto.Unlock(password, salt, keyID)
	e.SetEnabled(true)
	return verifier
}

// SetEnabled flips the sync-enabled input (key present, account active).
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	online := e.online
	e.mu.Unlock()
	e.inputsChanged(enabled, online)
}

// SetOnline flips the connectivity input.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	enabled := e.enabled
	e.online = online
	e.mu.Unlock()
	e.rec.SetOnline(online)
	e.inputsChanged(enabled, online)
}

func (e *Engine) inputsChanged(enabled, online bool) {
	e.phase.Dispatch(InputsChanged{Enabled: enabled, Online: online})
	e.drainIntent()
}

// RequestSync records a sync intent. Immediate requests bypass the
// debounce window.
func (e *Engine) RequestSync(immediate bool) {
	e.phase.Dispatch(SyncRequested{Immediate: immediate})
	e.drainIntent()
}

func (e *Engine) localMutated() {
	e.RequestSync(false)
}

// drainIntent hands any recorded intent to the scheduler. Intents recorded
// while the machine was disabled, offline or mid-cycle stay parked until it
// settles. A settled error phase drains too: a fresh trigger after a failed
// cycle re-attempts instead of wedging until an input flap.
func (e *Engine) drainIntent() {
	phase := e.phase.State().Phase
	if phase != PhaseReady && phase != PhaseError {
		return
	}
	if intent := e.phase.TakeIntent(); intent != nil {
		e.sched.RequestSync(*intent)
	}
}

func (e *Engine) triggerSync() {
	st := e.phase.State().Phase
	if st != PhaseReady && st != PhaseError {
		return
	}
	e.runner.Trigger(e.ctx)
}

func (e *Engine) syncFinished(status models.SyncStatus, err error) {
	e.phase.Dispatch(SyncFinished{Status: status})
	if _, rerr := e.tracker.Recompute(e.ctx); rerr != nil {
		e.log.Warn(e.ctx, "pending-ops recompute failed", "err", rerr)
	}

	if status == models.SyncStatusSynced {
		// the pull may have changed the open date; fold it back into the
		// buffer when nothing local is at stake
		snap := e.lc.Snapshot()
		if snap.Date != "" && !snap.HasEdits {
			if note, gerr := e.repo.Get(e.ctx, snap.Date); gerr == nil {
				e.lc.ApplyRemoteUpdate(snap.Date, note)
			}
		}
		e.sched.RequestIdleSync(e.ctx, 0)
	}
	e.drainIntent()
}

func (e *Engine) lifecycleChanged(snap Snapshot) {
	if e.onSnapshot != nil {
		e.onSnapshot(snap)
	}
	if snap.State != StateReady || snap.Date == "" {
		return
	}
	e.mu.Lock()
	first := e.checkedDate != snap.Date
	if first {
		e.checkedDate = snap.Date
	}
	e.mu.Unlock()
	if first {
		go e.rec.CheckDate(e.ctx, snap.Date)
	}
}

// SetDate switches the open date; Edit feeds editor input through to the
// lifecycle.
func (e *Engine) SetDate(ctx context.Context, date string) { e.lc.SetDate(ctx, date) }

func (e *Engine) Edit(content string, habits []models.Habit) { e.lc.Edit(content, habits) }

// Flush persists unsaved edits synchronously (visibility change, app
// teardown).
func (e *Engine) Flush(ctx context.Context) { e.lc.Flush(ctx) }

// Snapshot returns the current content-lifecycle state.
func (e *Engine) Snapshot() Snapshot { return e.lc.Snapshot() }

// Phase returns the current sync phase state.
func (e *Engine) Phase() PhaseState { return e.phase.State() }

// Pending returns the last pending-ops summary.
func (e *Engine) Pending() models.PendingOpsSummary { return e.tracker.Summary() }

// SyncStatus returns the status of the last/current sync cycle.
func (e *Engine) SyncStatus() models.SyncStatus { return e.repo.GetSyncStatus() }

// Repo exposes the sync-capable repository for callers that need direct
// reads (calendar date lists, image blobs).
func (e *Engine) Repo() SyncCapableRepository { return e.repo }

// Close flushes, stops timers and background work.
func (e *Engine) Close(ctx context.Context) {
	e.lc.Close(ctx)
	e.sched.Close()
	e.cancel()
}
