package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/sanitize"
)

// Reconciler runs the checks due when a date finishes loading: offline, an
// empty local day that the remote-date cache says exists elsewhere raises
// the offline-stub signal; online, the remote copy is refreshed in the
// background and applied only when nothing local would be clobbered.
//
// Refreshes are debounced per date so flipping between two days does not
// hammer the server; ForceRefresh bypasses the debounce but never the
// pending/edit guards.
type Reconciler struct {
	repo    SyncCapableRepository
	lc      *Lifecycle
	log     logging.Logger
	onStub  func(date string)
	timeout time.Duration

	mu        sync.Mutex
	online    bool
	refreshed map[string]time.Time
	interval  time.Duration
}

// ReconcilerOptions configures NewReconciler. RefreshInterval is the
// per-date refresh debounce, default 1m. Timeout bounds one refresh,
// default 30s. OnOfflineStub fires when an open empty day is known to
// exist remotely but has not reached this device.
type ReconcilerOptions struct {
	Repo            SyncCapableRepository
	Lifecycle       *Lifecycle
	RefreshInterval time.Duration
	Timeout         time.Duration
	OnOfflineStub   func(date string)
	Logger          logging.Logger
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Reconciler{
		repo:      opts.Repo,
		lc:        opts.Lifecycle,
		log:       log,
		onStub:    opts.OnOfflineStub,
		timeout:   timeout,
		refreshed: map[string]time.Time{},
		interval:  interval,
	}
}

// SetOnline records connectivity. Going online clears the refresh debounce
// so the next opened date fetches fresh state.
func (r *Reconciler) SetOnline(online bool) {
	r.mu.Lock()
	if online && !r.online {
		r.refreshed = map[string]time.Time{}
	}
	r.online = online
	r.mu.Unlock()
}

// CheckDate runs the open-date checks for a date that just settled in the
// lifecycle. The refresh itself happens on a background goroutine.
func (r *Reconciler) CheckDate(ctx context.Context, date string) {
	snap := r.lc.Snapshot()
	if snap.Date != date || (snap.State != StateReady && snap.State != StateError) {
		return
	}

	r.mu.Lock()
	online := r.online
	r.mu.Unlock()

	if !online {
		if sanitize.IsEmpty(snap.Content) {
			cached, err := r.repo.HasRemoteDateCached(ctx, date)
			if err != nil {
				r.log.Warn(ctx, "remote-date cache check failed", "date", date, "err", err)
				return
			}
			if cached && r.onStub != nil {
				// the day exists remotely but is not on this device and we
				// cannot fetch it right now
				r.onStub(date)
			}
		}
		return
	}

	if !r.shouldRefresh(date) {
		return
	}
	go func() {
		if err := r.refresh(date, false); err != nil {
			r.log.Debug(context.Background(), "background refresh failed", "date", date, "err", err)
		}
	}()
}

// ForceRefresh refreshes a date immediately, skipping the debounce.
func (r *Reconciler) ForceRefresh(ctx context.Context, date string) error {
	return r.refresh(date, true)
}

func (r *Reconciler) shouldRefresh(date string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.refreshed[date]
	return !ok || time.Since(last) >= r.interval
}

func (r *Reconciler) refresh(date string, force bool) error {
	if !force && !r.shouldRefresh(date) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	pending, err := r.repo.HasPendingOp(ctx, date)
	if err != nil {
		return err
	}
	if pending {
		// sync owns this date until the local mutation is pushed
		return nil
	}

	note, err := r.repo.RefreshNote(ctx, date)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.refreshed[date] = time.Now()
	r.mu.Unlock()

	// re-check before touching the buffer: the user may have typed or
	// navigated while the request was in flight
	pending, err = r.repo.HasPendingOp(ctx, date)
	if err != nil || pending {
		return err
	}
	r.lc.ApplyRemoteUpdate(date, note)
	return nil
}
