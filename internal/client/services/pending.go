package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/images"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/journalsync/internal/logging"
)

// Tracker is the pending-ops accounting component: it summarizes unsynced
// local mutations by scanning the store's dirty markers, on a fixed poll
// interval plus immediately after every sync completion. There is no
// per-mutation event plumbing on purpose.
type Tracker struct {
	notes    notes.Repository
	images   images.Repository
	interval time.Duration
	log      logging.Logger
	onChange func(models.PendingOpsSummary)

	mu   sync.Mutex
	last models.PendingOpsSummary
}

// TrackerOptions configures NewTracker. Interval defaults to 5s. OnChange,
// when set, fires on every recompute that changed the summary.
type TrackerOptions struct {
	Notes    notes.Repository
	Images   images.Repository
	Interval time.Duration
	Logger   logging.Logger
	OnChange func(models.PendingOpsSummary)
}

func NewTracker(opts TrackerOptions) *Tracker {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Tracker{
		notes:    opts.Notes,
		images:   opts.Images,
		interval: interval,
		log:      log,
		onChange: opts.OnChange,
	}
}

// Recompute scans the dirty markers and returns a fresh summary.
func (t *Tracker) Recompute(ctx context.Context) (models.PendingOpsSummary, error) {
	noteCount, err := t.notes.CountPending(ctx)
	if err != nil {
		return models.PendingOpsSummary{}, err
	}
	imageCount := 0
	if t.images != nil {
		imageCount, err = t.images.CountPending(ctx)
		if err != nil {
			return models.PendingOpsSummary{}, err
		}
	}

	summary := models.PendingOpsSummary{
		Notes:  noteCount,
		Images: imageCount,
		Total:  noteCount + imageCount,
	}

	t.mu.Lock()
	changed := summary != t.last
	t.last = summary
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(summary)
	}
	return summary, nil
}

// Summary returns the last computed summary without touching the store.
func (t *Tracker) Summary() models.PendingOpsSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// HasPending recomputes and reports whether anything awaits sync. Used as
// the idle-sync guard; on store errors it reports false and logs, since a
// skipped idle sync is recoverable and a crashed one is not.
func (t *Tracker) HasPending(ctx context.Context) bool {
	summary, err := t.Recompute(ctx)
	if err != nil {
		t.log.Warn(ctx, "pending-ops recompute failed", "err", err)
		return false
	}
	return summary.HasPending()
}

// Run polls on the configured interval until ctx is cancelled. Call in a
// goroutine.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := t.Recompute(ctx); err != nil {
				t.log.Warn(ctx, "pending-ops recompute failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
