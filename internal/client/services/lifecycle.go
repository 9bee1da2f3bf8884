package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/sanitize"
)

// LifecycleState is the per-active-date content state.
type LifecycleState string

const (
	StateIdle    LifecycleState = "idle"
	StateLoading LifecycleState = "loading"
	StateReady   LifecycleState = "ready"
	StateDirty   LifecycleState = "dirty"
	StateSaving  LifecycleState = "saving"
	StateError   LifecycleState = "error"
)

// ContentStore is the slice of the repository the lifecycle drives.
type ContentStore interface {
	Get(ctx context.Context, date string) (*models.Note, error)
	Save(ctx context.Context, date, content string, habits []models.Habit) error
	Delete(ctx context.Context, date string) error
}

// Snapshot is a point-in-time copy of the lifecycle state for consumers.
type Snapshot struct {
	Date     string
	State    LifecycleState
	Content  string
	HasEdits bool
}

// Lifecycle owns the content of one active date at a time: load on date
// switch, edits, debounced persistence, and synchronous flush before any
// context change. Saves for a date are strictly serialized: a save chain
// runs one store call at a time, and edits landing mid-save collapse into
// at most one follow-up pass.
//
// Empty content is never stored: when the debounced buffer reads empty at
// save time *and* a real edit produced it, the save becomes a delete. A
// buffer that merely reads empty without an effective edit (cosmetic
// re-renders, UI resets) never reaches the store, which is what protects a
// note loaded non-empty from a glitch-driven delete. The delete itself is
// further gated on the store having ever held the note non-empty: clearing
// a draft that was never persisted issues no store call at all.
type Lifecycle struct {
	store    ContentStore
	debounce time.Duration
	timeout  time.Duration
	log      logging.Logger
	onChange func(Snapshot)

	mu             sync.Mutex
	gen            int // bumped on every context switch; stale async work re-validates
	date           string
	state          LifecycleState
	content        string
	habits         []models.Habit
	hasEdits       bool
	loadedNonEmpty bool
	timer          *time.Timer
	saving         bool
	saveQueued     bool
	saveDone       chan struct{}
}

// LifecycleOptions configures NewLifecycle. Debounce defaults to 400ms,
// Timeout (per store operation) to 30s.
type LifecycleOptions struct {
	Store    ContentStore
	Debounce time.Duration
	Timeout  time.Duration
	Logger   logging.Logger
	OnChange func(Snapshot)
}

func NewLifecycle(opts LifecycleOptions) *Lifecycle {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 400 * time.Millisecond
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Lifecycle{
		store:    opts.Store,
		debounce: debounce,
		timeout:  timeout,
		log:      log,
		onChange: opts.OnChange,
		state:    StateIdle,
	}
}

// Snapshot returns a copy of the current state.
func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lifecycle) snapshotLocked() Snapshot {
	return Snapshot{Date: l.date, State: l.state, Content: l.content, HasEdits: l.hasEdits}
}

func (l *Lifecycle) notify(s Snapshot) {
	if l.onChange != nil {
		l.onChange(s)
	}
}

// SetDate switches the active date. Any pending save for the previous date
// is flushed synchronously before the new load starts, so a fast
// navigation can never drop an in-flight edit.
func (l *Lifecycle) SetDate(ctx context.Context, date string) {
	l.Flush(ctx)

	l.mu.Lock()
	l.gen++
	gen := l.gen
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.date = date
	l.state = StateLoading
	l.content = ""
	l.habits = nil
	l.hasEdits = false
	l.loadedNonEmpty = false
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)

	go l.load(gen, date)
}

func (l *Lifecycle) load(gen int, date string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	note, err := l.store.Get(ctx, date)

	l.mu.Lock()
	if gen != l.gen {
		// the user already navigated away; drop the result
		l.mu.Unlock()
		return
	}
	if err != nil {
		// loading failed, but the date stays editable: new input must not
		// be blocked by a broken read
		l.log.Warn(ctx, "note load failed", "date", date, "err", err)
		l.state = StateError
		l.content = ""
	} else {
		l.state = StateReady
		if note != nil {
			l.content = note.Content
			l.habits = note.Habits
			l.loadedNonEmpty = !sanitize.IsEmpty(note.Content)
		}
	}
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
}

// Edit records new editor content. Every edit moves the machine to dirty
// and (re)arms the debounce timer, but HasEdits is set only when the
// content actually differs, so cosmetic re-renders never mark the note
// dirty for downstream consumers.
func (l *Lifecycle) Edit(content string, habits []models.Habit) {
	l.mu.Lock()
	if l.state == StateIdle || l.state == StateLoading {
		l.mu.Unlock()
		return
	}
	if content != l.content {
		l.hasEdits = true
	}
	l.content = content
	l.habits = habits
	l.state = StateDirty
	l.rearmTimerLocked(l.gen)
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
}

func (l *Lifecycle) rearmTimerLocked(gen int) {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.debounce, func() {
		l.startSave(gen)
	})
}

// startSave begins (or queues onto) the save chain for the current context.
func (l *Lifecycle) startSave(gen int) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	if l.saving {
		l.saveQueued = true
		l.mu.Unlock()
		return
	}
	l.saving = true
	l.saveDone = make(chan struct{})
	l.mu.Unlock()

	go l.saveLoop(gen)
}

// saveLoop drains the save chain: one store call at a time, re-reading the
// buffer before each pass, until no follow-up is queued.
func (l *Lifecycle) saveLoop(gen int) {
	for {
		l.mu.Lock()
		if gen != l.gen {
			l.finishChainLocked()
			l.mu.Unlock()
			return
		}
		date := l.date
		content := l.content
		habits := l.habits
		hasEdits := l.hasEdits
		stored := l.loadedNonEmpty
		empty := sanitize.IsEmpty(content)
		l.state = StateSaving
		snap := l.snapshotLocked()
		l.mu.Unlock()
		l.notify(snap)

		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		var err error
		switch {
		case !hasEdits:
			// the buffer changed shape but not substance; nothing to persist
		case empty && !stored:
			// the cleared note was never stored non-empty; there is nothing
			// to remove, so skip the store entirely
		case empty:
			// the user really cleared the note: remove it rather than
			// storing an empty payload
			err = l.store.Delete(ctx, date)
		default:
			err = l.store.Save(ctx, date, content, habits)
		}
		cancel()

		l.mu.Lock()
		if gen != l.gen {
			l.finishChainLocked()
			l.mu.Unlock()
			return
		}
		if err != nil {
			// keep the edits; re-arm the debounce so the next cycle retries
			l.log.Warn(context.Background(), "note save failed", "date", date, "err", err)
			l.state = StateReady
			l.rearmTimerLocked(gen)
		} else if l.content == content {
			l.hasEdits = false
			l.state = StateReady
			l.loadedNonEmpty = !empty
		} else {
			// a newer edit raced the save; its own debounce is armed
			l.state = StateDirty
		}

		if l.saveQueued {
			l.saveQueued = false
			snap = l.snapshotLocked()
			l.mu.Unlock()
			l.notify(snap)
			continue
		}
		l.finishChainLocked()
		snap = l.snapshotLocked()
		l.mu.Unlock()
		l.notify(snap)
		return
	}
}

func (l *Lifecycle) finishChainLocked() {
	l.saving = false
	l.saveQueued = false
	if l.saveDone != nil {
		close(l.saveDone)
		l.saveDone = nil
	}
}

// Flush synchronously persists any unsaved edits: the debounce timer is
// cancelled and the save runs inline, or, when a chain is already in
// flight, Flush queues a final pass and waits for the chain to drain.
// Called on date switch, visibility-hidden, and teardown.
func (l *Lifecycle) Flush(ctx context.Context) {
	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.saving {
		if l.hasEdits {
			l.saveQueued = true
		}
		done := l.saveDone
		l.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	if !l.hasEdits {
		l.mu.Unlock()
		return
	}
	gen := l.gen
	l.saving = true
	l.saveDone = make(chan struct{})
	l.mu.Unlock()

	l.saveLoop(gen)
}

// Close flushes and returns the machine to idle.
func (l *Lifecycle) Close(ctx context.Context) {
	l.Flush(ctx)

	l.mu.Lock()
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.date = ""
	l.state = StateIdle
	l.content = ""
	l.habits = nil
	l.hasEdits = false
	l.mu.Unlock()
}

// ApplyRemoteUpdate replaces the buffer with remotely refreshed content.
// It is a no-op unless the date is still active, the machine is settled,
// and there are no local edits: a slow refresh response must never clobber
// something the user typed while the request was outstanding. A nil note
// clears the buffer (the remote copy was tombstoned). Reports whether the
// update was applied.
func (l *Lifecycle) ApplyRemoteUpdate(date string, note *models.Note) bool {
	l.mu.Lock()
	if l.date != date || l.hasEdits || l.saving {
		l.mu.Unlock()
		return false
	}
	if l.state != StateReady && l.state != StateError {
		l.mu.Unlock()
		return false
	}
	if note != nil {
		l.content = note.Content
		l.habits = note.Habits
		l.loadedNonEmpty = !sanitize.IsEmpty(note.Content)
	} else {
		l.content = ""
		l.habits = nil
		l.loadedNonEmpty = false
	}
	l.state = StateReady
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
	return true
}
