package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/gateway"
	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/images"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/cryptox"
	"github.com/dmitrijs2005/journalsync/internal/logging"
)

// Repository is the storage surface the content lifecycle drives. The
// lifecycle never knows whether sync is behind it.
type Repository interface {
	Get(ctx context.Context, date string) (*models.Note, error)
	Save(ctx context.Context, date, content string, habits []models.Habit) error
	Delete(ctx context.Context, date string) error
	GetAllDates(ctx context.Context) ([]string, error)
}

// SyncCapableRepository extends Repository with remote synchronization:
// the sync cycle, remote refresh, and the cached remote-date index.
type SyncCapableRepository interface {
	Repository

	// Sync runs one full cycle: push pending deletes, pending notes and
	// pending images, then pull remote changes past the cursor.
	Sync(ctx context.Context) (models.SyncStatus, error)

	// GetSyncStatus returns the status of the last/current cycle.
	GetSyncStatus() models.SyncStatus

	// OnSyncStatusChange subscribes to status transitions. The returned
	// func unsubscribes.
	OnSyncStatusChange(cb func(models.SyncStatus)) func()

	// GetAllDatesForYear lists locally stored dates within a year.
	GetAllDatesForYear(ctx context.Context, year int) ([]string, error)

	// GetAllLocalDates lists every locally stored date.
	GetAllLocalDates(ctx context.Context) ([]string, error)

	// RefreshNote fetches the remote copy of one date and applies it
	// locally unless a pending local mutation would be clobbered.
	RefreshNote(ctx context.Context, date string) (*models.Note, error)

	// HasPendingOp reports whether a date has an unsynced local mutation.
	HasPendingOp(ctx context.Context, date string) (bool, error)

	// RefreshDates refreshes the cached remote-date index for a year
	// (0 refreshes everything).
	RefreshDates(ctx context.Context, year int) error

	// HasRemoteDateCached consults the cached remote-date index without
	// touching the network.
	HasRemoteDateCached(ctx context.Context, date string) (bool, error)
}

// LocalRepository implements Repository over the encrypted SQLite store.
// Every Save re-encrypts under the active key; every Get decrypts with
// whichever retained key sealed the envelope.
type LocalRepository struct {
	crypto *cryptox.Service
	notes  notes.Repository
	images images.Repository
	log    logging.Logger
}

func NewLocalRepository(crypto *cryptox.Service, notesRepo notes.Repository, imagesRepo images.Repository, log logging.Logger) *LocalRepository {
	if log == nil {
		log = logging.NewNop()
	}
	return &LocalRepository{crypto: crypto, notes: notesRepo, images: imagesRepo, log: log}
}

// Get returns the decrypted note for a date, nil when the date has no note
// or its key is no longer retained. A missing key is reported as absence,
// not an error: the UI shows an empty day, and the envelope stays intact
// for when the key comes back.
func (r *LocalRepository) Get(ctx context.Context, date string) (*models.Note, error) {
	if !common.ValidDate(date) {
		return nil, common.ErrInvalidDate
	}
	row, err := r.notes.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	note, err := r.crypto.DecryptNote(&row.Record)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt note for %s: %w", date, err)
	}
	if note == nil {
		r.log.Warn(ctx, "note key not retained, treating as absent", "date", date, "key_id", row.Record.KeyID)
		return nil, nil
	}
	return note, nil
}

// Save encrypts and upserts, preserving the server identity of an existing
// row so the next push carries the right expected revision.
func (r *LocalRepository) Save(ctx context.Context, date, content string, habits []models.Habit) error {
	if !common.ValidDate(date) {
		return common.ErrInvalidDate
	}
	rec, err := r.crypto.EncryptNote(date, content, habits)
	if err != nil {
		return fmt.Errorf("failed to encrypt note for %s: %w", date, err)
	}
	if rec == nil {
		return common.ErrKeyMissing
	}

	row := &notes.Row{Record: *rec, Pending: true}
	existing, err := r.notes.Get(ctx, date)
	if err != nil {
		return err
	}
	if existing != nil {
		row.RemoteID = existing.RemoteID
		row.Revision = existing.Revision
	}
	return r.notes.Upsert(ctx, row)
}

// Delete removes the note physically and records the tombstone to push.
// Recreating the date later is safe: the cycle pushes deletes before
// notes, so the remote copy is gone before the fresh envelope arrives.
func (r *LocalRepository) Delete(ctx context.Context, date string) error {
	if !common.ValidDate(date) {
		return common.ErrInvalidDate
	}
	row, err := r.notes.Get(ctx, date)
	if err != nil {
		return err
	}
	remoteID := ""
	if row != nil {
		remoteID = row.RemoteID
		if err := r.notes.Delete(ctx, date); err != nil {
			return err
		}
	}
	return r.notes.AddPendingDelete(ctx, date, remoteID)
}

func (r *LocalRepository) GetAllDates(ctx context.Context) ([]string, error) {
	return r.notes.GetAllDates(ctx)
}

// AddImage encrypts a blob under the active key and stores it pending
// upload. Returns the stored record (its ID names the blob everywhere).
func (r *LocalRepository) AddImage(ctx context.Context, date string, data []byte) (*models.ImageRecord, error) {
	rec, err := r.crypto.EncryptImage(date, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt image: %w", err)
	}
	if rec == nil {
		return nil, common.ErrKeyMissing
	}
	if err := r.images.Put(ctx, rec, true); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetImage decrypts a stored image blob by ID.
func (r *LocalRepository) GetImage(ctx context.Context, id string) ([]byte, error) {
	rec, err := r.images.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, common.ErrNotFound
	}
	return r.crypto.DecryptImage(rec)
}

// SyncRepository implements SyncCapableRepository: LocalRepository plus the
// remote gateway, the pull cursor, and the remote-date cache.
type SyncRepository struct {
	*LocalRepository
	gw        gateway.Client
	syncState syncstate.Repository
	log       logging.Logger

	mu      sync.Mutex
	status  models.SyncStatus
	subs    map[int]func(models.SyncStatus)
	nextSub int
}

func NewSyncRepository(local *LocalRepository, gw gateway.Client, state syncstate.Repository, log logging.Logger) *SyncRepository {
	if log == nil {
		log = logging.NewNop()
	}
	return &SyncRepository{
		LocalRepository: local,
		gw:              gw,
		syncState:       state,
		log:             log,
		status:          models.SyncStatusIdle,
		subs:            map[int]func(models.SyncStatus){},
	}
}

func (r *SyncRepository) GetSyncStatus() models.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *SyncRepository) OnSyncStatusChange(cb func(models.SyncStatus)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = cb
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *SyncRepository) setStatus(s models.SyncStatus) {
	r.mu.Lock()
	if r.status == s {
		r.mu.Unlock()
		return
	}
	r.status = s
	cbs := make([]func(models.SyncStatus), 0, len(r.subs))
	for _, cb := range r.subs {
		cbs = append(cbs, cb)
	}
	r.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

// Sync runs one cycle. The order is fixed: deletes, then notes, then
// images, then the incremental pull. A failure anywhere aborts the cycle;
// everything already confirmed stays confirmed, the rest stays pending.
func (r *SyncRepository) Sync(ctx context.Context) (models.SyncStatus, error) {
	r.setStatus(models.SyncStatusSyncing)

	err := r.runCycle(ctx)
	status := models.SyncStatusSynced
	switch {
	case errors.Is(err, common.ErrOffline):
		status = models.SyncStatusOffline
	case err != nil:
		status = models.SyncStatusError
	}
	r.setStatus(status)
	return status, err
}

func (r *SyncRepository) runCycle(ctx context.Context) error {
	if err := r.pushDeletes(ctx); err != nil {
		return err
	}
	if err := r.pushNotes(ctx); err != nil {
		return err
	}
	if err := r.pushImages(ctx); err != nil {
		return err
	}
	return r.pull(ctx)
}

func (r *SyncRepository) pushDeletes(ctx context.Context) error {
	dels, err := r.notes.GetPendingDeletes(ctx)
	if err != nil {
		return err
	}
	for _, d := range dels {
		if err := r.gw.DeleteNote(ctx, d.RemoteID, d.Date); err != nil {
			return fmt.Errorf("failed to push delete for %s: %w", d.Date, err)
		}
		if err := r.notes.ClearPendingDelete(ctx, d.Date); err != nil {
			return err
		}
		if err := r.syncState.RemoveRemoteDate(ctx, d.Date); err != nil {
			return err
		}
	}
	return nil
}

func (r *SyncRepository) pushNotes(ctx context.Context) error {
	rows, err := r.notes.GetPending(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		payload := &models.RemoteNotePayload{
			ID:               row.RemoteID,
			Date:             row.Record.Date,
			KeyID:            row.Record.KeyID,
			Ciphertext:       row.Record.Ciphertext,
			Nonce:            row.Record.Nonce,
			Version:          row.Record.Version,
			UpdatedAt:        row.Record.UpdatedAt.UTC().Format(time.RFC3339Nano),
			ExpectedRevision: row.Revision,
		}
		remote, err := r.gw.PushNote(ctx, payload)
		if err != nil {
			return fmt.Errorf("failed to push note for %s: %w", row.Record.Date, err)
		}
		if err := r.notes.MarkSynced(ctx, row.Record.Date, remote.ID, remote.Revision); err != nil {
			return err
		}
		if err := r.syncState.AddRemoteDate(ctx, row.Record.Date); err != nil {
			return err
		}
	}
	return nil
}

func (r *SyncRepository) pushImages(ctx context.Context) error {
	if r.images == nil {
		return nil
	}
	pending, err := r.images.GetPending(ctx)
	if err != nil {
		return err
	}
	for _, img := range pending {
		uploadURL, err := r.gw.PresignImagePut(ctx, img.ID)
		if err != nil {
			return fmt.Errorf("failed to presign image %s: %w", img.ID, err)
		}
		// blob layout on the wire: nonce first, then ciphertext
		blob := make([]byte, 0, len(img.Nonce)+len(img.Ciphertext))
		blob = append(blob, img.Nonce...)
		blob = append(blob, img.Ciphertext...)
		if err := r.gw.UploadImage(ctx, uploadURL, blob); err != nil {
			return fmt.Errorf("failed to upload image %s: %w", img.ID, err)
		}
		if err := r.images.MarkSynced(ctx, img.ID); err != nil {
			return err
		}
	}
	return nil
}

// pull applies remote changes past the cursor. Dates with a pending local
// mutation are skipped: the local edit wins until it is pushed, at which
// point the server decides via revisions. The cursor is persisted only
// after the whole batch is applied, so an interrupted pull replays.
func (r *SyncRepository) pull(ctx context.Context) error {
	cursor, err := r.syncState.GetCursor(ctx)
	if err != nil {
		return err
	}
	remotes, next, err := r.gw.FetchNotesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("failed to pull changes: %w", err)
	}
	for _, rn := range remotes {
		pending, err := r.notes.HasPending(ctx, rn.Date)
		if err != nil {
			return err
		}
		if pending {
			r.log.Debug(ctx, "skipping remote change over pending local edit", "date", rn.Date)
			continue
		}
		if err := r.applyRemote(ctx, rn); err != nil {
			return err
		}
	}
	if next != "" && next != cursor {
		if err := r.syncState.SetCursor(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

func (r *SyncRepository) applyRemote(ctx context.Context, rn *models.RemoteNote) error {
	if rn.Deleted {
		if err := r.notes.Delete(ctx, rn.Date); err != nil {
			return err
		}
		return r.syncState.RemoveRemoteDate(ctx, rn.Date)
	}
	row := &notes.Row{
		Record:   rn.NoteRecord,
		RemoteID: rn.ID,
		Revision: rn.Revision,
		Pending:  false,
	}
	if err := r.notes.Upsert(ctx, row); err != nil {
		return err
	}
	return r.syncState.AddRemoteDate(ctx, rn.Date)
}

func (r *SyncRepository) GetAllDatesForYear(ctx context.Context, year int) ([]string, error) {
	return r.notes.GetDatesForYear(ctx, year)
}

func (r *SyncRepository) GetAllLocalDates(ctx context.Context) ([]string, error) {
	return r.notes.GetAllDates(ctx)
}

func (r *SyncRepository) HasPendingOp(ctx context.Context, date string) (bool, error) {
	return r.notes.HasPending(ctx, date)
}

// RefreshNote fetches one date from the remote and applies it locally. A
// pending local mutation makes the refresh a read of the local copy
// instead: refresh must never undo what sync has not pushed yet.
func (r *SyncRepository) RefreshNote(ctx context.Context, date string) (*models.Note, error) {
	pending, err := r.notes.HasPending(ctx, date)
	if err != nil {
		return nil, err
	}
	if pending {
		return r.Get(ctx, date)
	}

	rn, err := r.gw.FetchNoteByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if rn == nil || rn.Deleted {
		// remote says the date has nothing; mirror that locally
		if err := r.notes.Delete(ctx, date); err != nil {
			return nil, err
		}
		if err := r.syncState.RemoveRemoteDate(ctx, date); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := r.applyRemote(ctx, rn); err != nil {
		return nil, err
	}
	return r.Get(ctx, date)
}

// RefreshDates rebuilds the cached remote-date index from the server.
func (r *SyncRepository) RefreshDates(ctx context.Context, year int) error {
	dates, err := r.gw.FetchNoteDates(ctx, year)
	if err != nil {
		return fmt.Errorf("failed to fetch remote dates: %w", err)
	}
	if year != 0 {
		return r.syncState.ReplaceRemoteDates(ctx, year, dates)
	}
	// full refresh: replace each year slice present in the response
	byYear := map[int][]string{}
	for _, d := range dates {
		t, err := time.Parse(common.DateFormat, d)
		if err != nil {
			continue
		}
		byYear[t.Year()] = append(byYear[t.Year()], d)
	}
	for y, ds := range byYear {
		if err := r.syncState.ReplaceRemoteDates(ctx, y, ds); err != nil {
			return err
		}
	}
	return nil
}

func (r *SyncRepository) HasRemoteDateCached(ctx context.Context, date string) (bool, error) {
	return r.syncState.HasRemoteDate(ctx, date)
}

var _ SyncCapableRepository = (*SyncRepository)(nil)
