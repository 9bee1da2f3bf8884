package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/images"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/cryptox"

	_ "modernc.org/sqlite"
)

func setupServiceDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE notes (
  date TEXT PRIMARY KEY,
  version INTEGER NOT NULL,
  key_id TEXT NOT NULL,
  ciphertext BLOB NOT NULL,
  nonce BLOB NOT NULL,
  updated_at TEXT NOT NULL,
  remote_id TEXT NOT NULL DEFAULT '',
  revision INTEGER NOT NULL DEFAULT 0,
  pending INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE pending_deletes (
  date TEXT PRIMARY KEY,
  remote_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE images (
  id TEXT PRIMARY KEY,
  date TEXT NOT NULL,
  key_id TEXT NOT NULL,
  ciphertext BLOB NOT NULL,
  nonce BLOB NOT NULL,
  sha256 TEXT NOT NULL,
  size INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  pending INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE sync_state (
  id TEXT PRIMARY KEY,
  cursor TEXT NOT NULL DEFAULT ''
);
CREATE TABLE remote_dates (
  date TEXT PRIMARY KEY
);
`)
	require.NoError(t, err)
	return db
}

func testCrypto() *cryptox.Service {
	kr := cryptox.NewKeyring()
	kr.AddKey("k1", bytes.Repeat([]byte{7}, 32))
	return cryptox.NewService(kr)
}

// fakeGateway is an in-memory remote store speaking the gateway contract.
type fakeGateway struct {
	mu       sync.Mutex
	notes    map[string]*models.RemoteNote // by date
	seq      int64
	log      []*models.RemoteNote // change stream, oldest first
	offline  bool
	pushErr  error // when set, PushNote fails with it
	pushes   int
	uploads  map[string][]byte
	presigns int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{notes: map[string]*models.RemoteNote{}, uploads: map[string][]byte{}}
}

func (g *fakeGateway) Ping(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return common.ErrOffline
	}
	return nil
}

func (g *fakeGateway) FetchNoteByDate(ctx context.Context, date string) (*models.RemoteNote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return nil, common.ErrOffline
	}
	rn, ok := g.notes[date]
	if !ok {
		return nil, nil
	}
	cp := *rn
	return &cp, nil
}

func (g *fakeGateway) FetchNoteDates(ctx context.Context, year int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return nil, common.ErrOffline
	}
	var dates []string
	for d, rn := range g.notes {
		if rn.Deleted {
			continue
		}
		if year != 0 && d[6:] != fmt.Sprintf("%04d", year) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func (g *fakeGateway) FetchNotesSince(ctx context.Context, cursor string) ([]*models.RemoteNote, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return nil, "", common.ErrOffline
	}
	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &start)
	}
	var out []*models.RemoteNote
	for _, rn := range g.log[start:] {
		cp := *rn
		out = append(out, &cp)
	}
	return out, fmt.Sprintf("%d", len(g.log)), nil
}

func (g *fakeGateway) PushNote(ctx context.Context, payload *models.RemoteNotePayload) (*models.RemoteNote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes++
	if g.offline {
		return nil, common.ErrOffline
	}
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	existing := g.notes[payload.Date]
	var current int64
	if existing != nil && !existing.Deleted {
		current = existing.Revision
	}
	if payload.ExpectedRevision != current {
		return nil, common.ErrConflict
	}
	g.seq++
	rn := &models.RemoteNote{
		NoteRecord: models.NoteRecord{
			Version:    payload.Version,
			Date:       payload.Date,
			KeyID:      payload.KeyID,
			Ciphertext: payload.Ciphertext,
			Nonce:      payload.Nonce,
		},
		ID:       fmt.Sprintf("id-%s", payload.Date),
		Revision: current + 1,
	}
	g.notes[payload.Date] = rn
	g.log = append(g.log, rn)
	cp := *rn
	return &cp, nil
}

func (g *fakeGateway) DeleteNote(ctx context.Context, id, date string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return common.ErrOffline
	}
	rn, ok := g.notes[date]
	if !ok {
		return nil
	}
	rn.Deleted = true
	g.log = append(g.log, rn)
	return nil
}

func (g *fakeGateway) PresignImagePut(ctx context.Context, imageID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return "", common.ErrOffline
	}
	g.presigns++
	return "https://blobs.example/" + imageID, nil
}

func (g *fakeGateway) UploadImage(ctx context.Context, url string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return common.ErrOffline
	}
	g.uploads[url] = data
	return nil
}

func (g *fakeGateway) setOffline(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = v
}

func (g *fakeGateway) setPushErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushErr = err
}

func (g *fakeGateway) pushCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pushes
}

func newTestSyncRepo(t *testing.T, gw *fakeGateway) (*SyncRepository, *sql.DB) {
	t.Helper()
	db := setupServiceDB(t)
	local := NewLocalRepository(testCrypto(), notes.NewSQLiteRepository(db), images.NewSQLiteRepository(db), nil)
	return NewSyncRepository(local, gw, syncstate.NewSQLiteRepository(db), nil), db
}

func TestLocalRepositorySaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestSyncRepo(t, newFakeGateway())

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>hello</p>", []models.Habit{{Name: "run", Value: "5km"}}))

	note, err := repo.Get(ctx, "15-03-2025")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "<p>hello</p>", note.Content)
	assert.Equal(t, "run", note.Habits[0].Name)

	pending, err := repo.HasPendingOp(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestLocalRepositoryInvalidDate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestSyncRepo(t, newFakeGateway())

	err := repo.Save(ctx, "2025-03-15", "<p>x</p>", nil)
	assert.ErrorIs(t, err, common.ErrInvalidDate)
	_, err = repo.Get(ctx, "not-a-date")
	assert.ErrorIs(t, err, common.ErrInvalidDate)
}

func TestLocalRepositoryDeleteRecordsTombstone(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestSyncRepo(t, newFakeGateway())

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>bye</p>", nil))
	require.NoError(t, repo.Delete(ctx, "15-03-2025"))

	note, err := repo.Get(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.Nil(t, note)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM pending_deletes WHERE date='15-03-2025'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSyncPushesAndClearsPending(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>one</p>", nil))
	require.NoError(t, repo.Save(ctx, "16-03-2025", "<p>two</p>", nil))

	status, err := repo.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, status)

	for _, d := range []string{"15-03-2025", "16-03-2025"} {
		pending, err := repo.HasPendingOp(ctx, d)
		require.NoError(t, err)
		assert.False(t, pending, d)

		cached, err := repo.HasRemoteDateCached(ctx, d)
		require.NoError(t, err)
		assert.True(t, cached, d)
	}
	assert.Len(t, gw.notes, 2)
	assert.Equal(t, int64(1), gw.notes["15-03-2025"].Revision)
}

func TestSyncSecondPushIncrementsRevision(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>v1</p>", nil))
	_, err := repo.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>v2</p>", nil))
	_, err = repo.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), gw.notes["15-03-2025"].Revision)
}

func TestSyncConflictAbortsCycle(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	// another device already created revision 1 for this date
	_, err := gw.PushNote(ctx, &models.RemoteNotePayload{Date: "15-03-2025", KeyID: "k1", Ciphertext: []byte("x"), Nonce: []byte("n")})
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>mine</p>", nil))
	status, err := repo.Sync(ctx)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, models.SyncStatusError, status)

	// the local edit is still pending; nothing was lost
	pending, err := repo.HasPendingOp(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestSyncOfflineStatus(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.setOffline(true)
	repo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>x</p>", nil))
	status, err := repo.Sync(ctx)
	assert.ErrorIs(t, err, common.ErrOffline)
	assert.Equal(t, models.SyncStatusOffline, status)

	pending, err := repo.HasPendingOp(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestSyncPushesDeletes(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, db := newTestSyncRepo(t, gw)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>x</p>", nil))
	_, err := repo.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "15-03-2025"))
	_, err = repo.Sync(ctx)
	require.NoError(t, err)

	assert.True(t, gw.notes["15-03-2025"].Deleted)
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM pending_deletes`).Scan(&n))
	assert.Equal(t, 0, n)

	cached, err := repo.HasRemoteDateCached(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestSyncPullsRemoteChanges(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	// a second client pushes a note via its own repository
	otherRepo, _ := newTestSyncRepo(t, gw)
	require.NoError(t, otherRepo.Save(ctx, "20-04-2025", "<p>from elsewhere</p>", nil))
	_, err := otherRepo.Sync(ctx)
	require.NoError(t, err)

	_, err = repo.Sync(ctx)
	require.NoError(t, err)

	note, err := repo.Get(ctx, "20-04-2025")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "<p>from elsewhere</p>", note.Content)
}

func TestSyncPullSkipsPendingLocalEdit(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>local v1</p>", nil))
	_, err := repo.Sync(ctx)
	require.NoError(t, err)

	// remote gains a newer revision while we have a fresh local edit
	otherRepo, _ := newTestSyncRepo(t, gw)
	remote, err := otherRepo.RefreshNote(ctx, "15-03-2025")
	require.NoError(t, err)
	require.NotNil(t, remote)
	require.NoError(t, otherRepo.Save(ctx, "15-03-2025", "<p>theirs</p>", nil))
	_, err = otherRepo.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>mine, unpushed</p>", nil))
	// pushing would conflict; check only that the pull leaves the edit alone
	err = repo.pull(ctx)
	require.NoError(t, err)

	note, err := repo.Get(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.Equal(t, "<p>mine, unpushed</p>", note.Content)
}

func TestSyncPullAppliesTombstone(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)
	otherRepo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, otherRepo.Save(ctx, "15-03-2025", "<p>x</p>", nil))
	_, err := otherRepo.Sync(ctx)
	require.NoError(t, err)

	_, err = repo.Sync(ctx)
	require.NoError(t, err)
	note, err := repo.Get(ctx, "15-03-2025")
	require.NoError(t, err)
	require.NotNil(t, note)

	require.NoError(t, otherRepo.Delete(ctx, "15-03-2025"))
	_, err = otherRepo.Sync(ctx)
	require.NoError(t, err)

	_, err = repo.Sync(ctx)
	require.NoError(t, err)
	note, err = repo.Get(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.Nil(t, note)
}

func TestSyncCursorAdvancesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, db := newTestSyncRepo(t, gw)
	otherRepo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, otherRepo.Save(ctx, "15-03-2025", "<p>x</p>", nil))
	_, err := otherRepo.Sync(ctx)
	require.NoError(t, err)

	gw.setOffline(true)
	status, err := repo.Sync(ctx)
	require.Error(t, err)
	assert.Equal(t, models.SyncStatusOffline, status)

	var cursor string
	require.NoError(t, db.QueryRow(`SELECT coalesce((SELECT cursor FROM sync_state), '')`).Scan(&cursor))
	assert.Equal(t, "", cursor)

	gw.setOffline(false)
	_, err = repo.Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, db.QueryRow(`SELECT cursor FROM sync_state`).Scan(&cursor))
	assert.Equal(t, "1", cursor)

	// nothing new: a second cycle pulls an empty batch
	notes, next, err := gw.FetchNotesSince(ctx, cursor)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, "1", next)
}

func TestSyncUploadsPendingImages(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	rec, err := repo.AddImage(ctx, "15-03-2025", []byte("png bytes"))
	require.NoError(t, err)

	_, err = repo.Sync(ctx)
	require.NoError(t, err)

	blob, ok := gw.uploads["https://blobs.example/"+rec.ID]
	require.True(t, ok)
	assert.Greater(t, len(blob), len("png bytes"))

	count, err := repo.images.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRefreshNoteAppliesRemote(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)
	otherRepo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, otherRepo.Save(ctx, "15-03-2025", "<p>fresh</p>", nil))
	_, err := otherRepo.Sync(ctx)
	require.NoError(t, err)

	note, err := repo.RefreshNote(ctx, "15-03-2025")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "<p>fresh</p>", note.Content)

	// applied locally too
	local, err := repo.Get(ctx, "15-03-2025")
	require.NoError(t, err)
	require.NotNil(t, local)
}

func TestRefreshNoteKeepsPendingLocalEdit(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>unpushed</p>", nil))
	note, err := repo.RefreshNote(ctx, "15-03-2025")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "<p>unpushed</p>", note.Content)
}

func TestRefreshNoteRemoteAbsentClearsLocal(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, repo.Save(ctx, "15-03-2025", "<p>x</p>", nil))
	_, err := repo.Sync(ctx)
	require.NoError(t, err)

	// remote deleted elsewhere
	require.NoError(t, gw.DeleteNote(ctx, "id-15-03-2025", "15-03-2025"))

	note, err := repo.RefreshNote(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.Nil(t, note)

	local, err := repo.Get(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.Nil(t, local)
}

func TestRefreshDatesPopulatesCache(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	repo, _ := newTestSyncRepo(t, gw)
	otherRepo, _ := newTestSyncRepo(t, gw)

	require.NoError(t, otherRepo.Save(ctx, "15-03-2025", "<p>a</p>", nil))
	require.NoError(t, otherRepo.Save(ctx, "16-07-2024", "<p>b</p>", nil))
	_, err := otherRepo.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.RefreshDates(ctx, 0))
	for _, d := range []string{"15-03-2025", "16-07-2024"} {
		ok, err := repo.HasRemoteDateCached(ctx, d)
		require.NoError(t, err)
		assert.True(t, ok, d)
	}

	// per-year refresh replaces only that year's slice
	require.NoError(t, gw.DeleteNote(ctx, "", "15-03-2025"))
	require.NoError(t, repo.RefreshDates(ctx, 2025))
	ok, err := repo.HasRemoteDateCached(ctx, "15-03-2025")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.HasRemoteDateCached(ctx, "16-07-2024")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncStatusSubscription(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestSyncRepo(t, newFakeGateway())

	var mu sync.Mutex
	var seen []models.SyncStatus
	unsub := repo.OnSyncStatusChange(func(s models.SyncStatus) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_, err := repo.Sync(ctx)
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []models.SyncStatus{models.SyncStatusSyncing, models.SyncStatusSynced}, seen)
	mu.Unlock()

	unsub()
	_, err = repo.Sync(ctx)
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
	assert.Equal(t, models.SyncStatusSynced, repo.GetSyncStatus())
}
