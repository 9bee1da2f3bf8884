package notes

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock, db
}

func noteRows(n *models.Note) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "date", "key_id", "ciphertext", "nonce",
		"version", "revision", "deleted", "updated_at", "server_updated_at", "seq",
	}).AddRow(
		n.ID, n.UserID, n.Date, n.KeyID, n.Ciphertext, n.Nonce,
		n.Version, n.Revision, n.Deleted, n.UpdatedAt, n.ServerUpdatedAt, n.Seq,
	)
}

func sampleNote() *models.Note {
	return &models.Note{
		ID:              "9f6f1c2e-0000-0000-0000-000000000001",
		UserID:          "u1",
		Date:            "15-03-2025",
		KeyID:           "k1",
		Ciphertext:      []byte("ct"),
		Nonce:           []byte("nonce"),
		Version:         1,
		Revision:        1,
		UpdatedAt:       time.Date(2025, 3, 15, 20, 0, 0, 0, time.UTC),
		ServerUpdatedAt: time.Date(2025, 3, 15, 20, 0, 1, 0, time.UTC),
		Seq:             7,
	}
}

func TestGetByDateFound(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	n := sampleNote()

	mock.ExpectQuery(`SELECT .* FROM notes WHERE user_id=\$1 AND date=\$2`).
		WithArgs("u1", "15-03-2025").
		WillReturnRows(noteRows(n))

	got, err := repo.GetByDate(context.Background(), "u1", "15-03-2025")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, int64(7), got.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByDateAbsent(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT .* FROM notes WHERE user_id=\$1 AND date=\$2`).
		WithArgs("u1", "16-03-2025").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.GetByDate(context.Background(), "u1", "16-03-2025")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConflictWhenRowExists(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	n := sampleNote()

	mock.ExpectQuery(`INSERT INTO notes .* ON CONFLICT \(user_id, date\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Create(context.Background(), n)
	assert.ErrorIs(t, err, common.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReturnsStoredRow(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	n := sampleNote()

	mock.ExpectQuery(`INSERT INTO notes .* ON CONFLICT \(user_id, date\) DO NOTHING`).
		WillReturnRows(noteRows(n))

	stored, err := repo.Create(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Revision)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithRevisionConflict(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	n := sampleNote()

	mock.ExpectQuery(`UPDATE notes SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.UpdateWithRevision(context.Background(), n, 3)
	assert.ErrorIs(t, err, common.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithRevisionBumps(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	n := sampleNote()
	bumped := *n
	bumped.Revision = 2
	bumped.Seq = 8

	mock.ExpectQuery(`UPDATE notes SET`).
		WillReturnRows(noteRows(&bumped))

	stored, err := repo.UpdateWithRevision(context.Background(), n, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Revision)
	assert.Equal(t, int64(8), stored.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTombstoneNotFound(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE notes SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Tombstone(context.Background(), "u1", "", "17-03-2025")
	assert.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectSince(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	n := sampleNote()

	mock.ExpectQuery(`SELECT .* FROM notes WHERE user_id=\$1 AND seq>\$2 ORDER BY seq`).
		WithArgs("u1", int64(3)).
		WillReturnRows(noteRows(n))

	got, err := repo.SelectSince(context.Background(), "u1", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "15-03-2025", got[0].Date)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDatesYearFilter(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT date FROM notes WHERE user_id=\$1 AND NOT deleted AND substr\(date, 7, 4\)=\$2`).
		WithArgs("u1", "2025").
		WillReturnRows(sqlmock.NewRows([]string{"date"}).AddRow("15-03-2025").AddRow("16-03-2025"))

	dates, err := repo.GetDates(context.Background(), "u1", 2025)
	require.NoError(t, err)
	assert.Equal(t, []string{"15-03-2025", "16-03-2025"}, dates)
	require.NoError(t, mock.ExpectationsWereMet())
}
