package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetCursor(ctx context.Context) (string, error) {
	var cursor string
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor FROM sync_state WHERE id=?`, models.SyncStateID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync state: %w", err)
	}
	return cursor, nil
}

func (r *SQLiteRepository) SetCursor(ctx context.Context, cursor string) error {
	query := `INSERT INTO sync_state (id, cursor) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor`
	if _, err := r.db.ExecContext(ctx, query, models.SyncStateID, cursor); err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ReplaceRemoteDates(ctx context.Context, year int, dates []string) error {
	// replace only the given year's slice of the cache
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM remote_dates WHERE substr(date, 7, 4)=?`, fmt.Sprintf("%04d", year)); err != nil {
		return fmt.Errorf("failed to clear remote dates: %w", err)
	}
	for _, d := range dates {
		if err := r.AddRemoteDate(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) AddRemoteDate(ctx context.Context, date string) error {
	query := `INSERT INTO remote_dates (date) VALUES (?) ON CONFLICT(date) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, date); err != nil {
		return fmt.Errorf("failed to add remote date: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveRemoteDate(ctx context.Context, date string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM remote_dates WHERE date=?`, date); err != nil {
		return fmt.Errorf("failed to remove remote date: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) HasRemoteDate(ctx context.Context, date string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM remote_dates WHERE date=?`, date).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check remote date: %w", err)
	}
	return n > 0, nil
}
