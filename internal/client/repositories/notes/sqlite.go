package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *SQLiteRepository) Get(ctx context.Context, date string) (*Row, error) {
	query := `SELECT date, version, key_id, ciphertext, nonce, updated_at, remote_id, revision, pending
		FROM notes WHERE date=?`
	row := r.db.QueryRowContext(ctx, query, date)

	item, err := scanRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select note: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, row *Row) error {
	query := `INSERT INTO notes (date, version, key_id, ciphertext, nonce, updated_at, remote_id, revision, pending)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				version = excluded.version,
				key_id = excluded.key_id,
				ciphertext = excluded.ciphertext,
				nonce = excluded.nonce,
				updated_at = excluded.updated_at,
				remote_id = excluded.remote_id,
				revision = excluded.revision,
				pending = excluded.pending
	`
	rec := row.Record
	_, err := r.db.ExecContext(ctx, query,
		rec.Date, rec.Version, rec.KeyID, rec.Ciphertext, rec.Nonce,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		row.RemoteID, row.Revision, boolToInt(row.Pending))
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, date string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE date=?`, date)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, date, remoteID string, revision int64) error {
	query := `UPDATE notes SET remote_id=?, revision=?, pending=0 WHERE date=?`
	_, err := r.db.ExecContext(ctx, query, remoteID, revision, date)
	if err != nil {
		return fmt.Errorf("failed to mark note synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAllDates(ctx context.Context) ([]string, error) {
	return r.selectDates(ctx, `SELECT date FROM notes ORDER BY date`)
}

func (r *SQLiteRepository) GetDatesForYear(ctx context.Context, year int) ([]string, error) {
	// date keys are DD-MM-YYYY, year is the trailing segment
	return r.selectDates(ctx,
		`SELECT date FROM notes WHERE substr(date, 7, 4)=? ORDER BY date`,
		fmt.Sprintf("%04d", year))
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*Row, error) {
	query := `SELECT date, version, key_id, ciphertext, nonce, updated_at, remote_id, revision, pending
		FROM notes WHERE pending=1 ORDER BY date`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending notes: %w", err)
	}
	defer rows.Close()

	var pending []*Row
	for rows.Next() {
		item, err := scanRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		pending = append(pending, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *SQLiteRepository) HasPending(ctx context.Context, date string) (bool, error) {
	query := `SELECT
		(SELECT count(*) FROM notes WHERE date=? AND pending=1) +
		(SELECT count(*) FROM pending_deletes WHERE date=?)`
	var n int
	if err := r.db.QueryRowContext(ctx, query, date, date).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check pending: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	query := `SELECT
		(SELECT count(*) FROM notes WHERE pending=1) +
		(SELECT count(*) FROM pending_deletes)`
	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) AddPendingDelete(ctx context.Context, date, remoteID string) error {
	query := `INSERT INTO pending_deletes (date, remote_id) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET remote_id = excluded.remote_id`
	if _, err := r.db.ExecContext(ctx, query, date, remoteID); err != nil {
		return fmt.Errorf("failed to record pending delete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetPendingDeletes(ctx context.Context) ([]PendingDelete, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, remote_id FROM pending_deletes ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending deletes: %w", err)
	}
	defer rows.Close()

	var result []PendingDelete
	for rows.Next() {
		var pd PendingDelete
		if err := rows.Scan(&pd.Date, &pd.RemoteID); err != nil {
			return nil, err
		}
		result = append(result, pd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ClearPendingDelete(ctx context.Context, date string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE date=?`, date); err != nil {
		return fmt.Errorf("failed to clear pending delete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) selectDates(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dates, nil
}

func scanRow(scan func(dest ...any) error) (*Row, error) {
	var (
		item      Row
		updatedAt string
		pending   int
	)
	rec := &item.Record
	if err := scan(&rec.Date, &rec.Version, &rec.KeyID, &rec.Ciphertext, &rec.Nonce,
		&updatedAt, &item.RemoteID, &item.Revision, &pending); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}
	rec.UpdatedAt = ts
	item.Pending = pending != 0
	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
