package images

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const columns = `id, date, key_id, ciphertext, nonce, sha256, size, created_at`

func (r *SQLiteRepository) Put(ctx context.Context, rec *models.ImageRecord, pending bool) error {
	query := `INSERT INTO images (` + columns + `, pending)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ciphertext = excluded.ciphertext,
				nonce = excluded.nonce,
				sha256 = excluded.sha256,
				size = excluded.size,
				pending = excluded.pending
	`
	p := 0
	if pending {
		p = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Date, rec.KeyID, rec.Ciphertext, rec.Nonce, rec.SHA256, rec.Size,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), p)
	if err != nil {
		return fmt.Errorf("failed to upsert image: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.ImageRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM images WHERE id=?`, id)
	rec, err := scanImage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select image: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetForDate(ctx context.Context, date string) ([]*models.ImageRecord, error) {
	return r.selectImages(ctx, `SELECT `+columns+` FROM images WHERE date=? ORDER BY created_at`, date)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id=?`, id); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*models.ImageRecord, error) {
	return r.selectImages(ctx, `SELECT `+columns+` FROM images WHERE pending=1 ORDER BY created_at`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE images SET pending=0 WHERE id=?`, id); err != nil {
		return fmt.Errorf("failed to mark image synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM images WHERE pending=1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending images: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) selectImages(ctx context.Context, query string, args ...any) ([]*models.ImageRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select images: %w", err)
	}
	defer rows.Close()

	var result []*models.ImageRecord
	for rows.Next() {
		rec, err := scanImage(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanImage(scan func(dest ...any) error) (*models.ImageRecord, error) {
	var (
		rec       models.ImageRecord
		createdAt string
	)
	if err := scan(&rec.ID, &rec.Date, &rec.KeyID, &rec.Ciphertext, &rec.Nonce,
		&rec.SHA256, &rec.Size, &createdAt); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = ts
	return &rec, nil
}
