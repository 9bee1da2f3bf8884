package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/dbx"
	"github.com/dmitrijs2005/journalsync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or
// *sql.Tx) using the pgx stdlib driver.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const noteColumns = `id, user_id, date, key_id, ciphertext, nonce, version, revision, deleted, updated_at, server_updated_at, seq`

func scanNote(row interface{ Scan(...any) error }) (*models.Note, error) {
	var n models.Note
	err := row.Scan(
		&n.ID, &n.UserID, &n.Date, &n.KeyID, &n.Ciphertext, &n.Nonce,
		&n.Version, &n.Revision, &n.Deleted, &n.UpdatedAt, &n.ServerUpdatedAt, &n.Seq,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *PostgresRepository) GetByDate(ctx context.Context, userID, date string) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE user_id=$1 AND date=$2`
	n, err := scanNote(r.db.QueryRowContext(ctx, query, userID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select note: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, n *models.Note) (*models.Note, error) {
	query := `
		INSERT INTO notes (id, user_id, date, key_id, ciphertext, nonce, version, revision, deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, FALSE, $8)
		ON CONFLICT (user_id, date) DO NOTHING
		RETURNING ` + noteColumns
	stored, err := scanNote(r.db.QueryRowContext(ctx, query,
		n.ID, n.UserID, n.Date, n.KeyID, n.Ciphertext, n.Nonce, n.Version, n.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		// lost the race to another writer for the same date
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert note: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) UpdateWithRevision(ctx context.Context, n *models.Note, expected int64) (*models.Note, error) {
	query := `
		UPDATE notes SET
			key_id = $4,
			ciphertext = $5,
			nonce = $6,
			version = $7,
			updated_at = $8,
			revision = notes.revision + 1,
			deleted = FALSE,
			server_updated_at = now(),
			seq = nextval('notes_change_seq')
		WHERE user_id = $1 AND date = $2
			AND ((notes.deleted AND $3 = 0) OR (NOT notes.deleted AND notes.revision = $3))
		RETURNING ` + noteColumns
	stored, err := scanNote(r.db.QueryRowContext(ctx, query,
		n.UserID, n.Date, expected, n.KeyID, n.Ciphertext, n.Nonce, n.Version, n.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) GetDates(ctx context.Context, userID string, year int) ([]string, error) {
	query := `SELECT date FROM notes WHERE user_id=$1 AND NOT deleted`
	args := []any{userID}
	if year != 0 {
		query += ` AND substr(date, 7, 4)=$2`
		args = append(args, fmt.Sprintf("%04d", year))
	}
	query += ` ORDER BY substr(date, 7, 4), substr(date, 4, 2), substr(date, 1, 2)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select dates: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SelectSince(ctx context.Context, userID string, seq int64) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE user_id=$1 AND seq>$2 ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query, userID, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to select changes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Tombstone(ctx context.Context, userID, id, date string) error {
	query := `
		UPDATE notes SET
			deleted = TRUE,
			revision = notes.revision + 1,
			server_updated_at = now(),
			seq = nextval('notes_change_seq')
		WHERE user_id = $1 AND NOT deleted AND (id::text = $2 OR date = $3)`
	res, err := r.db.ExecContext(ctx, query, userID, id, date)
	if err != nil {
		return fmt.Errorf("failed to tombstone note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}
