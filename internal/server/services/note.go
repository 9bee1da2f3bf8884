// Package services implements server-side business logic: revision-checked
// note storage, the change stream, and presigned image uploads.
package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/server/models"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/notes"
)

// PushInput is one envelope arriving from a client, with its optimistic
// concurrency expectation.
type PushInput struct {
	Date             string
	KeyID            string
	Ciphertext       []byte
	Nonce            []byte
	Version          int
	UpdatedAt        time.Time
	ExpectedRevision int64
}

// NoteService enforces revision monotonicity and tombstone semantics over
// the notes repository.
type NoteService struct {
	repo notes.Repository
}

func NewNoteService(repo notes.Repository) *NoteService {
	return &NoteService{repo: repo}
}

func (s *NoteService) validate(in *PushInput) error {
	if !common.ValidDate(in.Date) {
		return fmt.Errorf("%w: bad date %q", common.ErrInvalidDate, in.Date)
	}
	if in.KeyID == "" || len(in.Ciphertext) == 0 || len(in.Nonce) == 0 {
		return fmt.Errorf("%w: incomplete envelope", common.ErrRemoteRejected)
	}
	return nil
}

// Push stores one envelope. A date the server has never seen requires
// expected revision 0; otherwise expected must match the stored revision
// (or 0 for a tombstoned row, which gets resurrected).
func (s *NoteService) Push(ctx context.Context, userID string, in *PushInput) (*models.Note, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	n := &models.Note{
		UserID:     userID,
		Date:       in.Date,
		KeyID:      in.KeyID,
		Ciphertext: in.Ciphertext,
		Nonce:      in.Nonce,
		Version:    in.Version,
		UpdatedAt:  in.UpdatedAt,
	}

	existing, err := s.repo.GetByDate(ctx, userID, in.Date)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if in.ExpectedRevision != 0 {
			return nil, common.ErrConflict
		}
		n.ID = uuid.NewString()
		return s.repo.Create(ctx, n)
	}
	return s.repo.UpdateWithRevision(ctx, n, in.ExpectedRevision)
}

// GetByDate returns the live note for a date, nil when absent or
// tombstoned.
func (s *NoteService) GetByDate(ctx context.Context, userID, date string) (*models.Note, error) {
	if !common.ValidDate(date) {
		return nil, fmt.Errorf("%w: bad date %q", common.ErrInvalidDate, date)
	}
	n, err := s.repo.GetByDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if n == nil || n.Deleted {
		return nil, nil
	}
	return n, nil
}

// Dates lists dates with live notes, year 0 meaning all years.
func (s *NoteService) Dates(ctx context.Context, userID string, year int) ([]string, error) {
	return s.repo.GetDates(ctx, userID, year)
}

// ChangesSince returns rows past the cursor plus the cursor for the next
// pull. The cursor is the decimal change sequence; empty starts from the
// beginning.
func (s *NoteService) ChangesSince(ctx context.Context, userID, cursor string) ([]*models.Note, string, error) {
	var seq int64
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || parsed < 0 {
			return nil, "", fmt.Errorf("%w: bad cursor %q", common.ErrRemoteRejected, cursor)
		}
		seq = parsed
	}

	rows, err := s.repo.SelectSince(ctx, userID, seq)
	if err != nil {
		return nil, "", err
	}

	next := seq
	for _, n := range rows {
		if n.Seq > next {
			next = n.Seq
		}
	}
	return rows, strconv.FormatInt(next, 10), nil
}

// Delete tombstones a note by id (preferred) or date. Deleting something
// already gone is reported as ErrNotFound; clients treat it as success.
func (s *NoteService) Delete(ctx context.Context, userID, id, date string) error {
	if id == "" && date == "" {
		return fmt.Errorf("%w: delete needs id or date", common.ErrRemoteRejected)
	}
	return s.repo.Tombstone(ctx, userID, id, date)
}
