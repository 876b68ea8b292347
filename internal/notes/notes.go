package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
)

// ErrNotFound indicates that no fiscal note exists with the given id.
var ErrNotFound = errors.New("fiscal note not found")

type Store struct {
	conn *sql.DB
	log  *logrus.Logger
}

func NewStore(conn *sql.DB, log *logrus.Logger) *Store {
	return &Store{conn: conn, log: log}
}

type CreateParams struct {
	OwnerID      string
	Number       string
	CustomerName string
	TotalCents   int64
	Status       db.NoteStatus
	IssuedAt     *time.Time
}

func (s *Store) Create(ctx context.Context, p CreateParams) (*db.FiscalNote, error) {
	if p.OwnerID == "" {
		return nil, &jobstore.ValidationError{Field: "owner_id", Reason: "must not be empty"}
	}
	if p.Number == "" {
		return nil, &jobstore.ValidationError{Field: "number", Reason: "must not be empty"}
	}
	if p.Status == "" {
		p.Status = db.NoteStatusDraft
	}

	note := &db.FiscalNote{
		ID:           uuid.NewString(),
		OwnerID:      p.OwnerID,
		Number:       p.Number,
		CustomerName: p.CustomerName,
		TotalCents:   p.TotalCents,
		Status:       p.Status,
		IssuedAt:     p.IssuedAt,
		CreatedAt:    time.Now().UTC(),
	}

	var issuedAt any
	if note.IssuedAt != nil {
		issuedAt = *note.IssuedAt
	}
	_, err := s.conn.ExecContext(ctx, db.InsertNote,
		note.ID, note.OwnerID, note.Number, note.CustomerName,
		note.TotalCents, note.Status, issuedAt, note.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return note, nil
}

func (s *Store) Get(ctx context.Context, id string) (*db.FiscalNote, error) {
	note, err := scanNote(s.conn.QueryRowContext(ctx, db.GetNoteByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

func (s *Store) List(ctx context.Context, ownerID string, limit, offset int) ([]*db.FiscalNote, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, db.ListNotesByOwner, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var result []*db.FiscalNote
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		result = append(result, note)
	}
	return result, rows.Err()
}

// MarkAsPrinted is the single crossing between the print core and the note
// lifecycle. In one transaction it verifies that a printed job exists for
// the note, that the caller owns the note, and then flips the note status.
// Calling it again after success is a no-op.
func (s *Store) MarkAsPrinted(ctx context.Context, noteID, ownerID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	note, err := scanNote(tx.QueryRowContext(ctx, db.GetNoteByID, noteID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get note: %w", err)
	}

	if note.OwnerID != ownerID {
		return &jobstore.ForbiddenError{Msg: "note belongs to a different owner"}
	}

	var printedJobs int
	if err := tx.QueryRowContext(ctx, db.HasPrintedJobForNote, noteID).Scan(&printedJobs); err != nil {
		return fmt.Errorf("failed to count printed jobs: %w", err)
	}
	if printedJobs == 0 {
		return &jobstore.PreconditionError{Msg: "no successful print job exists for this note"}
	}

	if note.Status == db.NoteStatusPrinted {
		return nil
	}

	if _, err := tx.ExecContext(ctx, db.MarkNotePrinted, noteID, ownerID); err != nil {
		return fmt.Errorf("failed to mark note printed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"note_id":  noteID,
		"owner_id": ownerID,
	}).Info("note marked printed")
	return nil
}

type NoteStats struct {
	Draft    int `json:"draft"`
	Issued   int `json:"issued"`
	Printed  int `json:"printed"`
	Canceled int `json:"canceled"`
	Total    int `json:"total"`
}

func (s *Store) Stats(ctx context.Context, ownerID string) (*NoteStats, error) {
	rows, err := s.conn.QueryContext(ctx, db.CountNotesByStatus, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}
	defer rows.Close()

	stats := &NoteStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		stats.Total += count
		switch db.NoteStatus(status) {
		case db.NoteStatusDraft:
			stats.Draft = count
		case db.NoteStatusIssued:
			stats.Issued = count
		case db.NoteStatusPrinted:
			stats.Printed = count
		case db.NoteStatusCanceled:
			stats.Canceled = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*db.FiscalNote, error) {
	note := &db.FiscalNote{}
	var issuedAt sql.NullTime
	err := row.Scan(
		&note.ID, &note.OwnerID, &note.Number, &note.CustomerName,
		&note.TotalCents, &note.Status, &issuedAt, &note.CreatedAt)
	if err != nil {
		return nil, err
	}
	if issuedAt.Valid {
		note.IssuedAt = &issuedAt.Time
	}
	return note, nil
}
