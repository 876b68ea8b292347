package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/fiscaldesk/printflow/internal/db"
)

// Error messages longer than this are truncated before storage.
const MaxErrorMessageLen = 1024

// Stale printing jobs are fetched in batches of this size.
const staleJobLimit = 100

// Notifier receives terminal transitions. Implementations must not block.
type Notifier interface {
	JobPrinted(job *db.PrintJob)
	JobErrored(job *db.PrintJob)
}

type Store struct {
	conn     *sql.DB
	log      *logrus.Logger
	notifier Notifier
}

func NewStore(conn *sql.DB, log *logrus.Logger) *Store {
	return &Store{conn: conn, log: log}
}

func (s *Store) SetNotifier(n Notifier) {
	s.notifier = n
}

type EnqueueParams struct {
	NoteID      string
	DeviceID    string
	Snapshot    json.RawMessage
	SubmittedBy string
}

// Enqueue inserts a new pending job. The snapshot is stored as-is and never
// rewritten; later edits to the note do not affect what gets printed.
func (s *Store) Enqueue(ctx context.Context, p EnqueueParams) (*db.PrintJob, error) {
	if p.NoteID == "" {
		return nil, &ValidationError{Field: "note_id", Reason: "must not be empty"}
	}
	if p.DeviceID == "" {
		return nil, &ValidationError{Field: "device_id", Reason: "must not be empty"}
	}
	if len(p.Snapshot) == 0 {
		return nil, &ValidationError{Field: "note_snapshot", Reason: "must not be empty"}
	}
	if !json.Valid(p.Snapshot) {
		return nil, &ValidationError{Field: "note_snapshot", Reason: "must be valid JSON"}
	}
	if p.SubmittedBy == "" {
		return nil, &ValidationError{Field: "submitted_by", Reason: "must not be empty"}
	}

	now := time.Now().UTC()
	job := &db.PrintJob{
		ID:           uuid.NewString(),
		NoteID:       p.NoteID,
		DeviceID:     p.DeviceID,
		Status:       db.JobStatusPending,
		NoteSnapshot: p.Snapshot,
		CreatedBy:    p.SubmittedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.conn.ExecContext(ctx, db.InsertJob,
		job.ID, job.NoteID, job.DeviceID, []byte(job.NoteSnapshot), job.CreatedBy, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, &ConflictError{NoteID: p.NoteID, DeviceID: p.DeviceID}
		}
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return job, nil
}

// Get returns the job with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*db.PrintJob, error) {
	row := s.conn.QueryRowContext(ctx, db.GetJobByID, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns the submitter's jobs newest first, optionally filtered by
// status.
func (s *Store) List(ctx context.Context, submittedBy string, status db.JobStatus) ([]*db.PrintJob, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.conn.QueryContext(ctx, db.ListJobsBySubmitterAndStatus, submittedBy, status)
	} else {
		rows, err = s.conn.QueryContext(ctx, db.ListJobsBySubmitter, submittedBy)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// PendingForDevice returns up to limit pending jobs addressed to the device,
// oldest first.
func (s *Store) PendingForDevice(ctx context.Context, deviceID string, limit int) ([]*db.PrintJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, db.ListPendingJobsForDevice, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Claim transitions a job from pending to printing. The update is guarded on
// the current status, so of any number of concurrent claimers exactly one
// succeeds; the rest get ErrAlreadyClaimed.
func (s *Store) Claim(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	result, err := s.conn.ExecContext(ctx, db.ClaimJob, now, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, jobID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyClaimed
	}
	return nil
}

// MarkPrinted transitions a printing job to printed and records the history
// row in the same transaction.
func (s *Store) MarkPrinted(ctx context.Context, jobID, printedBy string) (*db.PrintHistoryRecord, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, db.MarkJobPrinted, now, now, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark job printed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, s.transitionRefused(ctx, jobID, "complete")
	}

	rec := &db.PrintHistoryRecord{
		ID:        uuid.NewString(),
		JobID:     jobID,
		PrintedBy: printedBy,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, db.InsertHistory, rec.ID, rec.JobID, rec.PrintedBy, rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert history record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifyTerminal(ctx, jobID)
	return rec, nil
}

// MarkError transitions a printing job to error. No history row is written.
func (s *Store) MarkError(ctx context.Context, jobID, message string) error {
	if len(message) > MaxErrorMessageLen {
		message = message[:MaxErrorMessageLen]
	}
	now := time.Now().UTC()
	result, err := s.conn.ExecContext(ctx, db.MarkJobError, message, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job errored: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return s.transitionRefused(ctx, jobID, "fail")
	}

	s.notifyTerminal(ctx, jobID)
	return nil
}

// Cancel moves a still-pending job to error with a cancellation message. It
// uses the same status guard as Claim, so it cannot race an agent that has
// already started printing.
func (s *Store) Cancel(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	result, err := s.conn.ExecContext(ctx, db.CancelPendingJob, "canceled by submitter", now, jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return s.transitionRefused(ctx, jobID, "cancel")
	}
	return nil
}

// Retry creates a fresh pending job copying the note, device and snapshot of
// an errored job. The old row is never touched, which keeps the trail
// append-only.
func (s *Store) Retry(ctx context.Context, jobID string) (*db.PrintJob, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != db.JobStatusError {
		return nil, &InvalidStateError{JobID: jobID, Status: job.Status, Op: "retry"}
	}
	return s.Enqueue(ctx, EnqueueParams{
		NoteID:      job.NoteID,
		DeviceID:    job.DeviceID,
		Snapshot:    job.NoteSnapshot,
		SubmittedBy: job.CreatedBy,
	})
}

// FailStale marks printing jobs whose claim is older than the lease as
// errored. Covers agents that died between claiming and reporting.
func (s *Store) FailStale(ctx context.Context, lease time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-lease)
	rows, err := s.conn.QueryContext(ctx, db.ListStaleClaimedJobs, cutoff, staleJobLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, job := range jobs {
		msg := fmt.Sprintf("claim expired: no terminal report within %s", lease)
		if err := s.MarkError(ctx, job.ID, msg); err != nil {
			// The agent may have reported in the meantime; the next
			// run picks up anything still stuck.
			s.log.WithField("job_id", job.ID).WithError(err).Warn("could not fail stale job")
			continue
		}
		s.log.WithFields(logrus.Fields{
			"job_id":    job.ID,
			"device_id": job.DeviceID,
		}).Info("failed stale printing job")
		failed++
	}
	return failed, nil
}

// Sweep deletes terminal jobs older than the retention window. Pending and
// printing jobs survive regardless of age.
func (s *Store) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result, err := s.conn.ExecContext(ctx, db.SweepTerminalJobs, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep jobs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}

type QueueStats struct {
	Pending  int `json:"pending"`
	Printing int `json:"printing"`
	Printed  int `json:"printed"`
	Error    int `json:"error"`
	Total    int `json:"total"`
}

func (s *Store) Stats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.conn.QueryContext(ctx, db.CountJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	stats := &QueueStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		stats.Total += count
		switch db.JobStatus(status) {
		case db.JobStatusPending:
			stats.Pending = count
		case db.JobStatusPrinting:
			stats.Printing = count
		case db.JobStatusPrinted:
			stats.Printed = count
		case db.JobStatusError:
			stats.Error = count
		}
	}
	return stats, rows.Err()
}

// History lists the permanent print history for an agent identity, newest
// first. History survives job retention.
func (s *Store) History(ctx context.Context, printedBy string) ([]*db.PrintHistoryRecord, error) {
	rows, err := s.conn.QueryContext(ctx, db.ListHistoryByPrinter, printedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []*db.PrintHistoryRecord
	for rows.Next() {
		rec := &db.PrintHistoryRecord{}
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.PrintedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) notifyTerminal(ctx context.Context, jobID string) {
	if s.notifier == nil {
		return
	}
	job, err := s.Get(ctx, jobID)
	if err != nil {
		s.log.WithField("job_id", jobID).WithError(err).Warn("could not load job for notification")
		return
	}
	switch job.Status {
	case db.JobStatusPrinted:
		s.notifier.JobPrinted(job)
	case db.JobStatusError:
		s.notifier.JobErrored(job)
	}
}

// transitionRefused reports why a guarded status update matched no rows.
func (s *Store) transitionRefused(ctx context.Context, jobID, op string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return &InvalidStateError{JobID: jobID, Status: job.Status, Op: op}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*db.PrintJob, error) {
	job := &db.PrintJob{}
	var snapshot []byte
	var claimedAt, printedAt sql.NullTime
	err := row.Scan(
		&job.ID, &job.NoteID, &job.DeviceID, &job.Status, &snapshot,
		&job.ErrorMessage, &job.CreatedBy, &job.CreatedAt, &job.UpdatedAt,
		&claimedAt, &printedAt)
	if err != nil {
		return nil, err
	}
	job.NoteSnapshot = json.RawMessage(snapshot)
	if claimedAt.Valid {
		job.ClaimedAt = &claimedAt.Time
	}
	if printedAt.Valid {
		job.PrintedAt = &printedAt.Time
	}
	return job, nil
}

func collectJobs(rows *sql.Rows) ([]*db.PrintJob, error) {
	var jobs []*db.PrintJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
