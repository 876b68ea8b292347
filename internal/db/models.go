package db

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusPrinting JobStatus = "printing"
	JobStatusPrinted  JobStatus = "printed"
	JobStatusError    JobStatus = "error"
)

// Terminal reports whether no further transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusPrinted || s == JobStatusError
}

type NoteStatus string

const (
	NoteStatusDraft    NoteStatus = "draft"
	NoteStatusIssued   NoteStatus = "issued"
	NoteStatusPrinted  NoteStatus = "printed"
	NoteStatusCanceled NoteStatus = "canceled"
)

type PrintJob struct {
	ID           string          `json:"id"`
	NoteID       string          `json:"note_id"`
	DeviceID     string          `json:"device_id"`
	Status       JobStatus       `json:"status"`
	NoteSnapshot json.RawMessage `json:"note_snapshot"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ClaimedAt    *time.Time      `json:"claimed_at,omitempty"`
	PrintedAt    *time.Time      `json:"printed_at,omitempty"`
}

type PrintHistoryRecord struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	PrintedBy string    `json:"printed_by"`
	CreatedAt time.Time `json:"created_at"`
}

type FiscalNote struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Number       string     `json:"number"`
	CustomerName string     `json:"customer_name"`
	TotalCents   int64      `json:"total_cents"`
	Status       NoteStatus `json:"status"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
