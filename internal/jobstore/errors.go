package jobstore

import (
	"errors"
	"fmt"

	"github.com/fiscaldesk/printflow/internal/db"
)

// ErrNotFound indicates that no job exists with the given id.
var ErrNotFound = errors.New("print job not found")

// ErrAlreadyClaimed is returned when a claim loses the race against another
// poller. Callers are expected to skip the job, not to treat this as a
// failure.
var ErrAlreadyClaimed = errors.New("print job already claimed")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when an enqueue would create a second live job
// for the same note and device.
type ConflictError struct {
	NoteID   string
	DeviceID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a job for note %s on device %s is already pending or printing", e.NoteID, e.DeviceID)
}

type InvalidStateError struct {
	JobID  string
	Status db.JobStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s job %s in status %s", e.Op, e.JobID, e.Status)
}

// PreconditionError is returned when marking a note printed before any
// successful job exists for it.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return e.Msg
}

type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string {
	return e.Msg
}
