package observer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/printflow/internal/db"
)

type fakeLister struct {
	mu   sync.Mutex
	jobs []*db.PrintJob
	err  error
}

func (f *fakeLister) List(ctx context.Context, submittedBy string, status db.JobStatus) ([]*db.PrintJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs, f.err
}

func (f *fakeLister) set(jobs ...*db.PrintJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = jobs
	f.err = nil
}

func (f *fakeLister) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func job(id string, status db.JobStatus) *db.PrintJob {
	return &db.PrintJob{ID: id, NoteID: "n-" + id, DeviceID: "d1", Status: status}
}

func newTestObserver(source Lister, bufferSize int) (*Observer, *[]Update) {
	var got []Update
	log := logrus.New()
	log.SetOutput(io.Discard)
	o := New(source, Config{SubmittedBy: "user-1", BufferSize: bufferSize}, func(u Update) {
		got = append(got, u)
	}, log)
	return o, &got
}

func drain(o *Observer) []Update {
	var out []Update
	for {
		select {
		case u := <-o.Updates():
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestPollEmitsOncePerChange(t *testing.T) {
	source := &fakeLister{}
	o, got := newTestObserver(source, 8)
	ctx := context.Background()

	source.set(job("j1", db.JobStatusPending))
	o.Poll(ctx)
	require.Len(t, *got, 1)
	assert.Equal(t, db.JobStatusPending, (*got)[0].Job.Status)
	assert.Empty(t, (*got)[0].Previous)

	// Unchanged status stays quiet across cycles.
	o.Poll(ctx)
	o.Poll(ctx)
	assert.Len(t, *got, 1)

	source.set(job("j1", db.JobStatusPrinting))
	o.Poll(ctx)
	require.Len(t, *got, 2)
	assert.Equal(t, db.JobStatusPending, (*got)[1].Previous)
	assert.Equal(t, db.JobStatusPrinting, (*got)[1].Job.Status)

	updates := drain(o)
	assert.Len(t, updates, 2)
}

func TestTerminalStatusLatches(t *testing.T) {
	source := &fakeLister{}
	o, got := newTestObserver(source, 8)
	ctx := context.Background()

	source.set(job("j1", db.JobStatusPrinted))
	o.Poll(ctx)
	require.Len(t, *got, 1)

	// Even if a later read claims otherwise, printed stays printed.
	source.set(job("j1", db.JobStatusPending))
	o.Poll(ctx)
	source.set(job("j1", db.JobStatusError))
	o.Poll(ctx)
	assert.Len(t, *got, 1)
}

func TestFailedPollIsRetriedSilently(t *testing.T) {
	source := &fakeLister{}
	o, got := newTestObserver(source, 8)
	ctx := context.Background()

	source.fail(errors.New("db locked"))
	o.Poll(ctx)
	assert.Empty(t, *got)

	source.set(job("j1", db.JobStatusPending))
	o.Poll(ctx)
	assert.Len(t, *got, 1)
}

func TestSweptJobsAreForgotten(t *testing.T) {
	source := &fakeLister{}
	o, got := newTestObserver(source, 8)
	ctx := context.Background()

	source.set(job("j1", db.JobStatusPrinted))
	o.Poll(ctx)
	require.Len(t, *got, 1)

	// Job disappears after the retention sweep.
	source.set()
	o.Poll(ctx)
	assert.Empty(t, o.seen)

	// A fresh job reusing the id is observed anew.
	source.set(job("j1", db.JobStatusPending))
	o.Poll(ctx)
	assert.Len(t, *got, 2)
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	source := &fakeLister{}
	o, _ := newTestObserver(source, 2)
	ctx := context.Background()

	source.set(
		job("j1", db.JobStatusPending),
		job("j2", db.JobStatusPending),
		job("j3", db.JobStatusPending),
	)
	o.Poll(ctx)

	updates := drain(o)
	require.Len(t, updates, 2)
	assert.Equal(t, "j2", updates[0].Job.ID)
	assert.Equal(t, "j3", updates[1].Job.ID)
}
