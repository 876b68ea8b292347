// Package observer surfaces job status changes to the submitting session
// without manual refresh. It only ever reads the store.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fiscaldesk/printflow/internal/db"
)

// Update is delivered at most once per observed status change.
type Update struct {
	Job      *db.PrintJob
	Previous db.JobStatus
}

// Lister is the read-only slice of the job store the observer needs.
type Lister interface {
	List(ctx context.Context, submittedBy string, status db.JobStatus) ([]*db.PrintJob, error)
}

type Config struct {
	SubmittedBy  string
	PollInterval time.Duration
	BufferSize   int
}

type Observer struct {
	source   Lister
	cfg      Config
	log      *logrus.Logger
	onChange func(Update)

	updates chan Update
	seen    map[string]db.JobStatus
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates an observer for one submitter. onChange may be nil; updates
// are always also delivered on the Updates channel.
func New(source Lister, cfg Config, onChange func(Update), log *logrus.Logger) *Observer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 64
	}

	return &Observer{
		source:   source,
		cfg:      cfg,
		log:      log,
		onChange: onChange,
		updates:  make(chan Update, cfg.BufferSize),
		seen:     make(map[string]db.JobStatus),
		stopCh:   make(chan struct{}),
	}
}

// Updates returns the bounded notification channel. When it fills up the
// oldest update is dropped to make room for the newest.
func (o *Observer) Updates() <-chan Update {
	return o.updates
}

func (o *Observer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.loop(ctx)
}

func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	close(o.stopCh)
	o.wg.Wait()
}

func (o *Observer) loop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.Poll(ctx)
	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Poll(ctx)
		}
	}
}

// Poll runs one observation cycle. A failed poll is retried on the next
// tick; it is never reported as a job failure.
func (o *Observer) Poll(ctx context.Context) {
	jobs, err := o.source.List(ctx, o.cfg.SubmittedBy, "")
	if err != nil {
		o.log.WithError(err).Debug("status poll failed, will retry")
		return
	}

	current := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		current[job.ID] = true

		prev, known := o.seen[job.ID]
		if known && prev.Terminal() {
			// A terminal state, once observed, never flaps back.
			continue
		}
		if known && prev == job.Status {
			continue
		}

		o.seen[job.ID] = job.Status
		o.emit(Update{Job: job, Previous: prev})
	}

	// Swept jobs never come back; forget them.
	for id, status := range o.seen {
		if status.Terminal() && !current[id] {
			delete(o.seen, id)
		}
	}
}

func (o *Observer) emit(u Update) {
	if o.onChange != nil {
		o.onChange(u)
	}

	for {
		select {
		case o.updates <- u:
			return
		default:
		}
		select {
		case <-o.updates:
		default:
		}
	}
}
