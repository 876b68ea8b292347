package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
)

// JobSource is the store surface a poller needs. The in-process store and
// the HTTP client both satisfy it.
type JobSource interface {
	PendingJobs(ctx context.Context, deviceID string, limit int) ([]*db.PrintJob, error)
	Claim(ctx context.Context, jobID string) error
	ReportPrinted(ctx context.Context, jobID string) error
	ReportError(ctx context.Context, jobID, message string) error
}

type Config struct {
	DeviceID     string
	PollInterval time.Duration
	PrintTimeout time.Duration
	WorkerCount  int
	FetchLimit   int
}

// Poller is the consumer loop for one physical device: fetch pending jobs
// oldest first, claim each, print, report the terminal outcome.
type Poller struct {
	source  JobSource
	printer Printer
	cfg     Config
	log     *logrus.Logger

	jobCh   chan *db.PrintJob
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewPoller(source JobSource, printer Printer, cfg Config, log *logrus.Logger) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PrintTimeout <= 0 {
		cfg.PrintTimeout = 60 * time.Second
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 2
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 50
	}

	return &Poller{
		source:  source,
		printer: printer,
		cfg:     cfg,
		log:     log,
		jobCh:   make(chan *db.PrintJob, cfg.WorkerCount*2),
		stopCh:  make(chan struct{}),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	if p.cfg.DeviceID == "" {
		return errors.New("poller requires a device id")
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.wg.Add(1)
	go p.loop(ctx)

	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll fetches pending jobs and hands them to the workers without blocking;
// whatever does not fit stays pending for the next cycle.
func (p *Poller) poll(ctx context.Context) {
	jobs, err := p.source.PendingJobs(ctx, p.cfg.DeviceID, p.cfg.FetchLimit)
	if err != nil {
		p.log.WithError(err).Warn("failed to fetch pending jobs")
		return
	}

	for _, job := range jobs {
		select {
		case p.jobCh <- job:
		default:
			return
		}
	}
}

func (p *Poller) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case job := <-p.jobCh:
			p.process(ctx, job)
		}
	}
}

func (p *Poller) process(ctx context.Context, job *db.PrintJob) {
	err := p.source.Claim(ctx, job.ID)
	if errors.Is(err, jobstore.ErrAlreadyClaimed) || errors.Is(err, jobstore.ErrNotFound) {
		// Lost the race to another poller instance. Expected, not an error.
		p.log.WithField("job_id", job.ID).Debug("claim lost, skipping")
		return
	}
	if err != nil {
		p.log.WithField("job_id", job.ID).WithError(err).Warn("claim failed")
		return
	}

	res := p.print(ctx, job)
	if res.OK {
		if err := p.source.ReportPrinted(ctx, job.ID); err != nil {
			p.log.WithField("job_id", job.ID).WithError(err).Error("failed to report printed job")
			return
		}
		p.log.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"note_id": job.NoteID,
		}).Info("job printed")
		return
	}

	if err := p.source.ReportError(ctx, job.ID, res.Message); err != nil {
		p.log.WithField("job_id", job.ID).WithError(err).Error("failed to report errored job")
		return
	}
	p.log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"note_id": job.NoteID,
		"reason":  res.Message,
	}).Warn("job errored")
}

// print runs the physical print under the claim-to-completion deadline. A
// printer that ignores its context cannot hold the worker past the deadline.
func (p *Poller) print(ctx context.Context, job *db.PrintJob) Result {
	pctx, cancel := context.WithTimeout(ctx, p.cfg.PrintTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{OK: false, Message: fmt.Sprintf("print panicked: %v", r)}
			}
		}()
		done <- p.printer.Print(pctx, job.NoteSnapshot)
	}()

	select {
	case res := <-done:
		return res
	case <-pctx.Done():
		return Result{OK: false, Message: fmt.Sprintf("print timed out after %s", p.cfg.PrintTimeout)}
	}
}
