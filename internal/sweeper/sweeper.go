// Package sweeper bounds storage growth: terminal jobs older than the
// retention window are deleted, stale claims are failed. History records are
// never touched.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fiscaldesk/printflow/internal/jobstore"
)

type Config struct {
	Interval   time.Duration
	Retention  time.Duration
	ClaimLease time.Duration
}

type Sweeper struct {
	store *jobstore.Store
	cfg   Config
	log   *logrus.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func New(store *jobstore.Store, cfg Config, log *logrus.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}

	return &Sweeper{
		store:  store,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one maintenance pass. Both steps are idempotent and safe
// to run from multiple instances concurrently.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if failed, err := s.store.FailStale(ctx, s.cfg.ClaimLease); err != nil {
		s.log.WithError(err).Error("stale claim pass failed")
	} else if failed > 0 {
		s.log.WithField("count", failed).Info("failed stale claims")
	}

	if deleted, err := s.store.Sweep(ctx, s.cfg.Retention); err != nil {
		s.log.WithError(err).Error("retention sweep failed")
	} else if deleted > 0 {
		s.log.WithField("count", deleted).Info("swept terminal jobs")
	}
}
