// Package notify pushes terminal job transitions to configured webhook
// endpoints, so producer UIs can subscribe instead of polling.
package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fiscaldesk/printflow/internal/config"
	"github.com/fiscaldesk/printflow/internal/db"
)

const (
	EventJobPrinted = "job_printed"
	EventJobErrored = "job_errored"
)

type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Job       jobData   `json:"job"`
}

type jobData struct {
	ID           string `json:"id"`
	NoteID       string `json:"note_id"`
	DeviceID     string `json:"device_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedBy    string `json:"created_by"`
}

type task struct {
	target  config.WebhookTarget
	payload *Payload
	attempt int
}

type Sender struct {
	cfg        config.NotifyConfig
	httpClient *http.Client
	log        *logrus.Logger

	queue  chan *task
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSender(cfg config.NotifyConfig, log *logrus.Logger) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
		queue:      make(chan *task, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// JobPrinted implements jobstore.Notifier.
func (s *Sender) JobPrinted(job *db.PrintJob) {
	s.enqueue(EventJobPrinted, job)
}

// JobErrored implements jobstore.Notifier.
func (s *Sender) JobErrored(job *db.PrintJob) {
	s.enqueue(EventJobErrored, job)
}

func (s *Sender) enqueue(event string, job *db.PrintJob) {
	payload := &Payload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Job: jobData{
			ID:           job.ID,
			NoteID:       job.NoteID,
			DeviceID:     job.DeviceID,
			Status:       string(job.Status),
			ErrorMessage: job.ErrorMessage,
			CreatedBy:    job.CreatedBy,
		},
	}

	for _, target := range s.cfg.Webhooks {
		if !wantsEvent(target, event) {
			continue
		}
		select {
		case s.queue <- &task{target: target, payload: payload}:
		default:
			s.log.WithField("url", target.URL).Warn("notify queue full, dropping event")
		}
	}
}

func wantsEvent(target config.WebhookTarget, event string) bool {
	if len(target.Events) == 0 {
		return true
	}
	for _, e := range target.Events {
		if e == event {
			return true
		}
	}
	return false
}

func (s *Sender) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			s.deliver(t)
		}
	}
}

func (s *Sender) deliver(t *task) {
	err := s.send(t)
	if err == nil {
		return
	}

	if t.attempt+1 < s.cfg.RetryCount {
		t.attempt++
		time.AfterFunc(s.cfg.RetryDelay, func() {
			select {
			case s.queue <- t:
			default:
			}
		})
		return
	}

	s.log.WithFields(logrus.Fields{
		"url":   t.target.URL,
		"event": t.payload.Event,
	}).WithError(err).Warn("webhook delivery failed, giving up")
}

func (s *Sender) send(t *task) error {
	body, err := json.Marshal(t.payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, t.target.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.target.Secret != "" {
		req.Header.Set("X-Printflow-Signature", sign(body, t.target.Secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d", e.code)
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
