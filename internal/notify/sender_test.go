package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/printflow/internal/config"
	"github.com/fiscaldesk/printflow/internal/db"
)

type hookRecorder struct {
	mu       sync.Mutex
	payloads []Payload
	bodies   [][]byte
	sigs     []string
	failures int
}

func (r *hookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.failures > 0 {
			r.failures--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var p Payload
		if err := json.Unmarshal(body, &p); err == nil {
			r.payloads = append(r.payloads, p)
			r.bodies = append(r.bodies, body)
			r.sigs = append(r.sigs, req.Header.Get("X-Printflow-Signature"))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *hookRecorder) received() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payload(nil), r.payloads...)
}

func testSender(t *testing.T, cfg config.NotifyConfig) *Sender {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewSender(cfg, log)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func sampleJob(status db.JobStatus) *db.PrintJob {
	return &db.PrintJob{
		ID:        "j1",
		NoteID:    "n1",
		DeviceID:  "d1",
		Status:    status,
		CreatedBy: "user-1",
	}
}

func TestDeliversSignedPayload(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := testSender(t, config.NotifyConfig{
		Webhooks: []config.WebhookTarget{{URL: srv.URL, Secret: "hook-secret"}},
	})
	s.JobPrinted(sampleJob(db.JobStatusPrinted))

	require.Eventually(t, func() bool {
		return len(rec.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := rec.received()[0]
	assert.Equal(t, EventJobPrinted, got.Event)
	assert.Equal(t, "j1", got.Job.ID)
	assert.Equal(t, "printed", got.Job.Status)

	// The signature must verify against the delivered body.
	rec.mu.Lock()
	body, sig := rec.bodies[0], rec.sigs[0]
	rec.mu.Unlock()
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(body)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestEventFilter(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := testSender(t, config.NotifyConfig{
		Webhooks: []config.WebhookTarget{{URL: srv.URL, Events: []string{EventJobErrored}}},
	})

	s.JobPrinted(sampleJob(db.JobStatusPrinted))
	s.JobErrored(sampleJob(db.JobStatusError))

	require.Eventually(t, func() bool {
		return len(rec.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, EventJobErrored, rec.received()[0].Event)

	// The filtered-out printed event must not arrive late.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.received(), 1)
}

func TestRetriesFailedDelivery(t *testing.T) {
	rec := &hookRecorder{failures: 2}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := testSender(t, config.NotifyConfig{
		RetryCount: 3,
		RetryDelay: 10 * time.Millisecond,
		Webhooks:   []config.WebhookTarget{{URL: srv.URL}},
	})
	s.JobErrored(sampleJob(db.JobStatusError))

	require.Eventually(t, func() bool {
		return len(rec.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFanOutToMultipleTargets(t *testing.T) {
	first := &hookRecorder{}
	second := &hookRecorder{}
	srv1 := httptest.NewServer(first.handler())
	defer srv1.Close()
	srv2 := httptest.NewServer(second.handler())
	defer srv2.Close()

	s := testSender(t, config.NotifyConfig{
		Webhooks: []config.WebhookTarget{{URL: srv1.URL}, {URL: srv2.URL}},
	})
	s.JobPrinted(sampleJob(db.JobStatusPrinted))

	require.Eventually(t, func() bool {
		return len(first.received()) == 1 && len(second.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
