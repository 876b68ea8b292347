package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/printflow/internal/api/middleware"
	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
	"github.com/fiscaldesk/printflow/internal/notes"
)

type testServer struct {
	router    *gin.Engine
	auth      *middleware.Auth
	userToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	devices := db.NewDeviceStore(conn)
	auth, err := middleware.NewAuth("test-secret", devices)
	require.NoError(t, err)

	router := NewRouter(Deps{
		Jobs:    jobstore.NewStore(conn, log),
		Notes:   notes.NewStore(conn, log),
		Devices: devices,
		Auth:    auth,
	})

	userToken, err := auth.IssueUserToken("user-1")
	require.NoError(t, err)

	return &testServer{router: router, auth: auth, userToken: userToken}
}

func (s *testServer) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// registerDevice creates a device and returns its id and an agent token
// obtained through the login endpoint.
func (s *testServer) registerDevice(t *testing.T, name string) (string, string) {
	t.Helper()
	w := s.request(t, http.MethodPost, "/api/devices", s.userToken, gin.H{
		"name": name,
		"key":  "super-secret-key",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	device := decode[db.Device](t, w)

	w = s.request(t, http.MethodPost, "/api/agent/login", "", gin.H{
		"device_id":  device.ID,
		"device_key": "super-secret-key",
	})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[middleware.AgentLoginResponse](t, w)
	return device.ID, login.Token
}

func (s *testServer) createJob(t *testing.T, deviceID string) db.PrintJob {
	t.Helper()
	w := s.request(t, http.MethodPost, "/api/jobs", s.userToken, gin.H{
		"note_id":       "n1",
		"device_id":     deviceID,
		"note_snapshot": gin.H{"number": "NF-001"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[db.PrintJob](t, w)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.request(t, http.MethodGet, "/api/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.request(t, http.MethodGet, "/api/jobs", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A user token cannot reach the agent surface.
	w = s.request(t, http.MethodGet, "/api/agent/jobs", s.userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAgentLoginRejectsBadKey(t *testing.T) {
	s := newTestServer(t)
	deviceID, _ := s.registerDevice(t, "front-desk")

	w := s.request(t, http.MethodPost, "/api/agent/login", "", gin.H{
		"device_id":  deviceID,
		"device_key": "wrong-key",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.request(t, http.MethodPost, "/api/agent/login", "", gin.H{
		"device_id":  "ghost",
		"device_key": "super-secret-key",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeviceRegistrationValidation(t *testing.T) {
	s := newTestServer(t)

	// Key shorter than 12 characters is refused.
	w := s.request(t, http.MethodPost, "/api/devices", s.userToken, gin.H{
		"name": "front-desk",
		"key":  "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrintJobLifecycle(t *testing.T) {
	s := newTestServer(t)
	deviceID, agentToken := s.registerDevice(t, "front-desk")
	job := s.createJob(t, deviceID)

	// Duplicate enqueue for a live job conflicts.
	w := s.request(t, http.MethodPost, "/api/jobs", s.userToken, gin.H{
		"note_id":       "n1",
		"device_id":     deviceID,
		"note_snapshot": gin.H{"number": "NF-001"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Agent sees the pending job.
	w = s.request(t, http.MethodGet, "/api/agent/jobs", agentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode[map[string][]db.PrintJob](t, w)
	require.Len(t, listing["jobs"], 1)
	assert.Equal(t, job.ID, listing["jobs"][0].ID)

	// First claim wins, second conflicts.
	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/claim", agentToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/claim", agentToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/printed", agentToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.request(t, http.MethodGet, "/api/jobs/"+job.ID, s.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	printed := decode[db.PrintJob](t, w)
	assert.Equal(t, db.JobStatusPrinted, printed.Status)
	assert.NotNil(t, printed.PrintedAt)

	// The print shows up in the agent's history.
	w = s.request(t, http.MethodGet, "/api/history?printed_by=agent:"+deviceID, s.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[map[string][]db.PrintHistoryRecord](t, w)
	assert.Len(t, history["history"], 1)
}

func TestErrorReportAndRetry(t *testing.T) {
	s := newTestServer(t)
	deviceID, agentToken := s.registerDevice(t, "front-desk")
	job := s.createJob(t, deviceID)

	// Retry is only valid for errored jobs.
	w := s.request(t, http.MethodPost, "/api/jobs/"+job.ID+"/retry", s.userToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/claim", agentToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// An error report without a message is refused.
	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/error", agentToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/error", agentToken, gin.H{
		"message": "out of paper",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.request(t, http.MethodPost, "/api/jobs/"+job.ID+"/retry", s.userToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	fresh := decode[db.PrintJob](t, w)
	assert.NotEqual(t, job.ID, fresh.ID)
	assert.Equal(t, db.JobStatusPending, fresh.Status)
}

func TestCancelPendingJob(t *testing.T) {
	s := newTestServer(t)
	deviceID, agentToken := s.registerDevice(t, "front-desk")
	job := s.createJob(t, deviceID)

	w := s.request(t, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", s.userToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// A canceled job never reaches the agent.
	w = s.request(t, http.MethodGet, "/api/agent/jobs", agentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode[map[string][]db.PrintJob](t, w)
	assert.Empty(t, listing["jobs"])
}

func TestNoteLifecycle(t *testing.T) {
	s := newTestServer(t)
	deviceID, agentToken := s.registerDevice(t, "front-desk")

	w := s.request(t, http.MethodPost, "/api/notes", s.userToken, gin.H{
		"number":        "NF-001",
		"customer_name": "ACME Ltda",
		"total_cents":   12990,
		"status":        "issued",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	note := decode[db.FiscalNote](t, w)

	// Marking printed before any successful print job is a 412.
	w = s.request(t, http.MethodPost, "/api/notes/"+note.ID+"/printed", s.userToken, nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = s.request(t, http.MethodPost, "/api/jobs", s.userToken, gin.H{
		"note_id":       note.ID,
		"device_id":     deviceID,
		"note_snapshot": gin.H{"number": "NF-001"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	job := decode[db.PrintJob](t, w)

	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/claim", agentToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/printed", agentToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.request(t, http.MethodPost, "/api/notes/"+note.ID+"/printed", s.userToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.request(t, http.MethodGet, "/api/notes/"+note.ID, s.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[db.FiscalNote](t, w)
	assert.Equal(t, db.NoteStatusPrinted, updated.Status)

	// Another user cannot flip someone else's note.
	otherToken, err := s.auth.IssueUserToken("user-2")
	require.NoError(t, err)
	w = s.request(t, http.MethodPost, "/api/notes/"+note.ID+"/printed", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestQueueStats(t *testing.T) {
	s := newTestServer(t)
	deviceID, agentToken := s.registerDevice(t, "front-desk")
	job := s.createJob(t, deviceID)

	w := s.request(t, http.MethodPost, "/api/agent/jobs/"+job.ID+"/claim", agentToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.request(t, http.MethodGet, "/api/jobs/stats", s.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[jobstore.QueueStats](t, w)
	assert.Equal(t, 1, stats.Printing)
	assert.Equal(t, 1, stats.Total)
}

func TestUnknownJobIs404(t *testing.T) {
	s := newTestServer(t)
	w := s.request(t, http.MethodGet, "/api/jobs/nope", s.userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
