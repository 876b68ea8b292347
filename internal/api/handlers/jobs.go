package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fiscaldesk/printflow/internal/api/middleware"
	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
)

type CreateJobRequest struct {
	NoteID       string          `json:"note_id" binding:"required"`
	DeviceID     string          `json:"device_id" binding:"required"`
	NoteSnapshot json.RawMessage `json:"note_snapshot" binding:"required"`
}

type JobHandler struct {
	store *jobstore.Store
}

func NewJobHandler(store *jobstore.Store) *JobHandler {
	return &JobHandler{store: store}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.store.Enqueue(c.Request.Context(), jobstore.EnqueueParams{
		NoteID:      req.NoteID,
		DeviceID:    req.DeviceID,
		Snapshot:    req.NoteSnapshot,
		SubmittedBy: c.GetString(middleware.ContextUserID),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	status := db.JobStatus(c.Query("status"))
	jobs, err := h.store.List(c.Request.Context(), c.GetString(middleware.ContextUserID), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) RetryJob(c *gin.Context) {
	job, err := h.store.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	if err := h.store.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *JobHandler) QueueStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *JobHandler) ListHistory(c *gin.Context) {
	printedBy := c.Query("printed_by")
	if printedBy == "" {
		printedBy = c.GetString(middleware.ContextUserID)
	}
	records, err := h.store.History(c.Request.Context(), printedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}
