package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fiscaldesk/printflow/internal/api/middleware"
	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
)

// AgentHandler is the consumer-side surface: agents poll it for pending
// jobs addressed to their device and report outcomes back.
type AgentHandler struct {
	store   *jobstore.Store
	devices *db.DeviceStore
}

func NewAgentHandler(store *jobstore.Store, devices *db.DeviceStore) *AgentHandler {
	return &AgentHandler{store: store, devices: devices}
}

func (h *AgentHandler) PendingJobs(c *gin.Context) {
	deviceID := c.GetString(middleware.ContextDeviceID)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	// Polling doubles as the device heartbeat.
	_ = h.devices.Touch(c.Request.Context(), deviceID)

	jobs, err := h.store.PendingForDevice(c.Request.Context(), deviceID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *AgentHandler) ClaimJob(c *gin.Context) {
	if err := h.store.Claim(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AgentHandler) ReportPrinted(c *gin.Context) {
	printedBy := c.GetString(middleware.ContextUserID)
	if _, err := h.store.MarkPrinted(c.Request.Context(), c.Param("id"), printedBy); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type ReportErrorRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *AgentHandler) ReportError(c *gin.Context) {
	var req ReportErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.MarkError(c.Request.Context(), c.Param("id"), req.Message); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
