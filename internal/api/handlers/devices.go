package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fiscaldesk/printflow/internal/db"
)

type RegisterDeviceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
	Key  string `json:"key" binding:"required,min=12"`
}

type DeviceHandler struct {
	devices *db.DeviceStore
}

func NewDeviceHandler(devices *db.DeviceStore) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Key), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash key"})
		return
	}

	device := &db.Device{
		ID:        req.ID,
		Name:      req.Name,
		KeyHash:   string(hash),
		CreatedAt: time.Now().UTC(),
	}
	if device.ID == "" {
		device.ID = uuid.NewString()
	}

	if err := h.devices.Create(c.Request.Context(), device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}
