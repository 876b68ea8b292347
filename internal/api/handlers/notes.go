package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fiscaldesk/printflow/internal/api/middleware"
	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/notes"
)

type CreateNoteRequest struct {
	Number       string     `json:"number" binding:"required"`
	CustomerName string     `json:"customer_name"`
	TotalCents   int64      `json:"total_cents"`
	Status       string     `json:"status"`
	IssuedAt     *time.Time `json:"issued_at"`
}

type NoteHandler struct {
	store *notes.Store
}

func NewNoteHandler(store *notes.Store) *NoteHandler {
	return &NoteHandler{store: store}
}

func (h *NoteHandler) CreateNote(c *gin.Context) {
	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	note, err := h.store.Create(c.Request.Context(), notes.CreateParams{
		OwnerID:      c.GetString(middleware.ContextUserID),
		Number:       req.Number,
		CustomerName: req.CustomerName,
		TotalCents:   req.TotalCents,
		Status:       db.NoteStatus(req.Status),
		IssuedAt:     req.IssuedAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *NoteHandler) GetNote(c *gin.Context) {
	note, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *NoteHandler) ListNotes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.store.List(c.Request.Context(), c.GetString(middleware.ContextUserID), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": result})
}

// MarkPrinted flips the note's business status once a successful print job
// exists for it.
func (h *NoteHandler) MarkPrinted(c *gin.Context) {
	err := h.store.MarkAsPrinted(c.Request.Context(), c.Param("id"), c.GetString(middleware.ContextUserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NoteHandler) NoteStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
