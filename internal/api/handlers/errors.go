package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fiscaldesk/printflow/internal/jobstore"
	"github.com/fiscaldesk/printflow/internal/notes"
)

// writeError maps store errors onto HTTP statuses. Unknown errors become a
// plain 500 without leaking internals.
func writeError(c *gin.Context, err error) {
	var validationErr *jobstore.ValidationError
	var conflictErr *jobstore.ConflictError
	var stateErr *jobstore.InvalidStateError
	var preconditionErr *jobstore.PreconditionError
	var forbiddenErr *jobstore.ForbiddenError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": conflictErr.Error()})
	case errors.Is(err, jobstore.ErrNotFound), errors.Is(err, notes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, jobstore.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.As(err, &preconditionErr):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": preconditionErr.Error()})
	case errors.As(err, &forbiddenErr):
		c.JSON(http.StatusForbidden, gin.H{"error": forbiddenErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
