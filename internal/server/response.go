package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/kb"
	"github.com/refinelab/modeldash/internal/vectorstore"
)

// APIError is the error payload returned by all endpoints.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps an APIError for JSON responses.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondDomainError maps domain sentinels to HTTP statuses.
func respondDomainError(c *gin.Context, err error) {
	var partial *kb.PartialIngestError

	switch {
	case errors.Is(err, kb.ErrInvalidArgument):
		respondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, kb.ErrDuplicateMapping), errors.Is(err, db.ErrDuplicate):
		respondError(c, http.StatusConflict, "duplicate_mapping", err)
	case errors.Is(err, kb.ErrNotFound), errors.Is(err, db.ErrNotFound),
		errors.Is(err, vectorstore.ErrCollectionNotFound):
		respondError(c, http.StatusNotFound, "not_found", err)
	case errors.As(err, &partial):
		respondError(c, http.StatusInternalServerError, "partial_ingest_failure", err)
	default:
		respondError(c, http.StatusInternalServerError, "internal", err)
	}
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
