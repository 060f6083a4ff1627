package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/reelkitchen/backend/internal/logger"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

var statusBySentinel = []struct {
	err    error
	status int
}{
	{types.ErrNotFound, http.StatusNotFound},
	{types.ErrNoCandidates, http.StatusNotFound},
	{types.ErrForbidden, http.StatusForbidden},
	{types.ErrConflict, http.StatusConflict},
	{types.ErrInvalidInput, http.StatusBadRequest},
	{types.ErrUnauthorized, http.StatusUnauthorized},
	{types.ErrUpstream, http.StatusBadGateway},
}

// StatusForError maps service errors to HTTP status codes
func StatusForError(err error) int {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders the last error a handler attached with c.Error as JSON.
// Server errors are logged and their details withheld from the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status := StatusForError(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			logger.FromGin(c).Error("Request failed", zap.Error(err))
			msg = "internal server error"
		}
		c.JSON(status, ErrorResponse{Error: msg})
	}
}
