package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "cellfate/internal/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusOf(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.CodeValidationError, apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeNumericalError, apperrors.CodeFitFailed:
		return http.StatusUnprocessableEntity
	case apperrors.CodeExternalDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Code: apperrors.GetCode(err)})
}

// bindJSON decodes the body, answering 400 on malformed input.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWithError(c, apperrors.InvalidInput("malformed request body: "+err.Error()))
		return false
	}
	return true
}
