package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/form"
	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/core/session"
	"github.com/kleanup/dashboard/internal/core/table"
	"github.com/kleanup/dashboard/internal/core/validation"
)

// respondError writes err as {"error": ...}. Backend failures carry the same
// message the user was notified with.
func respondError(c *gin.Context, err error) {
	respondErrorWith(c, err, nil)
}

// respondErrorWith is respondError with extra response fields, such as the
// draft that failed to submit.
func respondErrorWith(c *gin.Context, err error, extra gin.H) {
	status, body := errorBody(err)
	for k, v := range extra {
		body[k] = v
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

func errorBody(err error) (int, gin.H) {
	if ve := validation.GetValidationErrors(err); ve != nil {
		return http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": ve.Fields()}
	}

	var re *resource.Error
	if errors.As(err, &re) {
		body := gin.H{"error": re.UserMessage()}
		if len(re.Fields) > 0 {
			body["details"] = re.Fields
		}
		switch re.Kind {
		case resource.KindNotFound:
			return http.StatusNotFound, body
		case resource.KindValidation:
			return http.StatusBadRequest, body
		case resource.KindAuth:
			return http.StatusUnauthorized, body
		case resource.KindNetwork:
			return http.StatusServiceUnavailable, body
		case resource.KindCanceled:
			return http.StatusRequestTimeout, body
		default:
			return http.StatusBadGateway, body
		}
	}

	switch {
	case errors.Is(err, form.ErrBusy):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, form.ErrNotConfirming):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, form.ErrNoChanges):
		return http.StatusBadRequest, gin.H{"error": "No changes to save"}
	case errors.Is(err, form.ErrNoDraft):
		return http.StatusNotFound, gin.H{"error": "draft not found"}
	case errors.Is(err, table.ErrRecordNotFound):
		return http.StatusNotFound, gin.H{"error": "record not found"}
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": "resource not found"}
	case errors.Is(err, catalog.ErrActionNotFound):
		return http.StatusNotFound, gin.H{"error": "action not found"}
	case errors.Is(err, form.ErrReadOnlyField),
		errors.Is(err, record.ErrUnknownField),
		errors.Is(err, record.ErrInvalidValue):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, table.ErrClosed), errors.Is(err, session.ErrLoggedOut):
		return http.StatusUnauthorized, gin.H{"error": "session has ended"}
	}
	return http.StatusInternalServerError, gin.H{"error": "Something went wrong"}
}
