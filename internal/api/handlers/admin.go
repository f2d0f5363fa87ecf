package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kleanup/dashboard/internal/api/middleware"
	"github.com/kleanup/dashboard/internal/core/audit"
	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/stats"
)

type AuditQuerier interface {
	Query(ctx context.Context, f audit.Filter, limit, offset int) ([]*audit.Entry, int, error)
}

type AdminHandler struct {
	catalog *catalog.Catalog
	audit   AuditQuerier
}

// NewAdminHandler serves dashboard stats and the audit log. auditLog may be nil
// when no database is configured.
func NewAdminHandler(cat *catalog.Catalog, auditLog AuditQuerier) *AdminHandler {
	return &AdminHandler{catalog: cat, audit: auditLog}
}

// Stats returns the headline counters. A resource that cannot be fetched marks
// its metrics with an error instead of failing the response.
func (h *AdminHandler) Stats(c *gin.Context) {
	ws, ok := middleware.GetWorkspace(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	metrics := stats.Compute(c.Request.Context(), h.catalog.Metrics, ws)
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

// QueryAuditLogs returns audit entries, newest first. Supported filters are
// resource, record_id, user_id, action (comma separated) and result.
func (h *AdminHandler) QueryAuditLogs(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log is not enabled"})
		return
	}

	limit := audit.DefaultLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= audit.MaxLimit {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	filter := audit.Filter{
		Resource: c.Query("resource"),
		RecordID: c.Query("record_id"),
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Result:   c.Query("result"),
	}

	logs, total, err := h.audit.Query(c.Request.Context(), filter, limit, offset)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
