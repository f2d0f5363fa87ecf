package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kleanup/dashboard/internal/api/middleware"
	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/listing"
	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/table"
)

// maxUpload bounds a single file field.
const maxUpload = 16 << 20

// ResourceHandler drives the per-session table controllers.
type ResourceHandler struct {
	catalog *catalog.Catalog
}

func NewResourceHandler(cat *catalog.Catalog) *ResourceHandler {
	return &ResourceHandler{catalog: cat}
}

type QueryRequest struct {
	Filters map[string]any `json:"filters"`
	Search  string         `json:"search"`
	Day     *DayRequest    `json:"day"`
}

type DayRequest struct {
	Field string `json:"field" binding:"required"`
	Date  string `json:"date" binding:"required"`
}

type PageSizeRequest struct {
	Size int `json:"size" binding:"required,min=1,max=500"`
}

type DraftRequest struct {
	Fields map[string]any `json:"fields" binding:"required"`
}

func (h *ResourceHandler) table(c *gin.Context) (*table.Controller, bool) {
	ws, ok := middleware.GetWorkspace(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	tbl, err := ws.Table(c.Param("resource"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return tbl, true
}

// snapshot renders tbl together with the labels of the records its reference
// fields point at.
func (h *ResourceHandler) snapshot(c *gin.Context, tbl *table.Controller) table.Snapshot {
	snap := tbl.View()
	if ws, ok := middleware.GetWorkspace(c); ok {
		snap.Refs = ws.References(c.Request.Context(), tbl.Resource())
	}
	return snap
}

// Catalog lists the configured resources and dashboard metrics.
func (h *ResourceHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog)
}

// Page renders the current page, fetching the collection on first use or when
// ?refresh=1 is given.
func (h *ResourceHandler) Page(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	var err error
	if c.Query("refresh") == "1" {
		err = tbl.Refresh(c.Request.Context())
	} else {
		err = tbl.EnsureLoaded(c.Request.Context())
	}
	if err != nil && !errors.Is(err, table.ErrStale) {
		respondErrorWith(c, err, gin.H{"table": tbl.View()})
		return
	}

	c.JSON(http.StatusOK, h.snapshot(c, tbl))
}

func (h *ResourceHandler) Refresh(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	if err := tbl.Refresh(c.Request.Context()); err != nil && !errors.Is(err, table.ErrStale) {
		respondErrorWith(c, err, gin.H{"table": tbl.View()})
		return
	}

	c.JSON(http.StatusOK, h.snapshot(c, tbl))
}

// SetQuery replaces filters, search text and day filter.
func (h *ResourceHandler) SetQuery(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var day *listing.DayFilter
	if req.Day != nil {
		date, err := record.ParseTime(req.Day.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
		day = &listing.DayFilter{Field: req.Day.Field, Date: date}
	}

	if err := tbl.SetQuery(req.Filters, req.Search, day); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tbl.View())
}

func (h *ResourceHandler) Sort(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	if _, err := tbl.ToggleSort(c.Param("field")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tbl.View())
}

func (h *ResourceHandler) NextPage(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}
	tbl.NextPage()
	c.JSON(http.StatusOK, tbl.View())
}

func (h *ResourceHandler) PrevPage(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}
	tbl.PrevPage()
	c.JSON(http.StatusOK, tbl.View())
}

func (h *ResourceHandler) SetPageSize(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	var req PageSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tbl.SetPageSize(req.Size)
	c.JSON(http.StatusOK, tbl.View())
}

// OpenCreate opens the create form, or returns the one already open.
func (h *ResourceHandler) OpenCreate(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	d, err := tbl.OpenCreate()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, d)
}

func (h *ResourceHandler) OpenEdit(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}
	if err := tbl.EnsureLoaded(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	d, err := tbl.OpenEdit(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// GetRecord reads one record fresh from the backend for its detail screen.
func (h *ResourceHandler) GetRecord(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	rec, err := tbl.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": rec})
}

func (h *ResourceHandler) GetDraft(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	d, found := tbl.Draft(c.Param("key"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "draft not found"})
		return
	}

	c.JSON(http.StatusOK, d)
}

// UpdateDraft sets draft fields. Values are coerced to their field kinds.
func (h *ResourceHandler) UpdateDraft(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := tbl.SetDraftFields(c.Param("key"), req.Fields)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// UploadFile attaches the multipart "file" part to a file field of the draft.
func (h *ResourceHandler) UploadFile(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fh.Size > maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	f := record.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}
	d, err := tbl.SetDraftFile(c.Param("key"), c.Param("field"), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// SubmitDraft sends the draft. On failure the response carries the draft with
// the user's input and the field messages.
func (h *ResourceHandler) SubmitDraft(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	key := c.Param("key")
	rec, err := tbl.SubmitDraft(c.Request.Context(), key)
	if err != nil {
		extra := gin.H{}
		if d, found := tbl.Draft(key); found {
			extra["draft"] = d
		}
		respondErrorWith(c, err, extra)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": rec})
}

func (h *ResourceHandler) CancelDraft(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	if err := tbl.CancelDraft(c.Param("key")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RequestDelete asks for confirmation; nothing is sent to the backend.
func (h *ResourceHandler) RequestDelete(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := tbl.RequestDelete(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id, "state": tbl.View().Deletes[id]})
}

func (h *ResourceHandler) ConfirmDelete(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	if err := tbl.ConfirmDelete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ResourceHandler) AbortDelete(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}

	if err := tbl.AbortDelete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ResourceHandler) RunAction(c *gin.Context) {
	tbl, ok := h.table(c)
	if !ok {
		return
	}
	if err := tbl.EnsureLoaded(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	rec, err := tbl.RunAction(c.Request.Context(), c.Param("id"), c.Param("action"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": rec})
}
