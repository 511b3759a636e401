package windows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go_maintenance/api/v1/middleware"
	"go_maintenance/internal/httpx"
	"go_maintenance/internal/maintenance/audit"
	"go_maintenance/internal/maintenance/lifecycle"
	"go_maintenance/internal/maintenance/store"
	"go_maintenance/internal/model"

	"github.com/gin-gonic/gin"
)

// ListRequest represents list windows request
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Status   string `form:"status"`
	Mode     string `form:"mode"`
	Enabled  *bool  `form:"enabled"`
	Keyword  string `form:"keyword"`
}

// ExceptionRequest represents a URL exception in a create request
type ExceptionRequest struct {
	Pattern     string `json:"pattern" binding:"required,max=255"`
	Description string `json:"description" binding:"max=100"`
}

// CreateRequest represents create window request
type CreateRequest struct {
	Mode       string             `json:"mode" binding:"omitempty,oneof=maintenance read_only"`
	Reason     string             `json:"reason" binding:"required"`
	StartTime  *time.Time         `json:"startTime"`
	EndTime    *time.Time         `json:"endTime"`
	Exceptions []ExceptionRequest `json:"exceptions" binding:"dive"`
}

// UpdateRequest represents update window request
type UpdateRequest struct {
	ID            int64      `json:"id" binding:"required"`
	Mode          *string    `json:"mode" binding:"omitempty,oneof=maintenance read_only"`
	Reason        *string    `json:"reason"`
	StartTime     *time.Time `json:"startTime"`
	EndTime       *time.Time `json:"endTime"`
	ClearSchedule bool       `json:"clearSchedule"`
}

// IDsRequest represents a batch request
type IDsRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1"`
}

// IDRequest represents a single window request
type IDRequest struct {
	ID int64 `json:"id" binding:"required"`
}

// AddExceptionRequest represents add exception request
type AddExceptionRequest struct {
	WindowID    int64  `json:"windowId" binding:"required"`
	Pattern     string `json:"pattern" binding:"required,max=255"`
	Description string `json:"description" binding:"max=100"`
}

// DeleteExceptionRequest represents delete exception request
type DeleteExceptionRequest struct {
	WindowID    int64 `json:"windowId" binding:"required"`
	ExceptionID int64 `json:"exceptionId" binding:"required"`
}

// AuditListRequest represents list audit logs request
type AuditListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	WindowID *int64 `form:"windowId"`
	Action   string `form:"action"`
}

// AuditItem is an audit row with its display label
type AuditItem struct {
	model.AuditLog
	Window string `json:"window"`
}

// Handler handles maintenance window API
type Handler struct {
	engine *lifecycle.Engine
	store  *store.Store
}

// NewHandler creates a new windows handler
func NewHandler(engine *lifecycle.Engine) *Handler {
	return &Handler{engine: engine, store: engine.Store()}
}

func actorOf(c *gin.Context) lifecycle.Actor {
	actor := lifecycle.Actor{IP: c.ClientIP()}
	if uid := c.GetInt(middleware.KeyUID); uid > 0 {
		actor.UserID = model.UPtr(uid)
	}
	return actor
}

// fail maps domain errors onto API errors
func fail(c *gin.Context, err error) {
	var pe *store.ProtectedDeletionError
	switch {
	case errors.As(err, &pe):
		httpx.FailErr(c, httpx.ErrProtectedDeletion(pe.Error()).WithData(gin.H{
			"requested":  pe.Requested,
			"blocked":    pe.Blocked(),
			"blockedIds": pe.BlockedIDs,
		}))
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		httpx.FailErr(c, httpx.ErrStateConflict(err.Error()))
	case errors.Is(err, store.ErrNotFound):
		httpx.FailErr(c, httpx.ErrNotFound(err.Error()))
	case errors.Is(err, store.ErrInvalidWindow):
		httpx.FailErr(c, httpx.ErrParamIllegal(err.Error()))
	default:
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
	}
}

// List handles GET /windows
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 15
	}

	items, total, err := h.store.List(c.Request.Context(), store.ListParams{
		Page:     req.Page,
		PageSize: req.PageSize,
		Status:   req.Status,
		Mode:     req.Mode,
		Enabled:  req.Enabled,
		Keyword:  req.Keyword,
	})
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OKItems(c, items, total, req.Page, req.PageSize)
}

// Get handles GET /windows/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid window id"))
		return
	}
	w, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, w)
}

// Create handles POST /windows/create
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	params := lifecycle.CreateParams{
		Mode:      model.MaintenanceMode(req.Mode),
		Reason:    req.Reason,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	for _, ex := range req.Exceptions {
		params.Exceptions = append(params.Exceptions, lifecycle.ExceptionParams{Pattern: ex.Pattern, Description: ex.Description})
	}

	w, err := h.engine.Create(c.Request.Context(), params, actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OKMsg(c, "maintenance window created, pending approval", w)
}

// Update handles POST /windows/update
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	params := lifecycle.UpdateParams{
		ID:            req.ID,
		Reason:        req.Reason,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		ClearSchedule: req.ClearSchedule,
	}
	if req.Mode != nil {
		mode := model.MaintenanceMode(*req.Mode)
		params.Mode = &mode
	}

	w, err := h.engine.Update(c.Request.Context(), params, actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, w)
}

// Delete handles POST /windows/delete
func (h *Handler) Delete(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	deleted, err := h.engine.Delete(c.Request.Context(), req.IDs, actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"deleted": deleted})
}

type batchOp func(ctx context.Context, ids []int64, actor lifecycle.Actor) lifecycle.BatchResult

// batch runs op over every id; one failing window never stops the rest
func (h *Handler) batch(c *gin.Context, op batchOp) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	httpx.OK(c, op(c.Request.Context(), req.IDs, actorOf(c)))
}

// Approve handles POST /windows/approve
func (h *Handler) Approve(c *gin.Context) {
	h.batch(c, h.engine.ApproveMany)
}

// Reject handles POST /windows/reject
func (h *Handler) Reject(c *gin.Context) {
	h.batch(c, h.engine.RejectMany)
}

// Abort handles POST /windows/abort
func (h *Handler) Abort(c *gin.Context) {
	h.batch(c, h.engine.AbortMany)
}

// Complete handles POST /windows/complete
func (h *Handler) Complete(c *gin.Context) {
	h.batch(c, h.engine.CompleteMany)
}

// Enable handles POST /windows/enable
func (h *Handler) Enable(c *gin.Context) {
	h.single(c, h.engine.Enable)
}

// Disable handles POST /windows/disable
func (h *Handler) Disable(c *gin.Context) {
	h.single(c, h.engine.Disable)
}

func (h *Handler) single(c *gin.Context, op func(ctx context.Context, id int64, actor lifecycle.Actor) (*model.MaintenanceWindow, error)) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	w, err := op(c.Request.Context(), req.ID, actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, w)
}

// DisableAll handles POST /windows/disable-all by completing every active window
func (h *Handler) DisableAll(c *gin.Context) {
	res, err := h.engine.CompleteAllActive(c.Request.Context(), actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, res)
}

// AddException handles POST /windows/exceptions/add
func (h *Handler) AddException(c *gin.Context) {
	var req AddExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	ex, err := h.engine.AddException(c.Request.Context(), req.WindowID, lifecycle.ExceptionParams{
		Pattern:     req.Pattern,
		Description: req.Description,
	}, actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, ex)
}

// DeleteException handles POST /windows/exceptions/delete
func (h *Handler) DeleteException(c *gin.Context) {
	var req DeleteExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if err := h.engine.DeleteException(c.Request.Context(), req.WindowID, req.ExceptionID, actorOf(c)); err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, nil)
}

// AuditLogs handles GET /audit-logs
func (h *Handler) AuditLogs(c *gin.Context) {
	var req AuditListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	logs, total, err := h.store.ListAuditLogs(c.Request.Context(), store.AuditParams{
		Page:     req.Page,
		PageSize: req.PageSize,
		WindowID: req.WindowID,
		Action:   req.Action,
	})
	if err != nil {
		fail(c, err)
		return
	}

	items := make([]AuditItem, len(logs))
	for i := range logs {
		items[i] = AuditItem{AuditLog: logs[i], Window: audit.Describe(&logs[i])}
	}
	httpx.OKItems(c, items, total, req.Page, req.PageSize)
}
