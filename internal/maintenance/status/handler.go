// Package status serves the public maintenance status document.
package status

import (
	"context"
	"math"
	"net/http"
	"time"

	"go_maintenance/internal/model"

	"github.com/gin-gonic/gin"
)

// Source yields the winning window
type Source interface {
	Current(ctx context.Context) *model.MaintenanceWindow
}

// Window is the public view of an active window
type Window struct {
	Reason                    string     `json:"reason"`
	StartTime                 *time.Time `json:"start_time"`
	EndTime                   *time.Time `json:"end_time"`
	ExpectedDurationRemaining *float64   `json:"expected_duration_remaining"`
}

// Response is the status document
type Response struct {
	SystemStatus      string    `json:"system_status"`
	Timestamp         time.Time `json:"timestamp"`
	MaintenanceWindow *Window   `json:"maintenance_window"`
}

// Handler answers status requests
type Handler struct {
	source Source
	now    func() time.Time
}

// NewHandler creates a status handler
func NewHandler(source Source) *Handler {
	return &Handler{source: source, now: time.Now}
}

// Build computes the status document. It applies the same schedule predicate as
// request enforcement so the two never disagree.
func (h *Handler) Build(ctx context.Context) Response {
	now := h.now()
	resp := Response{SystemStatus: "operational", Timestamp: now}

	w := h.source.Current(ctx)
	if w == nil || !w.WithinSchedule(now) {
		return resp
	}

	resp.SystemStatus = string(w.Mode)
	resp.MaintenanceWindow = &Window{
		Reason:    w.Reason,
		StartTime: w.StartTime,
		EndTime:   w.EndTime,
	}
	if w.EndTime != nil {
		if remaining := w.EndTime.Sub(now).Seconds(); remaining > 0 {
			remaining = math.Round(remaining*1000) / 1000
			resp.MaintenanceWindow.ExpectedDurationRemaining = &remaining
		}
	}
	return resp
}

// Get GET /maintenance/status/
func (h *Handler) Get(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=60")
	c.JSON(http.StatusOK, h.Build(c.Request.Context()))
}
