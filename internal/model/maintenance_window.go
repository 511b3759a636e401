package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaintenanceMode selects how requests are enforced while a window is active
type MaintenanceMode string

const (
	MaintenanceModeMaintenance MaintenanceMode = "maintenance"
	MaintenanceModeReadOnly    MaintenanceMode = "read_only"
)

// Valid reports whether the mode is known
func (m MaintenanceMode) Valid() bool {
	return m == MaintenanceModeMaintenance || m == MaintenanceModeReadOnly
}

// Display returns the human label of the mode
func (m MaintenanceMode) Display() string {
	switch m {
	case MaintenanceModeMaintenance:
		return "Full Maintenance (503)"
	case MaintenanceModeReadOnly:
		return "Read Only (No Writes)"
	}
	return string(m)
}

// WindowStatus is the lifecycle state of a maintenance window
type WindowStatus string

const (
	WindowStatusPending   WindowStatus = "pending"
	WindowStatusApproved  WindowStatus = "approved"
	WindowStatusRejected  WindowStatus = "rejected"
	WindowStatusAborted   WindowStatus = "aborted"
	WindowStatusCompleted WindowStatus = "completed"
)

// Valid reports whether the status is known
func (s WindowStatus) Valid() bool {
	switch s {
	case WindowStatusPending, WindowStatusApproved, WindowStatusRejected,
		WindowStatusAborted, WindowStatusCompleted:
		return true
	}
	return false
}

// Protected reports whether a window in this status may no longer be deleted.
// Anything that reached a decision point stays in the audit trail.
func (s WindowStatus) Protected() bool {
	return s != WindowStatusPending
}

// ProtectedStatuses lists the statuses that forbid deletion
var ProtectedStatuses = []WindowStatus{
	WindowStatusApproved,
	WindowStatusRejected,
	WindowStatusAborted,
	WindowStatusCompleted,
}

// MaintenanceWindow represents a governed maintenance directive
type MaintenanceWindow struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Mode         MaintenanceMode `gorm:"column:mode;type:varchar(20);not null;default:maintenance" json:"mode"`
	Status       WindowStatus    `gorm:"column:status;type:varchar(20);not null;default:pending;index:idx_window_active,priority:2" json:"status"`
	IsEnabled    bool            `gorm:"column:is_enabled;not null;default:false;index:idx_window_active,priority:1" json:"isEnabled"`
	Reason       string          `gorm:"column:reason;type:text;not null" json:"reason"`
	StartTime    *time.Time      `gorm:"column:start_time" json:"startTime"`
	EndTime      *time.Time      `gorm:"column:end_time" json:"endTime"`
	CreatedByID  *int            `gorm:"column:created_by_id;index" json:"createdById"`
	ApprovedByID *int            `gorm:"column:approved_by_id;index" json:"approvedById"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_window_active,priority:3" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	Exceptions   []URLException  `gorm:"foreignKey:WindowID;constraint:OnDelete:CASCADE" json:"exceptions"`
}

// TableName specifies the table name for MaintenanceWindow
func (MaintenanceWindow) TableName() string {
	return "maintenance_windows"
}

// Validate checks the record-level invariants of a window
func (w *MaintenanceWindow) Validate() error {
	if !w.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", w.Mode)
	}
	if !w.Status.Valid() {
		return fmt.Errorf("unknown status %q", w.Status)
	}
	if strings.TrimSpace(w.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	if w.StartTime != nil && w.EndTime != nil && w.StartTime.After(*w.EndTime) {
		return fmt.Errorf("end time must be after start time")
	}
	if w.IsEnabled && w.Status != WindowStatusApproved {
		return fmt.Errorf("only approved maintenance windows can be enabled")
	}
	for _, e := range w.Exceptions {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WithinSchedule reports whether now falls inside the optional start/end bounds.
// Both bounds are inclusive.
func (w *MaintenanceWindow) WithinSchedule(now time.Time) bool {
	if w.StartTime != nil && now.Before(*w.StartTime) {
		return false
	}
	if w.EndTime != nil && now.After(*w.EndTime) {
		return false
	}
	return true
}

// IsActiveAt reports whether the window is enabled and inside its schedule
func (w *MaintenanceWindow) IsActiveAt(now time.Time) bool {
	return w.IsEnabled && w.WithinSchedule(now)
}

// MatchesException reports whether the slash-stripped path hits one of the window's exceptions
func (w *MaintenanceWindow) MatchesException(path string) bool {
	for i := range w.Exceptions {
		if w.Exceptions[i].Matches(path) {
			return true
		}
	}
	return false
}

// Snapshot renders the permanent description stored alongside audit entries
func (w *MaintenanceWindow) Snapshot() string {
	state := "DISABLED"
	if w.IsEnabled {
		state = "ENABLED"
	}
	return fmt.Sprintf("%s - %s (%s)", w.Mode.Display(), state, w.CreatedAt.Format("2006-01-02 15:04"))
}

// URLException is a per-window path pattern exempt from enforcement
type URLException struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WindowID    int64  `gorm:"column:window_id;not null;index" json:"windowId"`
	Pattern     string `gorm:"column:pattern;type:varchar(255);not null" json:"pattern"`
	Description string `gorm:"column:description;type:varchar(100)" json:"description"`

	compiled *regexp.Regexp
}

// TableName specifies the table name for URLException
func (URLException) TableName() string {
	return "maintenance_url_exceptions"
}

// Validate checks that the pattern compiles
func (e *URLException) Validate() error {
	if strings.TrimSpace(e.Pattern) == "" {
		return fmt.Errorf("exception pattern is required")
	}
	if _, err := CompilePathPattern(e.Pattern); err != nil {
		return fmt.Errorf("invalid exception pattern %q: %w", e.Pattern, err)
	}
	return nil
}

// Matches reports whether the slash-stripped path matches the exception.
// Matching is anchored at the start of the path, the way the global ignore list is.
func (e *URLException) Matches(path string) bool {
	re := e.compiled
	if re == nil {
		var err error
		re, err = CompilePathPattern(e.Pattern)
		if err != nil {
			return false
		}
	}
	return re.MatchString(path)
}

// Compile caches the compiled pattern on the exception
func (e *URLException) Compile() error {
	re, err := CompilePathPattern(e.Pattern)
	if err != nil {
		return err
	}
	e.compiled = re
	return nil
}

// CompilePathPattern compiles a path pattern with its leading slash removed and the
// match anchored at the start of the path. "^/api/health/" and "api/health/" are
// equivalent.
func CompilePathPattern(pattern string) (*regexp.Regexp, error) {
	p := strings.TrimPrefix(pattern, "^")
	p = strings.TrimLeft(p, "/")
	return regexp.Compile("^(?:" + p + ")")
}

// StripPath removes the leading slashes from a request path before matching
func StripPath(path string) string {
	return strings.TrimLeft(path, "/")
}
