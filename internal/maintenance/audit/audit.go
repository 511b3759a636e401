// Package audit records maintenance operations in the append-only audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go_maintenance/internal/model"

	"gorm.io/datatypes"
)

// Appender persists audit rows. *store.Store satisfies it.
type Appender interface {
	AppendAudit(ctx context.Context, entry *model.AuditLog) error
}

// Entry describes one recorded action
type Entry struct {
	ActorID *int
	Action  model.AuditAction
	Window  *model.MaintenanceWindow
	Payload map[string]interface{}
	IP      string
}

// Logger writes entries through an Appender. When ctx carries a transaction the
// row lands in it, so the state change and its audit entry commit together.
type Logger struct {
	appender Appender
}

// NewLogger creates an audit logger
func NewLogger(appender Appender) *Logger {
	return &Logger{appender: appender}
}

// Log builds the row, capturing the window snapshot as of now, and appends it
func (l *Logger) Log(ctx context.Context, e Entry) error {
	row, err := Build(e)
	if err != nil {
		return err
	}
	return l.appender.AppendAudit(ctx, row)
}

// Build turns an Entry into the stored row
func Build(e Entry) (*model.AuditLog, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	row := &model.AuditLog{
		ActorID: e.ActorID,
		Action:  e.Action,
		Payload: datatypes.JSON(raw),
	}
	if e.Window != nil {
		id := e.Window.ID
		row.WindowID = &id
		row.WindowSnapshot = e.Window.Snapshot()
	}
	if e.IP != "" {
		ip := e.IP
		row.IPAddress = &ip
	}
	return row, nil
}

// Describe renders an audit row for listings, falling back to the snapshot once the
// window itself is gone.
func Describe(row *model.AuditLog) string {
	if row.WindowID != nil {
		return fmt.Sprintf("%s (%d)", row.WindowSnapshot, *row.WindowID)
	}
	if row.WindowSnapshot != "" {
		return row.WindowSnapshot + " (Deleted)"
	}
	return "Deleted Window (No Snapshot)"
}
