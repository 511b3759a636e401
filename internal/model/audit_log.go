package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditAction names a recorded maintenance operation
type AuditAction string

const (
	AuditActionCreate          AuditAction = "CREATE"
	AuditActionUpdate          AuditAction = "UPDATE"
	AuditActionApprove         AuditAction = "APPROVE"
	AuditActionReject          AuditAction = "REJECT"
	AuditActionEnable          AuditAction = "ENABLE"
	AuditActionDisable         AuditAction = "DISABLE"
	AuditActionAbort           AuditAction = "ABORT"
	AuditActionComplete        AuditAction = "COMPLETE"
	AuditActionDelete          AuditAction = "DELETE"
	AuditActionExceptionAdd    AuditAction = "EXCEPTION_ADD"
	AuditActionExceptionDelete AuditAction = "EXCEPTION_DELETE"
)

// AuditLog is an immutable record of a maintenance state change.
// WindowID is nulled when the window is deleted; WindowSnapshot survives.
type AuditLog struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ActorID        *int           `gorm:"column:actor_id;index" json:"actorId"`
	Action         AuditAction    `gorm:"column:action;type:varchar(20);not null;index" json:"action"`
	WindowID       *int64         `gorm:"column:window_id;index" json:"windowId"`
	WindowSnapshot string         `gorm:"column:window_snapshot;type:varchar(255)" json:"windowSnapshot"`
	Payload        datatypes.JSON `gorm:"column:payload;type:json" json:"payload"`
	IPAddress      *string        `gorm:"column:ip_address;type:varchar(45)" json:"ipAddress"`
	Timestamp      time.Time      `gorm:"column:timestamp;autoCreateTime;index" json:"timestamp"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "maintenance_audit_logs"
}
