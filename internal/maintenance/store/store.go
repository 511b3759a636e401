package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_maintenance/internal/db"
	"go_maintenance/internal/model"

	"gorm.io/gorm"
)

// Store is the durable home of maintenance windows, their URL exceptions and
// the audit log. Every method resolves its connection through db.FromContext,
// so calls made inside Transaction join that transaction.
type Store struct {
	db *gorm.DB
}

// New creates a window store on top of a gorm connection
func New(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// DB returns the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return db.FromContext(ctx, s.db)
}

// Transaction runs fn inside a single transaction. The context handed to fn
// carries the transaction; any error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(db.WithTx(ctx, tx))
	})
}

// ListParams filters window listings
type ListParams struct {
	Page     int
	PageSize int
	Status   string
	Mode     string
	Enabled  *bool
	Keyword  string
}

// Create validates and inserts a new PENDING window together with its exceptions
func (s *Store) Create(ctx context.Context, w *model.MaintenanceWindow) error {
	w.Status = model.WindowStatusPending
	w.IsEnabled = false
	if err := w.Validate(); err != nil {
		return invalid(err)
	}
	if err := s.conn(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("failed to create maintenance window: %w", err)
	}
	return nil
}

// Get loads a window with its exceptions
func (s *Store) Get(ctx context.Context, id int64) (*model.MaintenanceWindow, error) {
	var w model.MaintenanceWindow
	err := s.conn(ctx).Preload("Exceptions").First(&w, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("maintenance window %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load maintenance window %d: %w", id, err)
	}
	return &w, nil
}

// FindByIDs loads the existing windows among ids; unknown ids are skipped
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]model.MaintenanceWindow, error) {
	var windows []model.MaintenanceWindow
	if len(ids) == 0 {
		return windows, nil
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Order("id ASC").Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch maintenance windows: %w", err)
	}
	return windows, nil
}

// List returns a page of windows, newest first
func (s *Store) List(ctx context.Context, params ListParams) ([]model.MaintenanceWindow, int64, error) {
	query := s.conn(ctx).Model(&model.MaintenanceWindow{})

	if params.Status != "" && params.Status != "all" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Mode != "" {
		query = query.Where("mode = ?", params.Mode)
	}
	if params.Enabled != nil {
		query = query.Where("is_enabled = ?", *params.Enabled)
	}
	if params.Keyword != "" {
		query = query.Where("reason LIKE ?", "%"+params.Keyword+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count maintenance windows: %w", err)
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 15
	}

	var windows []model.MaintenanceWindow
	err := query.
		Preload("Exceptions").
		Order("created_at DESC").
		Order("id DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&windows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch maintenance windows: %w", err)
	}
	return windows, total, nil
}

// ListEnabledApproved returns every window that is enabled and approved, newest first
func (s *Store) ListEnabledApproved(ctx context.Context) ([]model.MaintenanceWindow, error) {
	var windows []model.MaintenanceWindow
	err := s.enabledApproved(ctx).Find(&windows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch enabled maintenance windows: %w", err)
	}
	return windows, nil
}

// FindCurrent returns the winning enabled+approved window, or nil when there is none.
// If several are enabled at once the newest by creation wins.
func (s *Store) FindCurrent(ctx context.Context) (*model.MaintenanceWindow, error) {
	var w model.MaintenanceWindow
	err := s.enabledApproved(ctx).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch current maintenance window: %w", err)
	}
	return &w, nil
}

func (s *Store) enabledApproved(ctx context.Context) *gorm.DB {
	return s.conn(ctx).
		Preload("Exceptions").
		Where("is_enabled = ? AND status = ?", true, model.WindowStatusApproved).
		Order("created_at DESC").
		Order("id DESC")
}

// CompareAndSwapStatus applies updates only if the window is still in status from.
// ErrStaleStatus means another writer got there first.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id int64, from model.WindowStatus, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	res := s.conn(ctx).
		Model(&model.MaintenanceWindow{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update maintenance window %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// UpdateDetails rewrites reason, mode and schedule of a PENDING window
func (s *Store) UpdateDetails(ctx context.Context, w *model.MaintenanceWindow) error {
	if err := w.Validate(); err != nil {
		return invalid(err)
	}
	return s.CompareAndSwapStatus(ctx, w.ID, model.WindowStatusPending, map[string]interface{}{
		"reason":     w.Reason,
		"mode":       w.Mode,
		"start_time": w.StartTime,
		"end_time":   w.EndTime,
	})
}

// Delete removes PENDING windows and their exceptions. If any requested window is in
// a protected status nothing is deleted and a *ProtectedDeletionError names the blockers.
// Audit rows keep their snapshot; their window reference is cleared.
func (s *Store) Delete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int
	err := s.Transaction(ctx, func(ctx context.Context) error {
		conn := s.conn(ctx)

		var found []model.MaintenanceWindow
		if err := conn.Select("id", "status").Where("id IN ?", ids).Find(&found).Error; err != nil {
			return fmt.Errorf("failed to load maintenance windows: %w", err)
		}

		var blocked []int64
		for _, w := range found {
			if w.Status.Protected() {
				blocked = append(blocked, w.ID)
			}
		}
		if len(blocked) > 0 {
			return &ProtectedDeletionError{Requested: len(ids), BlockedIDs: blocked}
		}
		if len(found) == 0 {
			return nil
		}

		foundIDs := make([]int64, len(found))
		for i, w := range found {
			foundIDs[i] = w.ID
		}

		if err := conn.Where("window_id IN ?", foundIDs).Delete(&model.URLException{}).Error; err != nil {
			return fmt.Errorf("failed to delete url exceptions: %w", err)
		}
		if err := conn.Model(&model.AuditLog{}).Where("window_id IN ?", foundIDs).Update("window_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach audit logs: %w", err)
		}

		res := conn.Where("id IN ? AND status = ?", foundIDs, model.WindowStatusPending).Delete(&model.MaintenanceWindow{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete maintenance windows: %w", res.Error)
		}
		if int(res.RowsAffected) != len(foundIDs) {
			// a window left PENDING between the check and the delete
			return &ProtectedDeletionError{Requested: len(ids), BlockedIDs: s.protectedAmong(ctx, foundIDs)}
		}
		deleted = len(foundIDs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store) protectedAmong(ctx context.Context, ids []int64) []int64 {
	var blocked []int64
	s.conn(ctx).Model(&model.MaintenanceWindow{}).
		Where("id IN ? AND status IN ?", ids, model.ProtectedStatuses).
		Pluck("id", &blocked)
	return blocked
}

// AddException attaches a URL exception to an existing window
func (s *Store) AddException(ctx context.Context, e *model.URLException) error {
	if err := e.Validate(); err != nil {
		return invalid(err)
	}
	var count int64
	if err := s.conn(ctx).Model(&model.MaintenanceWindow{}).Where("id = ?", e.WindowID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check maintenance window: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("maintenance window %d: %w", e.WindowID, ErrNotFound)
	}
	if err := s.conn(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to create url exception: %w", err)
	}
	return nil
}

// DeleteException removes one exception from a window
func (s *Store) DeleteException(ctx context.Context, windowID, exceptionID int64) (*model.URLException, error) {
	var e model.URLException
	err := s.conn(ctx).Where("id = ? AND window_id = ?", exceptionID, windowID).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("url exception %d: %w", exceptionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load url exception: %w", err)
	}
	if err := s.conn(ctx).Delete(&e).Error; err != nil {
		return nil, fmt.Errorf("failed to delete url exception: %w", err)
	}
	return &e, nil
}

// AuditParams filters audit log listings
type AuditParams struct {
	Page     int
	PageSize int
	WindowID *int64
	Action   string
}

// AppendAudit inserts an audit row. There is deliberately no update or delete counterpart.
func (s *Store) AppendAudit(ctx context.Context, entry *model.AuditLog) error {
	if err := s.conn(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns audit entries in reverse chronological order
func (s *Store) ListAuditLogs(ctx context.Context, params AuditParams) ([]model.AuditLog, int64, error) {
	query := s.conn(ctx).Model(&model.AuditLog{})
	if params.WindowID != nil {
		query = query.Where("window_id = ?", *params.WindowID)
	}
	if params.Action != "" {
		query = query.Where("action = ?", params.Action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}

	var logs []model.AuditLog
	err := query.
		Order("timestamp DESC").
		Order("id DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}

// FindUserByUsername resolves an operator by name
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.conn(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts an operator account
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.conn(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
