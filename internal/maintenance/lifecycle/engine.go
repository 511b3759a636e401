package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"go_maintenance/internal/maintenance/audit"
	"go_maintenance/internal/maintenance/store"
	"go_maintenance/internal/model"

	"github.com/sirupsen/logrus"
)

// Invalidator drops the cached active window
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Notifier is told about every committed change
type Notifier interface {
	Notify(ev Event)
}

// Event describes a committed change to a window
type Event struct {
	WindowID  int64              `json:"windowId"`
	Action    model.AuditAction  `json:"action"`
	Status    model.WindowStatus `json:"status"`
	IsEnabled bool               `json:"isEnabled"`
}

// Actor identifies who performs an operation and from where
type Actor struct {
	UserID *int
	IP     string
}

// Config holds the dependencies of the engine
type Config struct {
	Store       *store.Store
	Invalidator Invalidator
	Notifier    Notifier
	Logger      *logrus.Entry
	Now         func() time.Time
}

// Engine enforces the window state machine. Each transition and its audit row
// are committed in one transaction; the active-window cache is invalidated after
// every successful mutation.
type Engine struct {
	store       *store.Store
	audit       *audit.Logger
	invalidator Invalidator
	notifier    Notifier
	logger      *logrus.Entry
	now         func() time.Time
}

// NewEngine creates a lifecycle engine
func NewEngine(cfg *Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:       cfg.Store,
		audit:       audit.NewLogger(cfg.Store),
		invalidator: cfg.Invalidator,
		notifier:    cfg.Notifier,
		logger:      logger.WithField("component", "lifecycle"),
		now:         now,
	}
}

// ExceptionParams describes a URL exception to attach
type ExceptionParams struct {
	Pattern     string
	Description string
}

// CreateParams describes a new window
type CreateParams struct {
	Mode       model.MaintenanceMode
	Reason     string
	StartTime  *time.Time
	EndTime    *time.Time
	Exceptions []ExceptionParams
}

// Create stores a new PENDING window
func (e *Engine) Create(ctx context.Context, params CreateParams, actor Actor) (*model.MaintenanceWindow, error) {
	w := &model.MaintenanceWindow{
		Mode:        params.Mode,
		Reason:      strings.TrimSpace(params.Reason),
		StartTime:   params.StartTime,
		EndTime:     params.EndTime,
		CreatedByID: actor.UserID,
	}
	if w.Mode == "" {
		w.Mode = model.MaintenanceModeMaintenance
	}
	for _, ex := range params.Exceptions {
		w.Exceptions = append(w.Exceptions, model.URLException{Pattern: ex.Pattern, Description: ex.Description})
	}

	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		if err := e.store.Create(ctx, w); err != nil {
			return err
		}
		return e.audit.Log(ctx, audit.Entry{
			ActorID: actor.UserID,
			Action:  model.AuditActionCreate,
			Window:  w,
			Payload: map[string]interface{}{
				"mode":       w.Mode,
				"reason":     w.Reason,
				"start_time": w.StartTime,
				"end_time":   w.EndTime,
				"exceptions": len(w.Exceptions),
			},
			IP: actor.IP,
		})
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, w, model.AuditActionCreate)
	return w, nil
}

// UpdateParams describes an edit of a PENDING window. Nil fields are left unchanged.
type UpdateParams struct {
	ID            int64
	Mode          *model.MaintenanceMode
	Reason        *string
	StartTime     *time.Time
	EndTime       *time.Time
	ClearSchedule bool
}

// Update edits reason, mode or schedule. Only PENDING windows can be edited;
// anything that has been decided on is frozen.
func (e *Engine) Update(ctx context.Context, params UpdateParams, actor Actor) (*model.MaintenanceWindow, error) {
	var w *model.MaintenanceWindow
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		w, err = e.store.Get(ctx, params.ID)
		if err != nil {
			return err
		}
		if w.Status != model.WindowStatusPending {
			return invalidTransition(w, "update", "only PENDING maintenance windows can be edited")
		}

		changes := map[string]interface{}{}
		if params.Mode != nil {
			w.Mode = *params.Mode
			changes["mode"] = w.Mode
		}
		if params.Reason != nil {
			w.Reason = strings.TrimSpace(*params.Reason)
			changes["reason"] = w.Reason
		}
		if params.ClearSchedule {
			w.StartTime, w.EndTime = nil, nil
			changes["start_time"], changes["end_time"] = nil, nil
		}
		if params.StartTime != nil {
			w.StartTime = params.StartTime
			changes["start_time"] = w.StartTime
		}
		if params.EndTime != nil {
			w.EndTime = params.EndTime
			changes["end_time"] = w.EndTime
		}

		if err := e.store.UpdateDetails(ctx, w); err != nil {
			if errors.Is(err, store.ErrStaleStatus) {
				return invalidTransition(w, "update", "window left PENDING concurrently")
			}
			return err
		}
		return e.audit.Log(ctx, audit.Entry{
			ActorID: actor.UserID,
			Action:  model.AuditActionUpdate,
			Window:  w,
			Payload: changes,
			IP:      actor.IP,
		})
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, w, model.AuditActionUpdate)
	return w, nil
}

// transition describes one guarded state change
type transition struct {
	op     string
	action model.AuditAction
	// check returns a non-empty reason when the precondition fails
	check func(w *model.MaintenanceWindow, now time.Time) string
	// apply mutates w and returns the columns to persist
	apply func(w *model.MaintenanceWindow, now time.Time) map[string]interface{}
}

func (e *Engine) run(ctx context.Context, id int64, t transition, actor Actor) (*model.MaintenanceWindow, error) {
	var w *model.MaintenanceWindow
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		w, err = e.store.Get(ctx, id)
		if err != nil {
			return err
		}

		now := e.now()
		if reason := t.check(w, now); reason != "" {
			return invalidTransition(w, t.op, reason)
		}

		from := w.Status
		updates := t.apply(w, now)
		if err := e.store.CompareAndSwapStatus(ctx, w.ID, from, updates); err != nil {
			if errors.Is(err, store.ErrStaleStatus) {
				return invalidTransition(w, t.op, "status changed concurrently")
			}
			return err
		}

		return e.audit.Log(ctx, audit.Entry{
			ActorID: actor.UserID,
			Action:  t.action,
			Window:  w,
			Payload: map[string]interface{}{"status": strings.ToUpper(string(w.Status)), "is_enabled": w.IsEnabled},
			IP:      actor.IP,
		})
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			e.logger.WithFields(logrus.Fields{"window_id": id, "op": t.op}).Info(te.Error())
		}
		return nil, err
	}

	e.committed(ctx, w, t.action)
	return w, nil
}

// Approve moves a PENDING window to APPROVED and enables it
func (e *Engine) Approve(ctx context.Context, id int64, actor Actor) (*model.MaintenanceWindow, error) {
	return e.run(ctx, id, transition{
		op:     "approve",
		action: model.AuditActionApprove,
		check: func(w *model.MaintenanceWindow, _ time.Time) string {
			if w.Status != model.WindowStatusPending {
				return "only PENDING maintenance windows can be approved"
			}
			return ""
		},
		apply: func(w *model.MaintenanceWindow, _ time.Time) map[string]interface{} {
			w.Status = model.WindowStatusApproved
			w.ApprovedByID = actor.UserID
			w.IsEnabled = true
			return map[string]interface{}{
				"status":         w.Status,
				"approved_by_id": w.ApprovedByID,
				"is_enabled":     true,
			}
		},
	}, actor)
}

// Reject moves a PENDING window to REJECTED
func (e *Engine) Reject(ctx context.Context, id int64, actor Actor) (*model.MaintenanceWindow, error) {
	return e.run(ctx, id, transition{
		op:     "reject",
		action: model.AuditActionReject,
		check: func(w *model.MaintenanceWindow, _ time.Time) string {
			if w.Status != model.WindowStatusPending {
				return "only PENDING maintenance windows can be rejected"
			}
			return ""
		},
		apply: func(w *model.MaintenanceWindow, _ time.Time) map[string]interface{} {
			w.Status = model.WindowStatusRejected
			w.IsEnabled = false
			return map[string]interface{}{"status": w.Status, "is_enabled": false}
		},
	}, actor)
}

// Enable re-enables an APPROVED window
func (e *Engine) Enable(ctx context.Context, id int64, actor Actor) (*model.MaintenanceWindow, error) {
	return e.run(ctx, id, transition{
		op:     "enable",
		action: model.AuditActionEnable,
		check: func(w *model.MaintenanceWindow, _ time.Time) string {
			if w.Status != model.WindowStatusApproved {
				return "only APPROVED maintenance windows can be enabled"
			}
			return ""
		},
		apply: func(w *model.MaintenanceWindow, _ time.Time) map[string]interface{} {
			w.IsEnabled = true
			return map[string]interface{}{"is_enabled": true}
		},
	}, actor)
}

// Disable turns enforcement off without changing status. Disabling a window that
// is already disabled is a no-op and never fails on state grounds.
func (e *Engine) Disable(ctx context.Context, id int64, actor Actor) (*model.MaintenanceWindow, error) {
	w, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.IsEnabled {
		return w, nil
	}

	w, err = e.run(ctx, id, transition{
		op:     "disable",
		action: model.AuditActionDisable,
		check:  func(*model.MaintenanceWindow, time.Time) string { return "" },
		apply: func(w *model.MaintenanceWindow, _ time.Time) map[string]interface{} {
			w.IsEnabled = false
			return map[string]interface{}{"is_enabled": false}
		},
	}, actor)
	if errors.Is(err, ErrInvalidTransition) {
		// lost a race with another writer; whatever won left it in a state we re-read
		return e.store.Get(ctx, id)
	}
	return w, err
}

// Abort stops an APPROVED window that is currently in force
func (e *Engine) Abort(ctx context.Context, id int64, actor Actor) (*model.MaintenanceWindow, error) {
	return e.run(ctx, id, transition{
		op:     "abort",
		action: model.AuditActionAbort,
		check: func(w *model.MaintenanceWindow, now time.Time) string {
			if w.Status != model.WindowStatusApproved {
				return "only APPROVED maintenance windows can be aborted"
			}
			if !w.IsActiveAt(now) {
				return "only ACTIVE maintenance windows can be aborted"
			}
			return ""
		},
		apply: func(w *model.MaintenanceWindow, _ time.Time) map[string]interface{} {
			w.Status = model.WindowStatusAborted
			w.IsEnabled = false
			return map[string]interface{}{"status": w.Status, "is_enabled": false}
		},
	}, actor)
}

// Complete closes an APPROVED window regardless of its schedule. An open-ended
// window gets the completion instant as its end time.
func (e *Engine) Complete(ctx context.Context, id int64, actor Actor) (*model.MaintenanceWindow, error) {
	return e.run(ctx, id, transition{
		op:     "complete",
		action: model.AuditActionComplete,
		check: func(w *model.MaintenanceWindow, _ time.Time) string {
			if w.Status != model.WindowStatusApproved {
				return "only APPROVED maintenance windows can be completed"
			}
			return ""
		},
		apply: func(w *model.MaintenanceWindow, now time.Time) map[string]interface{} {
			w.Status = model.WindowStatusCompleted
			w.IsEnabled = false
			updates := map[string]interface{}{"status": w.Status, "is_enabled": false}
			if w.EndTime == nil {
				w.EndTime = model.TPtr(now)
				updates["end_time"] = w.EndTime
				// a window completed before it started keeps start <= end
				if w.StartTime != nil && w.StartTime.After(now) {
					w.StartTime = model.TPtr(now)
					updates["start_time"] = w.StartTime
				}
			}
			return updates
		},
	}, actor)
}

// Delete removes PENDING windows. Protected windows block the whole batch with a
// *store.ProtectedDeletionError.
func (e *Engine) Delete(ctx context.Context, ids []int64, actor Actor) (int, error) {
	var deleted int
	var windows []model.MaintenanceWindow
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		windows, err = e.store.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for i := range windows {
			if windows[i].Status.Protected() {
				continue
			}
			if err := e.audit.Log(ctx, audit.Entry{
				ActorID: actor.UserID,
				Action:  model.AuditActionDelete,
				Window:  &windows[i],
				Payload: map[string]interface{}{"reason": windows[i].Reason, "mode": windows[i].Mode},
				IP:      actor.IP,
			}); err != nil {
				return err
			}
		}
		deleted, err = e.store.Delete(ctx, ids)
		return err
	})
	if err != nil {
		var pe *store.ProtectedDeletionError
		if errors.As(err, &pe) {
			e.logger.WithField("blocked_ids", pe.BlockedIDs).Warn("refused to delete protected maintenance windows")
		}
		return 0, err
	}

	for i := range windows {
		e.committed(ctx, &windows[i], model.AuditActionDelete)
	}
	return deleted, nil
}

// AddException attaches a URL exception to a window
func (e *Engine) AddException(ctx context.Context, windowID int64, params ExceptionParams, actor Actor) (*model.URLException, error) {
	ex := &model.URLException{WindowID: windowID, Pattern: params.Pattern, Description: params.Description}
	var w *model.MaintenanceWindow
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		if w, err = e.store.Get(ctx, windowID); err != nil {
			return err
		}
		if err := e.store.AddException(ctx, ex); err != nil {
			return err
		}
		return e.audit.Log(ctx, audit.Entry{
			ActorID: actor.UserID,
			Action:  model.AuditActionExceptionAdd,
			Window:  w,
			Payload: map[string]interface{}{"pattern": ex.Pattern, "description": ex.Description},
			IP:      actor.IP,
		})
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, w, model.AuditActionExceptionAdd)
	return ex, nil
}

// DeleteException removes a URL exception from a window
func (e *Engine) DeleteException(ctx context.Context, windowID, exceptionID int64, actor Actor) error {
	var w *model.MaintenanceWindow
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		if w, err = e.store.Get(ctx, windowID); err != nil {
			return err
		}
		ex, err := e.store.DeleteException(ctx, windowID, exceptionID)
		if err != nil {
			return err
		}
		return e.audit.Log(ctx, audit.Entry{
			ActorID: actor.UserID,
			Action:  model.AuditActionExceptionDelete,
			Window:  w,
			Payload: map[string]interface{}{"pattern": ex.Pattern},
			IP:      actor.IP,
		})
	})
	if err != nil {
		return err
	}

	e.committed(ctx, w, model.AuditActionExceptionDelete)
	return nil
}

// committed runs after a successful commit: the cache entry goes first so the
// next classification already sees the new state.
func (e *Engine) committed(ctx context.Context, w *model.MaintenanceWindow, action model.AuditAction) {
	if e.invalidator != nil {
		e.invalidator.Invalidate(ctx)
	}
	if e.notifier != nil {
		e.notifier.Notify(Event{
			WindowID:  w.ID,
			Action:    action,
			Status:    w.Status,
			IsEnabled: w.IsEnabled,
		})
	}
	e.logger.WithFields(logrus.Fields{
		"window_id":  w.ID,
		"action":     action,
		"status":     w.Status,
		"is_enabled": w.IsEnabled,
	}).Info("maintenance window changed")
}

// Store exposes the underlying window store for read paths
func (e *Engine) Store() *store.Store {
	return e.store
}
