package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go_maintenance/internal/model"
	"go_maintenance/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.NewDB(t))
}

func createWindow(t *testing.T, s *Store, reason string, patterns ...string) *model.MaintenanceWindow {
	t.Helper()
	w := &model.MaintenanceWindow{Mode: model.MaintenanceModeMaintenance, Reason: reason}
	for _, p := range patterns {
		w.Exceptions = append(w.Exceptions, model.URLException{Pattern: p})
	}
	if err := s.Create(context.Background(), w); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return w
}

func approve(t *testing.T, s *Store, id int64) {
	t.Helper()
	err := s.CompareAndSwapStatus(context.Background(), id, model.WindowStatusPending, map[string]interface{}{
		"status":     model.WindowStatusApproved,
		"is_enabled": true,
	})
	if err != nil {
		t.Fatalf("approve %d failed: %v", id, err)
	}
}

func TestCreate_ForcesPendingAndDisabled(t *testing.T) {
	s := newStore(t)
	w := &model.MaintenanceWindow{
		Mode:      model.MaintenanceModeReadOnly,
		Status:    model.WindowStatusApproved,
		IsEnabled: true,
		Reason:    "migrate orders table",
	}
	if err := s.Create(context.Background(), w); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := s.Get(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != model.WindowStatusPending || got.IsEnabled {
		t.Errorf("expected pending/disabled, got %s/%v", got.Status, got.IsEnabled)
	}
}

func TestCreate_Validation(t *testing.T) {
	s := newStore(t)
	now := time.Now()

	tests := []struct {
		name string
		w    model.MaintenanceWindow
	}{
		{"empty reason", model.MaintenanceWindow{Mode: model.MaintenanceModeMaintenance, Reason: "  "}},
		{"bad mode", model.MaintenanceWindow{Mode: "offline", Reason: "x"}},
		{"start after end", model.MaintenanceWindow{
			Mode: model.MaintenanceModeMaintenance, Reason: "x",
			StartTime: model.TPtr(now.Add(time.Hour)), EndTime: model.TPtr(now),
		}},
		{"bad exception", model.MaintenanceWindow{
			Mode: model.MaintenanceModeMaintenance, Reason: "x",
			Exceptions: []model.URLException{{Pattern: "("}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.w
			err := s.Create(context.Background(), &w)
			if !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindCurrent_NewestEnabledApprovedWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if w, err := s.FindCurrent(ctx); err != nil || w != nil {
		t.Fatalf("expected (nil, nil) on empty table, got (%v, %v)", w, err)
	}

	older := createWindow(t, s, "older")
	newer := createWindow(t, s, "newer", "api/health/")
	createWindow(t, s, "still pending")
	approve(t, s, older.ID)
	approve(t, s, newer.ID)

	w, err := s.FindCurrent(ctx)
	if err != nil {
		t.Fatalf("FindCurrent() failed: %v", err)
	}
	if w == nil || w.ID != newer.ID {
		t.Fatalf("expected window %d, got %+v", newer.ID, w)
	}
	if len(w.Exceptions) != 1 {
		t.Errorf("expected exceptions preloaded, got %d", len(w.Exceptions))
	}
}

func TestCompareAndSwapStatus_Stale(t *testing.T) {
	s := newStore(t)
	w := createWindow(t, s, "upgrade")
	approve(t, s, w.ID)

	err := s.CompareAndSwapStatus(context.Background(), w.ID, model.WindowStatusPending, map[string]interface{}{
		"status": model.WindowStatusRejected,
	})
	if !errors.Is(err, ErrStaleStatus) {
		t.Errorf("expected ErrStaleStatus, got %v", err)
	}
}

func TestDelete_PendingRemovesExceptions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	w := createWindow(t, s, "upgrade", "api/a/", "api/b/")

	entry := &model.AuditLog{Action: model.AuditActionCreate, WindowID: &w.ID, WindowSnapshot: w.Snapshot()}
	if err := s.AppendAudit(ctx, entry); err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}

	n, err := s.Delete(ctx, []int64{w.ID})
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	var orphans int64
	s.DB().Model(&model.URLException{}).Where("window_id = ?", w.ID).Count(&orphans)
	if orphans != 0 {
		t.Errorf("expected no orphan exceptions, got %d", orphans)
	}

	logs, _, err := s.ListAuditLogs(ctx, AuditParams{})
	if err != nil {
		t.Fatalf("ListAuditLogs() failed: %v", err)
	}
	if len(logs) != 1 || logs[0].WindowID != nil || logs[0].WindowSnapshot == "" {
		t.Errorf("expected detached audit row with snapshot, got %+v", logs)
	}
}

func TestDelete_ProtectedBlocksWholeBatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pending := createWindow(t, s, "pending")
	approved := createWindow(t, s, "approved")
	approve(t, s, approved.ID)

	n, err := s.Delete(ctx, []int64{pending.ID, approved.ID})
	if n != 0 {
		t.Errorf("expected nothing deleted, got %d", n)
	}
	if !errors.Is(err, ErrProtectedDeletion) {
		t.Fatalf("expected ErrProtectedDeletion, got %v", err)
	}
	var pe *ProtectedDeletionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtectedDeletionError, got %T", err)
	}
	if pe.Requested != 2 || len(pe.BlockedIDs) != 1 || pe.BlockedIDs[0] != approved.ID {
		t.Errorf("unexpected error details: %+v", pe)
	}

	if _, err := s.Get(ctx, pending.ID); err != nil {
		t.Errorf("pending window must survive a blocked batch: %v", err)
	}
}

func TestDelete_UnknownIDs(t *testing.T) {
	s := newStore(t)
	n, err := s.Delete(context.Background(), []int64{77, 78})
	if err != nil || n != 0 {
		t.Errorf("expected (0, nil), got (%d, %v)", n, err)
	}
}

func TestExceptions_AddAndDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	w := createWindow(t, s, "upgrade")

	ex := &model.URLException{WindowID: w.ID, Pattern: "^/api/health/", Description: "probes"}
	if err := s.AddException(ctx, ex); err != nil {
		t.Fatalf("AddException() failed: %v", err)
	}
	if err := s.AddException(ctx, &model.URLException{WindowID: 999, Pattern: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown window, got %v", err)
	}
	if err := s.AddException(ctx, &model.URLException{WindowID: w.ID, Pattern: "[z-a]"}); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow for bad pattern, got %v", err)
	}

	if _, err := s.DeleteException(ctx, w.ID+1, ex.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("exception must belong to the window, got %v", err)
	}
	removed, err := s.DeleteException(ctx, w.ID, ex.ID)
	if err != nil {
		t.Fatalf("DeleteException() failed: %v", err)
	}
	if removed.Pattern != ex.Pattern {
		t.Errorf("expected removed pattern %q, got %q", ex.Pattern, removed.Pattern)
	}
}

func TestTransaction_RollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(ctx context.Context) error {
		w := &model.MaintenanceWindow{Mode: model.MaintenanceModeMaintenance, Reason: "rolled back"}
		if err := s.Create(ctx, w); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_, total, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 0 {
		t.Errorf("expected rollback to leave no rows, got %d", total)
	}
}

func TestList_Filters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := createWindow(t, s, "kernel patch")
	createWindow(t, s, "db failover")
	approve(t, s, a.ID)

	_, total, _ := s.List(ctx, ListParams{Status: string(model.WindowStatusApproved)})
	if total != 1 {
		t.Errorf("status filter: expected 1, got %d", total)
	}
	_, total, _ = s.List(ctx, ListParams{Keyword: "failover"})
	if total != 1 {
		t.Errorf("keyword filter: expected 1, got %d", total)
	}
	enabled := true
	_, total, _ = s.List(ctx, ListParams{Enabled: &enabled})
	if total != 1 {
		t.Errorf("enabled filter: expected 1, got %d", total)
	}
	items, total, _ := s.List(ctx, ListParams{Page: 2, PageSize: 1})
	if total != 2 || len(items) != 1 {
		t.Errorf("paging: expected 1 of 2, got %d of %d", len(items), total)
	}
}
