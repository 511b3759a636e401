package lifecycle

import (
	"context"

	"go_maintenance/internal/model"
)

// BatchResult aggregates a bulk administrative action. A failed item never stops
// the rest of the batch.
type BatchResult struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Errors    map[int64]string `json:"errors,omitempty"`
}

func (r *BatchResult) fail(id int64, err error) {
	r.Failed++
	if r.Errors == nil {
		r.Errors = make(map[int64]string)
	}
	r.Errors[id] = err.Error()
}

type singleOp func(ctx context.Context, id int64, actor Actor) (*model.MaintenanceWindow, error)

func (e *Engine) each(ctx context.Context, ids []int64, actor Actor, op singleOp) BatchResult {
	var res BatchResult
	for _, id := range ids {
		if _, err := op(ctx, id, actor); err != nil {
			res.fail(id, err)
			continue
		}
		res.Succeeded++
	}
	return res
}

// ApproveMany approves each window independently
func (e *Engine) ApproveMany(ctx context.Context, ids []int64, actor Actor) BatchResult {
	return e.each(ctx, ids, actor, e.Approve)
}

// RejectMany rejects each window independently
func (e *Engine) RejectMany(ctx context.Context, ids []int64, actor Actor) BatchResult {
	return e.each(ctx, ids, actor, e.Reject)
}

// AbortMany aborts each window independently
func (e *Engine) AbortMany(ctx context.Context, ids []int64, actor Actor) BatchResult {
	return e.each(ctx, ids, actor, e.Abort)
}

// CompleteMany completes each window independently
func (e *Engine) CompleteMany(ctx context.Context, ids []int64, actor Actor) BatchResult {
	return e.each(ctx, ids, actor, e.Complete)
}

// CompleteAllActive completes every enabled, approved window
func (e *Engine) CompleteAllActive(ctx context.Context, actor Actor) (BatchResult, error) {
	windows, err := e.store.ListEnabledApproved(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	ids := make([]int64, len(windows))
	for i, w := range windows {
		ids[i] = w.ID
	}
	return e.CompleteMany(ctx, ids, actor), nil
}
