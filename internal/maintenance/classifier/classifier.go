// Package classifier decides, per request, whether the active maintenance window
// lets the request through, blocks it, or lets it run read-only.
package classifier

import (
	"context"
	"net/http"
	"strings"

	"go_maintenance/internal/model"
)

// Decision is the outcome of classifying a request
type Decision int

const (
	// Pass forwards the request untouched
	Pass Decision = iota
	// BlockMaintenance answers 503
	BlockMaintenance
	// BlockWrite answers 403 for a write during read-only mode
	BlockWrite
	// AllowReadOnly forwards the request inside an always-rolled-back transaction
	AllowReadOnly
)

func (d Decision) String() string {
	switch d {
	case Pass:
		return "PASS"
	case BlockMaintenance:
		return "BLOCK_MAINTENANCE"
	case BlockWrite:
		return "BLOCK_WRITE"
	case AllowReadOnly:
		return "ALLOW_READONLY"
	}
	return "UNKNOWN"
}

// Request is the part of an HTTP request the classifier looks at
type Request struct {
	Path   string
	Method string
	Header http.Header
}

// FromHTTP extracts a Request
func FromHTTP(r *http.Request) Request {
	return Request{Path: r.URL.Path, Method: r.Method, Header: r.Header}
}

// WindowResolver resolves the window that applies to a request, or nil when the
// request is not subject to maintenance, and tells writes from reads.
type WindowResolver interface {
	Resolve(ctx context.Context, req Request) *model.MaintenanceWindow
	IsWriteMethod(req Request) bool
}

// Result carries the decision and the window behind it
type Result struct {
	Decision Decision
	Window   *model.MaintenanceWindow
}

// Classify resolves the window and dispatches on its mode
func Classify(ctx context.Context, resolver WindowResolver, req Request) Result {
	w := resolver.Resolve(ctx, req)
	if w == nil {
		return Result{Decision: Pass}
	}
	return Result{Decision: Decide(w, resolver.IsWriteMethod(req)), Window: w}
}

// Decide maps an applicable window to a decision
func Decide(w *model.MaintenanceWindow, isWrite bool) Decision {
	switch w.Mode {
	case model.MaintenanceModeMaintenance:
		return BlockMaintenance
	case model.MaintenanceModeReadOnly:
		if isWrite {
			return BlockWrite
		}
		return AllowReadOnly
	}
	return Pass
}

// DefaultReadOnlyMethods are the methods allowed through read-only mode
var DefaultReadOnlyMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

func methodSet(methods []string) map[string]struct{} {
	if len(methods) == 0 {
		methods = DefaultReadOnlyMethods
	}
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			set[m] = struct{}{}
		}
	}
	return set
}
