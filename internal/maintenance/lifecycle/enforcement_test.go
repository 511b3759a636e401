package lifecycle

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go_maintenance/internal/maintenance/classifier"
	"go_maintenance/internal/maintenance/wincache"
)

// Every mutation must be visible to the very next classification, without waiting
// for the cache TTL.
func TestMutationsReachNextClassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cache := wincache.New(&wincache.Config{
		Backend: wincache.NewMemoryBackend(),
		Loader:  f.store,
	})
	f.engine.invalidator = cache

	resolver, err := classifier.NewDefaultResolver(cache, classifier.Options{
		AdminPrefix: "/admin/",
		StatusPath:  "/maintenance/status/",
		Now:         func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("NewDefaultResolver() failed: %v", err)
	}
	decide := func() classifier.Decision {
		return classifier.Classify(ctx, resolver, classifier.Request{
			Path: "/shop", Method: http.MethodGet, Header: http.Header{},
		}).Decision
	}

	// warm the cache with "no active window"
	if got := decide(); got != classifier.Pass {
		t.Fatalf("before any window: got %v", got)
	}

	w := f.create(t, CreateParams{})
	if got := decide(); got != classifier.Pass {
		t.Fatalf("pending window must not be enforced, got %v", got)
	}

	if _, err := f.engine.Approve(ctx, w.ID, operator); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	if got := decide(); got != classifier.BlockMaintenance {
		t.Fatalf("right after approve: got %v, want %v", got, classifier.BlockMaintenance)
	}

	ex, err := f.engine.AddException(ctx, w.ID, ExceptionParams{Pattern: "shop"}, operator)
	if err != nil {
		t.Fatalf("AddException() failed: %v", err)
	}
	if got := decide(); got != classifier.Pass {
		t.Fatalf("right after adding an exception: got %v", got)
	}
	if err := f.engine.DeleteException(ctx, w.ID, ex.ID, operator); err != nil {
		t.Fatalf("DeleteException() failed: %v", err)
	}
	if got := decide(); got != classifier.BlockMaintenance {
		t.Fatalf("right after removing the exception: got %v", got)
	}

	if _, err := f.engine.Complete(ctx, w.ID, operator); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if got := decide(); got != classifier.Pass {
		t.Errorf("right after complete: got %v, want %v", got, classifier.Pass)
	}
}
