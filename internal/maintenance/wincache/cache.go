// Package wincache holds the "current approved and enabled window" so the request
// path does not hit storage on every request.
package wincache

import (
	"context"
	"errors"
	"time"

	"go_maintenance/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is the backstop for a missed invalidation
	DefaultTTL = time.Hour
	// DefaultKey is the redis key of the cached entry
	DefaultKey = "active_maintenance_window"
)

// ErrBackendUnavailable wraps backend failures
var ErrBackendUnavailable = errors.New("wincache: backend unavailable")

// Entry is a cached lookup result. None is the explicit "no active window"
// sentinel and is distinct from a miss.
type Entry struct {
	None   bool                     `json:"none"`
	Window *model.MaintenanceWindow `json:"window,omitempty"`
}

// Backend stores at most one Entry. Generations make Put conditional: a value
// computed before an invalidation can never be stored after it.
type Backend interface {
	// Get returns the entry (nil on miss) and the current generation
	Get(ctx context.Context) (*Entry, uint64, error)
	// Put stores entry if the generation is still gen
	Put(ctx context.Context, entry *Entry, gen uint64, ttl time.Duration) (bool, error)
	// Invalidate drops the entry and bumps the generation
	Invalidate(ctx context.Context) error
}

// Loader computes the winning window from storage
type Loader interface {
	FindCurrent(ctx context.Context) (*model.MaintenanceWindow, error)
}

// Config holds cache settings
type Config struct {
	Backend Backend
	Loader  Loader
	TTL     time.Duration
	Logger  *logrus.Entry
}

// Cache is the active-window cache. It is created empty, filled lazily,
// invalidated on every mutation and bounded by TTL.
type Cache struct {
	backend Backend
	loader  Loader
	ttl     time.Duration
	logger  *logrus.Entry
}

// New creates an active-window cache
func New(cfg *Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cache{
		backend: cfg.Backend,
		loader:  cfg.Loader,
		ttl:     ttl,
		logger:  logger.WithField("component", "wincache"),
	}
}

// Current returns the winning window or nil. It never fails: a backend error is
// treated as a miss and a storage error as "no active window".
// Callers must treat the returned window as read-only.
func (c *Cache) Current(ctx context.Context) *model.MaintenanceWindow {
	entry, gen, err := c.backend.Get(ctx)
	backendOK := err == nil
	if err != nil {
		c.logger.WithError(err).Warn("cache read failed, loading from storage")
	} else if entry != nil {
		if entry.None {
			return nil
		}
		return entry.Window
	}

	w, err := c.loader.FindCurrent(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("storage unavailable, treating as no active window")
		return nil
	}
	if w != nil {
		Prepare(w)
	}

	if backendOK {
		stored, err := c.backend.Put(ctx, &Entry{None: w == nil, Window: w}, gen, c.ttl)
		if err != nil {
			c.logger.WithError(err).Warn("cache write failed")
		} else if !stored {
			c.logger.Debug("cache invalidated during load, result not stored")
		}
	}
	return w
}

// Invalidate drops the cached entry immediately
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.backend.Invalidate(ctx); err != nil {
		c.logger.WithError(err).Error("cache invalidation failed, entry will expire by TTL")
	}
}

// TTL returns the configured backstop
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Prepare compiles the window's exception patterns once so concurrent readers
// only ever read them.
func Prepare(w *model.MaintenanceWindow) {
	for i := range w.Exceptions {
		if err := w.Exceptions[i].Compile(); err != nil {
			logrus.WithError(err).WithField("pattern", w.Exceptions[i].Pattern).Warn("skipping invalid url exception")
		}
	}
}
