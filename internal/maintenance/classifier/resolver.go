package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go_maintenance/internal/maintenance/wincache"
	"go_maintenance/internal/model"

	"github.com/sirupsen/logrus"
)

// Backend names accepted by NewResolver
const (
	BackendCached = "cached"
	BackendDirect = "direct"
)

// Source yields the winning window; it must never fail
type Source interface {
	Current(ctx context.Context) *model.MaintenanceWindow
}

// Options configures the default resolver
type Options struct {
	// IgnorePatterns are checked in order before anything else; matching paths
	// never even look up the maintenance state.
	IgnorePatterns         []string
	AdminPrefix            string
	StatusPath             string
	ReadOnlyAllowedMethods []string
	Now                    func() time.Time
}

// DefaultResolver is the stock WindowResolver
type DefaultResolver struct {
	source      Source
	ignore      []*regexp.Regexp
	adminPrefix string
	statusPath  string
	allowed     map[string]struct{}
	now         func() time.Time
}

// NewDefaultResolver compiles the global ignore list once
func NewDefaultResolver(source Source, opts Options) (*DefaultResolver, error) {
	r := &DefaultResolver{
		source:      source,
		adminPrefix: strings.TrimRight(opts.AdminPrefix, "/"),
		statusPath:  strings.TrimRight(opts.StatusPath, "/"),
		allowed:     methodSet(opts.ReadOnlyAllowedMethods),
		now:         opts.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	for _, p := range opts.IgnorePatterns {
		re, err := model.CompilePathPattern(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		r.ignore = append(r.ignore, re)
	}
	return r, nil
}

// Resolve implements WindowResolver
func (r *DefaultResolver) Resolve(ctx context.Context, req Request) *model.MaintenanceWindow {
	path := model.StripPath(req.Path)
	for _, re := range r.ignore {
		if re.MatchString(path) {
			return nil
		}
	}

	if r.isAdminOrStatus(req.Path) {
		return nil
	}

	w := r.source.Current(ctx)
	if w == nil {
		return nil
	}

	// approved but not yet started, or already expired: inert
	if !w.WithinSchedule(r.now()) {
		return nil
	}

	if w.MatchesException(path) {
		return nil
	}
	return w
}

// IsWriteMethod implements WindowResolver
func (r *DefaultResolver) IsWriteMethod(req Request) bool {
	_, ok := r.allowed[strings.ToUpper(req.Method)]
	return !ok
}

func (r *DefaultResolver) isAdminOrStatus(path string) bool {
	if r.adminPrefix != "" && (path == r.adminPrefix || strings.HasPrefix(path, r.adminPrefix+"/")) {
		return true
	}
	return r.statusPath != "" && strings.TrimRight(path, "/") == r.statusPath
}

// StoreSource reads storage on every call and fails open to "no window"
type StoreSource struct {
	loader wincache.Loader
	logger *logrus.Entry
}

// NewStoreSource creates an uncached source
func NewStoreSource(loader wincache.Loader, logger *logrus.Entry) *StoreSource {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StoreSource{loader: loader, logger: logger.WithField("component", "classifier")}
}

// Current implements Source
func (s *StoreSource) Current(ctx context.Context) *model.MaintenanceWindow {
	w, err := s.loader.FindCurrent(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("storage unavailable, treating as no active window")
		return nil
	}
	if w != nil {
		wincache.Prepare(w)
	}
	return w
}

// NewResolver builds the resolver named by the configured backend. The choice is
// made once at startup.
func NewResolver(backend string, cache *wincache.Cache, loader wincache.Loader, opts Options, logger *logrus.Entry) (WindowResolver, error) {
	var source Source
	switch backend {
	case "", BackendCached:
		source = cache
	case BackendDirect:
		source = NewStoreSource(loader, logger)
	default:
		return nil, fmt.Errorf("unknown maintenance backend %q", backend)
	}

	r, err := NewDefaultResolver(source, opts)
	if err != nil {
		return nil, err
	}
	return r, nil
}
