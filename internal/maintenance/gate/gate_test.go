package gate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go_maintenance/internal/config"
	"go_maintenance/internal/db"
	"go_maintenance/internal/maintenance/classifier"
	"go_maintenance/internal/model"
	"go_maintenance/internal/testutil"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedResolver struct {
	window *model.MaintenanceWindow
}

func (r fixedResolver) Resolve(ctx context.Context, req classifier.Request) *model.MaintenanceWindow {
	return r.window
}

func (r fixedResolver) IsWriteMethod(req classifier.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

type brokenRenderer struct{}

func (brokenRenderer) Render(w io.Writer, page Page) error {
	return errors.New("template exploded")
}

func activeWindow(mode model.MaintenanceMode, reason string) *model.MaintenanceWindow {
	return &model.MaintenanceWindow{
		ID:        1,
		Mode:      mode,
		Status:    model.WindowStatusApproved,
		IsEnabled: true,
		Reason:    reason,
	}
}

func newRouter(conn *gorm.DB, opts Options, handlers ...func(r *gin.Engine)) *gin.Engine {
	r := gin.New()
	r.Use(gin.RecoveryWithWriter(io.Discard))
	opts.DB = conn
	r.Use(Middleware(opts))
	r.GET("/shop", func(c *gin.Context) {
		c.String(http.StatusOK, "catalogue")
	})
	for _, h := range handlers {
		h(r)
	}
	return r
}

func do(r http.Handler, method, path, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGate_PassThrough(t *testing.T) {
	r := newRouter(nil, Options{Resolver: fixedResolver{}})
	rec := do(r, http.MethodGet, "/shop", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "catalogue" {
		t.Errorf("expected pass-through, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(ModeHeader) != "" {
		t.Error("pass-through must not carry the read-only marker")
	}
}

func TestGate_MaintenanceJSON(t *testing.T) {
	r := newRouter(nil, Options{Resolver: fixedResolver{activeWindow(model.MaintenanceModeMaintenance, "Upgrading database")}})
	rec := do(r, http.MethodGet, "/shop", "application/json")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"error":"Service Unavailable"`) || !strings.Contains(body, `"reason":"Upgrading database"`) {
		t.Errorf("unexpected body %s", body)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a request id")
	}
}

func TestGate_MaintenanceHTML(t *testing.T) {
	w := activeWindow(model.MaintenanceModeMaintenance, "Upgrading <db>")
	w.EndTime = model.TPtr(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	r := newRouter(nil, Options{Resolver: fixedResolver{w}})

	rec := do(r, http.MethodGet, "/shop", "text/html,application/xhtml+xml")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Upgrading &lt;db&gt;") {
		t.Errorf("expected escaped reason in page, got %s", body)
	}
	if !strings.Contains(body, "2026-05-01 10:00") {
		t.Errorf("expected end time in page, got %s", body)
	}
}

func TestGate_RenderFailureFallsBack(t *testing.T) {
	r := newRouter(nil, Options{
		Resolver: fixedResolver{activeWindow(model.MaintenanceModeMaintenance, "<b>upgrade</b>")},
		Renderer: brokenRenderer{},
	})
	rec := do(r, http.MethodGet, "/shop", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	want := "<h1>Service Unavailable</h1><p>&lt;b&gt;upgrade&lt;/b&gt;</p>"
	if rec.Body.String() != want {
		t.Errorf("expected %q, got %q", want, rec.Body.String())
	}
}

func TestGate_MissingTemplateFallsBack(t *testing.T) {
	renderer := NewTemplateRenderer("/nonexistent/503.html")
	if renderer.Err() == nil {
		t.Fatal("expected a load error")
	}
	r := newRouter(nil, Options{
		Resolver: fixedResolver{activeWindow(model.MaintenanceModeMaintenance, "upgrade")},
		Renderer: renderer,
	})
	rec := do(r, http.MethodGet, "/shop", "text/html")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "<p>upgrade</p>") {
		t.Errorf("expected inline fallback, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGate_ReadOnlyBlocksWrites(t *testing.T) {
	reached := false
	r := newRouter(nil, Options{Resolver: fixedResolver{activeWindow(model.MaintenanceModeReadOnly, "reindex")}},
		func(r *gin.Engine) {
			r.POST("/shop/cart", func(c *gin.Context) { reached = true })
		})

	rec := do(r, http.MethodPost, "/shop/cart", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"Read Only Mode"`) ||
		!strings.Contains(rec.Body.String(), `"detail":"Write requests are blocked."`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if reached {
		t.Error("blocked write must not reach the handler")
	}
}

func countWindows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(&model.MaintenanceWindow{}).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func insertingHandler(conn *gorm.DB, seen *int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		tx := db.FromGin(c, conn)
		w := &model.MaintenanceWindow{Mode: model.MaintenanceModeMaintenance, Status: model.WindowStatusPending, Reason: "side effect"}
		if err := tx.Create(w).Error; err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		tx.Model(&model.MaintenanceWindow{}).Count(seen)
		c.String(http.StatusOK, "written")
	}
}

func TestGate_ReadOnlyRollsBack(t *testing.T) {
	conn := testutil.NewDB(t)
	var seen int64
	r := newRouter(conn, Options{Resolver: fixedResolver{activeWindow(model.MaintenanceModeReadOnly, "reindex")}},
		func(r *gin.Engine) {
			r.GET("/report", insertingHandler(conn, &seen))
		})

	rec := do(r, http.MethodGet, "/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(ModeHeader) != ModeReadOnlyStrict {
		t.Errorf("expected %s header, got %q", ModeHeader, rec.Header().Get(ModeHeader))
	}
	if seen != 1 {
		t.Errorf("the handler should see its own write inside the scope, saw %d", seen)
	}
	if n := countWindows(t, conn); n != 0 {
		t.Errorf("expected the write to be rolled back, found %d rows", n)
	}
}

func TestGate_ReadOnlyRollsBackOnPanic(t *testing.T) {
	conn := testutil.NewDB(t)
	r := newRouter(conn, Options{Resolver: fixedResolver{activeWindow(model.MaintenanceModeReadOnly, "reindex")}},
		func(r *gin.Engine) {
			r.GET("/explode", func(c *gin.Context) {
				db.FromGin(c, conn).Create(&model.MaintenanceWindow{
					Mode: model.MaintenanceModeMaintenance, Status: model.WindowStatusPending, Reason: "partial",
				})
				panic("handler failure")
			})
		})

	rec := do(r, http.MethodGet, "/explode", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected the panic to surface as 500, got %d", rec.Code)
	}
	if n := countWindows(t, conn); n != 0 {
		t.Errorf("expected rollback after panic, found %d rows", n)
	}
}

func TestGate_ReadOnlyContextCarriesTx(t *testing.T) {
	conn := testutil.NewDB(t)
	var same bool
	r := newRouter(conn, Options{Resolver: fixedResolver{activeWindow(model.MaintenanceModeReadOnly, "reindex")}},
		func(r *gin.Engine) {
			r.GET("/ctx", func(c *gin.Context) {
				same = db.FromContext(c.Request.Context(), conn) == db.FromGin(c, conn)
			})
		})

	do(r, http.MethodGet, "/ctx", "")
	if !same {
		t.Error("request context and gin context must expose the same transaction")
	}
}

type fixedSource struct {
	window *model.MaintenanceWindow
}

func (s fixedSource) Current(ctx context.Context) *model.MaintenanceWindow {
	return s.window
}

func TestGate_LiveStatusChannelStaysReachable(t *testing.T) {
	for _, mode := range []model.MaintenanceMode{model.MaintenanceModeMaintenance, model.MaintenanceModeReadOnly} {
		resolver, err := classifier.NewDefaultResolver(fixedSource{activeWindow(mode, "upgrade")}, classifier.Options{
			IgnorePatterns: config.DefaultIgnoreURLPatterns,
			AdminPrefix:    "/admin/",
			StatusPath:     "/maintenance/status/",
		})
		if err != nil {
			t.Fatalf("NewDefaultResolver() failed: %v", err)
		}

		r := newRouter(nil, Options{Resolver: resolver}, func(r *gin.Engine) {
			socket := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
			r.GET("/socket.io/*any", socket)
			r.POST("/socket.io/*any", socket)
		})

		for _, method := range []string{http.MethodGet, http.MethodPost} {
			rec := do(r, method, "/socket.io/?EIO=3&transport=polling", "")
			if rec.Code != http.StatusOK {
				t.Errorf("%s %s /socket.io/: expected 200, got %d", mode, method, rec.Code)
			}
			if rec.Header().Get(ModeHeader) != "" {
				t.Errorf("%s %s /socket.io/: must not open a read-only scope", mode, method)
			}
		}

		// the site itself is still enforced
		if rec := do(r, http.MethodPost, "/shop", ""); rec.Code == http.StatusOK {
			t.Errorf("%s: expected /shop to be blocked", mode)
		}
	}
}
