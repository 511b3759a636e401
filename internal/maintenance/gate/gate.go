// Package gate enforces maintenance windows on incoming requests.
package gate

import (
	"bytes"
	"database/sql"
	"errors"
	"net/http"

	"go_maintenance/internal/db"
	"go_maintenance/internal/maintenance/classifier"
	"go_maintenance/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// ModeHeader marks responses produced inside a rolled-back scope
	ModeHeader = "X-Maintenance-Mode"
	// ModeReadOnlyStrict is the value of ModeHeader
	ModeReadOnlyStrict = "Read-Only-Strict"
	// RequestIDHeader is echoed on blocked responses
	RequestIDHeader = "X-Request-ID"
)

// Options configures the gate
type Options struct {
	Resolver classifier.WindowResolver
	// DB opens the read-only scope. Handlers reach it through db.FromGin or
	// db.FromContext.
	DB       *gorm.DB
	Renderer Renderer
	Logger   *logrus.Entry
}

type gate struct {
	resolver classifier.WindowResolver
	db       *gorm.DB
	renderer Renderer
	logger   *logrus.Entry
}

// Middleware classifies every request and maps the decision to a response
func Middleware(opts Options) gin.HandlerFunc {
	g := &gate{
		resolver: opts.Resolver,
		db:       opts.DB,
		renderer: opts.Renderer,
		logger:   opts.Logger,
	}
	if g.renderer == nil {
		g.renderer = NewTemplateRenderer("")
	}
	if g.logger == nil {
		g.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	g.logger = g.logger.WithField("component", "gate")

	return func(c *gin.Context) {
		res := classifier.Classify(c.Request.Context(), g.resolver, classifier.FromHTTP(c.Request))

		switch res.Decision {
		case classifier.BlockMaintenance:
			g.unavailable(c, res.Window)
		case classifier.BlockWrite:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "Read Only Mode",
				"detail": "Write requests are blocked.",
			})
		case classifier.AllowReadOnly:
			g.readOnly(c)
		default:
			c.Next()
		}
	}
}

func (g *gate) unavailable(c *gin.Context, w *model.MaintenanceWindow) {
	requestID := c.GetHeader(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	c.Header(RequestIDHeader, requestID)

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Service Unavailable",
			"reason": w.Reason,
		})
		return
	}

	var buf bytes.Buffer
	body := fallbackBody(w.Reason)
	if err := g.renderer.Render(&buf, pageFor(w, requestID)); err != nil {
		g.logger.WithError(err).WithField("request_id", requestID).Warn("maintenance page render failed, serving inline body")
	} else {
		body = buf.Bytes()
	}
	c.Data(http.StatusServiceUnavailable, "text/html; charset=utf-8", body)
	c.Abort()
}

// readOnly runs the rest of the chain inside a transaction that is rolled back on
// every exit path. A panic keeps unwinding after the rollback.
func (g *gate) readOnly(c *gin.Context) {
	tx := g.db.WithContext(c.Request.Context()).Begin()
	if tx.Error != nil {
		g.logger.WithError(tx.Error).Error("failed to open read-only scope")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Service Unavailable",
			"reason": "read-only scope unavailable",
		})
		return
	}
	defer func() {
		if err := tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
			g.logger.WithError(err).Error("read-only rollback failed")
		}
	}()

	// headers must be set before the handler starts writing
	c.Header(ModeHeader, ModeReadOnlyStrict)
	c.Set(db.GinTxKey, tx)
	c.Request = c.Request.WithContext(db.WithTx(c.Request.Context(), tx))

	c.Next()
}
