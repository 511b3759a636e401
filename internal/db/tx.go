package db

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type txKey struct{}

// GinTxKey is the gin context key holding a request-scoped transaction
const GinTxKey = "db.tx"

// WithTx returns a context carrying tx
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction bound to ctx, or fallback bound to ctx.
// Handlers must go through this so read-only enforcement can scope their writes.
func FromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback.WithContext(ctx)
}

// FromGin is FromContext for gin handlers
func FromGin(c *gin.Context, fallback *gorm.DB) *gorm.DB {
	if v, ok := c.Get(GinTxKey); ok {
		if tx, ok := v.(*gorm.DB); ok && tx != nil {
			return tx
		}
	}
	return FromContext(c.Request.Context(), fallback)
}
