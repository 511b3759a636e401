package ws

import (
	"net/http"
	"strings"

	"go_maintenance/internal/auth"

	"github.com/sirupsen/logrus"
)

// extractToken extracts the JWT from the handshake request.
// Priority: 1. token query parameter, 2. Authorization header
func extractToken(r *http.Request) string {
	// io("url", { query: { token } }) arrives as ?token=xxx
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ""
}

// WrapWithAuth rejects handshakes without a valid operator token
func WrapWithAuth(next http.Handler, logger *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Socket.IO handshake is a GET request to /socket.io/?EIO=...&transport=polling
		if r.Method == http.MethodGet {
			token := extractToken(r)
			if token == "" {
				logger.WithField("remote", r.RemoteAddr).Warn("handshake rejected: no token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(token)
			if err != nil {
				logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("handshake rejected: invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			logger.WithFields(logrus.Fields{"user": claims.Username, "uid": claims.UID}).Debug("handshake accepted")
		}

		next.ServeHTTP(w, r)
	})
}
