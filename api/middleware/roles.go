package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/bv-engine/api/responses"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/logger"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKey admits requests carrying the configured admin API key and tags them
// with RoleAdmin. An empty key closes the admin surface.
func AdminKey(apiKey string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(apiKey))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin api disabled"))
				return
			}
			provided := strings.TrimSpace(r.Header.Get(adminKeyHeader))
			if provided == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin key required"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "invalid admin key"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), RoleAdmin)))
		})
	}
}
