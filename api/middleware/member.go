package middleware

import (
	"net/http"

	"github.com/angelmondragon/bv-engine/api/responses"
	"github.com/angelmondragon/bv-engine/api/validators"
	"github.com/angelmondragon/bv-engine/pkg/logger"
)

// MemberScope rejects malformed {memberId} path parameters and tags the
// request log with the member.
func MemberScope(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID, err := validators.ParamUUID(r, "memberId")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithMemberID(ctx, memberID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
