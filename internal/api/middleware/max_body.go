package middleware

import (
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
)

// MaxBodyBytes rejects request bodies larger than limit. Declared lengths are
// checked up front; chunked bodies fail when the handler reads past the limit.
// A non-positive limit disables the check.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.JSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
					Error: "request body too large",
					Code:  "PAYLOAD_TOO_LARGE",
				})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
