// Package requesttime provides middleware for request-scoped time. All
// operations within a single HTTP request share one "now", so audit entries
// and case timestamps written by the same request agree.
package requesttime

import (
	"net/http"
	"time"

	"kycflow/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
