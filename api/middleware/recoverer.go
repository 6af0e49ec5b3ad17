package middleware

import (
	"fmt"
	"net/http"

	"github.com/danielortiz-dev/vendique-backend/api/responses"
	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

// Recoverer converts handler panics into a logged 500 response.
// http.ErrAbortHandler passes through untouched.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				err = fmt.Errorf("handler panic: %w", err)

				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"method": r.Method,
						"path":   r.URL.Path,
					})
					logg.Error(ctx, "panic.recovered", err)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unhandled panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
