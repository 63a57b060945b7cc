package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/maxkimambo/dataflow/internal/api/response"
	"github.com/maxkimambo/dataflow/internal/logger"
)

// Recovery middleware catches panics and returns a 500 error.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Op.WithFields(map[string]interface{}{
					"panic": fmt.Sprint(rec),
					"path":  r.URL.Path,
					"stack": string(debug.Stack()),
				}).Error("Panic recovered")
				response.Error(w, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
