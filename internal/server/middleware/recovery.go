package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RecoveryMiddleware перехватывает panic обработчика, логирует стек и отвечает 500.
// Транзакция батча к этому моменту откатана; клиент считает 500 временной
// ошибкой и повторит батч целиком.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Прерывание соединения http.Server обрабатывает сам
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				attrs := []any{
					"panic", rec,
					"request_id", chimiddleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				}
				if info := requestInfoFrom(r.Context()); info != nil && info.deviceID != "" {
					attrs = append(attrs, "device_id", info.deviceID)
				}
				logger.Error("Panic recovered", attrs...)

				writeError(w, http.StatusInternalServerError, "")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
