// Package httplog provides the request logging middleware shared by both servers.
package httplog

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// Middleware logs every handled request with its status and duration. It fits mux.Router.Use.
func Middleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, writer, request)
		slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code, "bytes", m.Written)
	})
}
