package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// New builds the service's HTTP server. POST /cases may run the whole
// pipeline before answering, so writes get minutes rather than seconds.
// Server-level errors (TLS handshakes, panics outside handlers) go to logger.
func New(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    64 << 10,
	}
	if logger != nil {
		srv.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}
	return srv
}
