package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/setup", s.handleSetup)

	r.Post("/webhook", s.handleWebhook)
	r.Post("/webhook/{device_id}", s.handleDeviceWebhook)
	r.Post("/test-alert", s.handleTestAlert)

	r.Post("/register", s.handleRegister)
	r.Get("/devices/{device_id}", s.handleGetDevice)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, r.Method+" not allowed on "+r.URL.Path)
	})

	return r
}
