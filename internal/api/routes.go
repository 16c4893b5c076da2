package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers every route of the service.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware(h.logger), loggingMiddleware(h.logger), metricsMiddleware)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/availability", h.CheckAvailability).Methods(http.MethodPost)
	v1.HandleFunc("/availability/{hash}", h.GetAvailability).Methods(http.MethodGet)
	v1.HandleFunc("/select", h.SelectResult).Methods(http.MethodPost)

	v1.HandleFunc("/resolve", h.StartResolve).Methods(http.MethodPost)
	v1.HandleFunc("/resolve", h.ResolveStatus).Methods(http.MethodGet)
	v1.HandleFunc("/resolve", h.CancelResolve).Methods(http.MethodDelete)

	v1.HandleFunc("/auth", h.StartAuth).Methods(http.MethodPost)
	v1.HandleFunc("/auth", h.AuthStatus).Methods(http.MethodGet)
	v1.HandleFunc("/auth", h.CancelAuth).Methods(http.MethodDelete)
	v1.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	v1.HandleFunc("/notifications", h.Notifications).Methods(http.MethodGet)
	v1.HandleFunc("/ws", h.WebSocket).Methods(http.MethodGet)

	return r
}
