// Package server wires HTTP handlers into a ServeMux for the chat relay.
package server

import (
	"fmt"
	"net/http"
)

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatrelay server is running!")
}

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, the chat WebSocket endpoint, and metrics.
func SetupRoutes(h *Handler, m *Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", h.ServeWS)
	mux.Handle("/metrics", m.Handler())
	return mux
}
