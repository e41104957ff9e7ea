package api

import (
	"net/http"

	"github.com/kurtismassey/project-stargate/internal/middleware"

	"github.com/gorilla/mux"
)

// NewRouter builds the HTTP surface: the read-side REST endpoints plus the
// session websocket, all behind the shared middleware chain.
func NewRouter(h *Handler, serveWS http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	r.HandleFunc("/api/health", h.Health).Methods("GET")
	r.HandleFunc("/api/sessions", h.ListSessions).Methods("GET")
	r.HandleFunc("/api/sessions/search", h.SearchSessions).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/api/sessions/{id}/target", h.GetTargetImage).Methods("GET")

	r.HandleFunc("/ws/session", serveWS)

	return r
}
