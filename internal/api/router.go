package api

import (
	"listsync/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler, allowedOrigin string) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(mux.MiddlewareFunc(middleware.CORSMiddleware(allowedOrigin)))

	api := r.PathPrefix("/api").Subrouter()

	// List endpoints
	api.HandleFunc("/lists", h.CreateList).Methods("POST", "OPTIONS")
	api.HandleFunc("/lists/{id:[0-9]+}", h.UpdateList).Methods("PUT", "OPTIONS")
	api.HandleFunc("/lists/{id:[0-9]+}/items", h.AddItem).Methods("POST", "OPTIONS")
	api.HandleFunc("/lists/{id:[0-9]+}/sessions", h.RegisterSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/lists/{id:[0-9]+}/sessions/active", h.ActiveSessions).Methods("GET")
	api.HandleFunc("/lists/{slug}", h.GetList).Methods("GET", "OPTIONS")

	// Item endpoints
	api.HandleFunc("/items/reorder", h.ReorderItems).Methods("POST", "OPTIONS")
	api.HandleFunc("/items/{id:[0-9]+}", h.UpdateItem).Methods("PUT", "OPTIONS")
	api.HandleFunc("/items/{id:[0-9]+}", h.DeleteItem).Methods("DELETE")

	// Session endpoints
	api.HandleFunc("/sessions/{sessionId}", h.UnregisterSession).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/health", h.Health).Methods("GET")

	// Realtime sync
	r.HandleFunc("/ws", h.HandleSyncWebSocket).Methods("GET")

	return r
}
