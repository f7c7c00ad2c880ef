package api

import (
	"net/http"
)

// WebSocket endpoints

// HandleSyncWebSocket upgrades the request and hands the socket to the
// realtime gateway.
func (h *Handler) HandleSyncWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.ServeHTTP(w, r)
}
