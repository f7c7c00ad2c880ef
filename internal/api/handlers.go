package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"listsync/internal/middleware"
	"listsync/internal/models"
	"listsync/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const healthTimeout = 2 * time.Second

// Handler handles HTTP requests
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	lists     ListService
	gateway   GatewayStats
	presence  PresenceQueue
	wsHandler http.Handler // upgrades /ws to the sync protocol
	log       *logrus.Entry
}

func NewHandler(lists ListService, gateway GatewayStats, presence PresenceQueue, wsHandler http.Handler) *Handler {
	return &Handler{
		lists:     lists,
		gateway:   gateway,
		presence:  presence,
		wsHandler: wsHandler,
		log:       logrus.WithField("component", "api"),
	}
}

// List handlers

func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	var in models.ListCreate
	if err := decodeBody(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	list, err := h.lists.CreateList(r.Context(), &in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	middleware.AddSpanEvent(r.Context(), "list.created", attribute.String("list.slug", list.Slug))
	respondJSON(w, http.StatusCreated, list)
}

func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	password := r.Header.Get("X-List-Password")
	if password == "" {
		password = r.URL.Query().Get("password")
	}

	list, err := h.lists.GetListBySlug(r.Context(), slug, password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) UpdateList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var patch models.ListPatch
	if err := decodeBody(r, &patch); err != nil {
		h.respondError(w, r, err)
		return
	}

	list, err := h.lists.UpdateList(r.Context(), id, &patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	sessions, err := h.lists.ListActiveSessions(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"listId":         id,
		"activeSessions": len(sessions),
		"sessions":       sessions,
	})
}

// RegisterSession marks a viewer active without a websocket. The user agent
// defaults to the request's.
func (h *Handler) RegisterSession(w http.ResponseWriter, r *http.Request) {
	listID, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var in models.SessionRegister
	if err := decodeBody(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	if in.UserAgent == "" {
		in.UserAgent = r.UserAgent()
	}

	session, err := h.lists.RegisterSession(r.Context(), listID, in.SessionID, in.UserAgent)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (h *Handler) UnregisterSession(w http.ResponseWriter, r *http.Request) {
	if err := h.lists.UnregisterSession(r.Context(), mux.Vars(r)["sessionId"]); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Item handlers

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	listID, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var in models.ItemCreate
	if err := decodeBody(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	item, err := h.lists.AddItem(r.Context(), listID, &in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var patch models.ItemPatch
	if err := decodeBody(r, &patch); err != nil {
		h.respondError(w, r, err)
		return
	}

	item, err := h.lists.UpdateItem(r.Context(), id, &patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.lists.DeleteItem(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReorderItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []models.ItemOrder `json:"updates"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.lists.ReorderItems(r.Context(), req.Updates); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports the gateway and presence writer alongside liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	stats, err := h.gateway.Stats(ctx)
	if err != nil {
		h.log.WithError(err).Warn("⚠️  Gateway stats unavailable")
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"gateway":       stats,
		"presenceQueue": h.presence.QueueLength(),
	})
}

// respondError maps service errors onto status codes. Anything unclassified
// is a 500 whose detail stays in the logs.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrListNotFound), errors.Is(err, services.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		middleware.AddSpanError(r.Context(), err)
		h.log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(r.Context()),
			"path":       r.URL.Path,
		}).Error("❌ Request failed")
		respondJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", services.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid id %q", services.ErrInvalidInput, raw)
	}
	return uint(id), nil
}
