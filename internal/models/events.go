package models

import (
	"encoding/json"
	"time"
)

// UpdateType tags a ListUpdate broadcast to a room.
type UpdateType string

const (
	UpdateItemAdded     UpdateType = "item-added"
	UpdateItemUpdated   UpdateType = "item-updated"
	UpdateItemDeleted   UpdateType = "item-deleted"
	UpdateItemReordered UpdateType = "item-reordered"
	UpdateListUpdated   UpdateType = "list-updated"
	UpdateSessionJoined UpdateType = "session-joined"
	UpdateSessionLeft   UpdateType = "session-left"
)

// Wire event names. Client relay events share their names with the update
// types except "items-reordered", which is broadcast as "item-reordered".
const (
	EventJoinList       = "join-list"
	EventJoinedList     = "joined-list"
	EventError          = "error"
	EventItemAdded      = "item-added"
	EventItemUpdated    = "item-updated"
	EventItemDeleted    = "item-deleted"
	EventItemsReordered = "items-reordered"
	EventListUpdated    = "list-updated"
	EventUpdate         = "update"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
)

// RelayEvents maps each client relay event to the update type it is broadcast as.
var RelayEvents = map[string]UpdateType{
	EventItemAdded:      UpdateItemAdded,
	EventItemUpdated:    UpdateItemUpdated,
	EventItemDeleted:    UpdateItemDeleted,
	EventItemsReordered: UpdateItemReordered,
	EventListUpdated:    UpdateListUpdated,
}

// ListUpdate carries the full canonical payload of the affected entity.
// Timestamp is advisory (unix millis); the store is the source of truth.
type ListUpdate struct {
	Type      UpdateType      `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Envelope is one frame on the wire in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	ListSlug  string `json:"listSlug"`
	SessionID string `json:"sessionId"`
}

// JoinedList acknowledges a join. Participants are the other sessions
// already in the room.
type JoinedList struct {
	ListID       uint     `json:"listId"`
	ListSlug     string   `json:"listSlug"`
	Participants []string `json:"participants,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type PresenceEvent struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// ItemDeleted is the payload of item-deleted updates.
type ItemDeleted struct {
	ItemID uint `json:"itemId"`
}

// NewEnvelope marshals data into an envelope for the named event.
func NewEnvelope(event string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: raw}, nil
}

// NowMillis returns the advisory timestamp used on every outbound event.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
