package syncagent

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"listsync/internal/models"
)

// ListState is a client's local copy of a list. Every update is reconciled
// by replacing, removing or ignoring records, never by incrementing or
// toggling, so applying the same update twice leaves the same state.
type ListState struct {
	ListID       uint
	Title        string
	Items        []models.ListItem
	Participants map[string]struct{}
}

func NewListState() *ListState {
	return &ListState{Participants: make(map[string]struct{})}
}

// Load replaces title and items with a freshly fetched copy. Participants
// are kept; they come from the join acknowledgement and presence events.
func (s *ListState) Load(full *models.ListWithItems) {
	s.ListID = full.ID
	s.Title = full.Title
	s.Items = append(s.Items[:0], full.Items...)
	s.sort()
}

// Apply reconciles one broadcast update into the local state.
func (s *ListState) Apply(u models.ListUpdate) error {
	switch u.Type {
	case models.UpdateItemAdded:
		var item models.ListItem
		if err := json.Unmarshal(u.Data, &item); err != nil {
			return fmt.Errorf("failed to decode %s: %w", u.Type, err)
		}
		// The sender added it optimistically before the echo came back
		if s.indexOf(item.ID) >= 0 {
			return nil
		}
		s.Items = append(s.Items, item)
		s.sort()

	case models.UpdateItemUpdated:
		var item models.ListItem
		if err := json.Unmarshal(u.Data, &item); err != nil {
			return fmt.Errorf("failed to decode %s: %w", u.Type, err)
		}
		i := s.indexOf(item.ID)
		if i < 0 {
			return nil
		}
		s.Items[i] = item
		s.sort()

	case models.UpdateItemDeleted:
		var del models.ItemDeleted
		if err := json.Unmarshal(u.Data, &del); err != nil {
			return fmt.Errorf("failed to decode %s: %w", u.Type, err)
		}
		if i := s.indexOf(del.ItemID); i >= 0 {
			s.Items = slices.Delete(s.Items, i, i+1)
		}

	case models.UpdateItemReordered:
		var orders []models.ItemOrder
		if err := json.Unmarshal(u.Data, &orders); err != nil {
			return fmt.Errorf("failed to decode %s: %w", u.Type, err)
		}
		for _, o := range orders {
			if i := s.indexOf(o.ID); i >= 0 {
				s.Items[i].Order = o.Order
			}
		}
		s.sort()

	case models.UpdateListUpdated:
		var list struct {
			Title *string `json:"title"`
		}
		if err := json.Unmarshal(u.Data, &list); err != nil {
			return fmt.Errorf("failed to decode %s: %w", u.Type, err)
		}
		if list.Title != nil {
			s.Title = *list.Title
		}

	case models.UpdateSessionJoined, models.UpdateSessionLeft:
		var p models.PresenceEvent
		if err := json.Unmarshal(u.Data, &p); err != nil {
			return fmt.Errorf("failed to decode %s: %w", u.Type, err)
		}
		if u.Type == models.UpdateSessionJoined {
			s.AddParticipant(p.SessionID)
		} else {
			s.RemoveParticipant(p.SessionID)
		}

	default:
		return fmt.Errorf("unknown update type %q", u.Type)
	}

	return nil
}

// SetParticipants replaces the participant set wholesale.
func (s *ListState) SetParticipants(ids []string) {
	clear(s.Participants)
	for _, id := range ids {
		s.Participants[id] = struct{}{}
	}
}

func (s *ListState) AddParticipant(sessionID string) {
	s.Participants[sessionID] = struct{}{}
}

func (s *ListState) RemoveParticipant(sessionID string) {
	delete(s.Participants, sessionID)
}

// ParticipantIDs returns the other sessions on the list, sorted.
func (s *ListState) ParticipantIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for id := range s.Participants {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Item returns the local record for id.
func (s *ListState) Item(id uint) (models.ListItem, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Items[i], true
	}
	return models.ListItem{}, false
}

// Clone returns a deep copy that is safe to read while s keeps changing.
func (s *ListState) Clone() *ListState {
	c := &ListState{
		ListID:       s.ListID,
		Title:        s.Title,
		Items:        slices.Clone(s.Items),
		Participants: make(map[string]struct{}, len(s.Participants)),
	}
	for id := range s.Participants {
		c.Participants[id] = struct{}{}
	}
	return c
}

func (s *ListState) indexOf(id uint) int {
	return slices.IndexFunc(s.Items, func(it models.ListItem) bool { return it.ID == id })
}

// sort keeps items by order, ties broken by id.
func (s *ListState) sort() {
	slices.SortStableFunc(s.Items, func(a, b models.ListItem) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
