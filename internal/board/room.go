package board

import (
	"encoding/json"
	"time"
)

// Room is the authoritative in-memory state of one board. Exactly one
// instance exists per room per process; the snapshot cache holds a
// possibly-stale replica used only for cold start. All access goes through
// the Store, which serializes mutations per room.
type Room struct {
	ID           string
	Elements     []Element
	Participants map[string]*Participant
	Viewport     Viewport
	Background   string
	LastActivity time.Time

	// Voice is the call roster. It has a lifecycle of its own: joining or
	// leaving the call never touches drawing presence, and the roster is
	// never persisted.
	Voice map[string]*VoiceParticipant
}

func newRoom(id string) *Room {
	return &Room{
		ID:           id,
		Elements:     make([]Element, 0),
		Participants: make(map[string]*Participant),
		Viewport:     Viewport{X: 0, Y: 0, Scale: 1},
		Background:   "#ffffff",
		LastActivity: time.Now(),
		Voice:        make(map[string]*VoiceParticipant),
	}
}

// ParticipantEntry is one (id, participant) pair of the persisted
// participant mapping. The map itself has no stable on-wire form, so the
// snapshot stores its entries as an explicit list.
type ParticipantEntry struct {
	ID          string      `json:"id"`
	Participant Participant `json:"participant"`
}

// Snapshot is the durable form of a room: committed elements, the
// participant list as explicit pairs, viewport and background. Cursors and
// the voice roster are deliberately absent.
type Snapshot struct {
	ID           string             `json:"id"`
	Elements     []Element          `json:"elements"`
	Participants []ParticipantEntry `json:"users"`
	Viewport     Viewport           `json:"viewport"`
	Background   string             `json:"backgroundColor"`
	LastActivity int64              `json:"lastActivity"`
}

func (s Snapshot) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

func (s *Snapshot) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

// snapshot captures the persistable state of the room. Cursor positions are
// stripped: they change far too often to be worth a cache write and are
// meaningless after a restart.
func (r *Room) snapshot() *Snapshot {
	snap := &Snapshot{
		ID:           r.ID,
		Elements:     append([]Element(nil), r.Elements...),
		Participants: make([]ParticipantEntry, 0, len(r.Participants)),
		Viewport:     r.Viewport,
		Background:   r.Background,
		LastActivity: r.LastActivity.UnixMilli(),
	}
	for id, p := range r.Participants {
		stored := *p
		stored.Cursor = nil
		snap.Participants = append(snap.Participants, ParticipantEntry{ID: id, Participant: stored})
	}
	return snap
}

// materialize rebuilds an in-memory room from a cached snapshot.
func materialize(snap *Snapshot) *Room {
	r := newRoom(snap.ID)
	if len(snap.Elements) > 0 {
		r.Elements = append(r.Elements, snap.Elements...)
	}
	for _, entry := range snap.Participants {
		p := entry.Participant
		r.Participants[entry.ID] = &p
	}
	if snap.Viewport != (Viewport{}) {
		r.Viewport = snap.Viewport
	}
	if snap.Background != "" {
		r.Background = snap.Background
	}
	if snap.LastActivity > 0 {
		r.LastActivity = time.UnixMilli(snap.LastActivity)
	}
	return r
}

// ParticipantList returns the participants in no particular order.
func (r *Room) ParticipantList() []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, *p)
	}
	return out
}

// VoiceRoster returns the current call members in no particular order.
func (r *Room) VoiceRoster() []VoiceParticipant {
	out := make([]VoiceParticipant, 0, len(r.Voice))
	for _, v := range r.Voice {
		out = append(out, *v)
	}
	return out
}
