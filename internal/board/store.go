package board

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSnapshotNotFound is returned by Cache.Load when no snapshot exists for
// a room.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Cache is the durable snapshot store behind the room registry. Load
// returns ErrSnapshotNotFound for absent rooms; any other failure is treated
// as absent by the Store. Save and Delete failures are logged and swallowed.
type Cache interface {
	Load(ctx context.Context, roomID string) (*Snapshot, error)
	Save(ctx context.Context, roomID string, snap *Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, roomID string) error
}

// Store is the authoritative room registry. Rooms are created lazily on
// first touch (loading from the cache when a snapshot exists), every
// committed mutation is written through, and a room that stays empty for
// the grace window is evicted from memory and cache.
type Store struct {
	cache Cache
	ttl   time.Duration
	grace time.Duration

	mu    sync.Mutex
	rooms map[string]*roomEntry
}

// roomEntry serializes all mutations of one room behind its own lock, so
// cross-room traffic never contends.
type roomEntry struct {
	mu    sync.Mutex
	room  *Room
	evict *time.Timer

	// gone marks an entry that eviction has already removed from the
	// registry. A caller that looked the entry up before the removal and
	// acquired mu after it must retry through the registry instead of
	// mutating a detached room.
	gone bool
}

func NewStore(cache Cache, ttl, grace time.Duration) *Store {
	return &Store{
		cache: cache,
		ttl:   ttl,
		grace: grace,
		rooms: make(map[string]*roomEntry),
	}
}

// Close cancels all pending evictions.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.rooms {
		entry.mu.Lock()
		if entry.evict != nil {
			entry.evict.Stop()
			entry.evict = nil
		}
		entry.mu.Unlock()
	}
}

// RoomCount returns the number of rooms resident in memory.
func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// entryFor returns the locked entry for roomID, creating the room on first
// touch. A newly referenced room is loaded from the cache when a snapshot
// exists, otherwise constructed with defaults and written through
// immediately so every room ever referenced has a durable row. The caller
// must release entry.mu when done.
func (s *Store) entryFor(ctx context.Context, roomID string) *roomEntry {
	for {
		s.mu.Lock()
		entry, ok := s.rooms[roomID]
		if !ok {
			entry = &roomEntry{}
			s.rooms[roomID] = entry
		}
		s.mu.Unlock()

		entry.mu.Lock()
		if entry.gone {
			// eviction won the race for this entry; look up again
			entry.mu.Unlock()
			continue
		}
		if entry.room == nil {
			snap, err := s.cache.Load(ctx, roomID)
			switch {
			case err == nil:
				entry.room = materialize(snap)
			default:
				if !errors.Is(err, ErrSnapshotNotFound) {
					log.Printf("Cache load failed for room %s, starting empty: %v", roomID, err)
				}
				entry.room = newRoom(roomID)
				s.writeThrough(ctx, entry.room)
			}
		}
		return entry
	}
}

// writeThrough persists the room and refreshes its TTL. Failures are logged
// and swallowed: durability here is best effort and must never take a live
// room down.
func (s *Store) writeThrough(ctx context.Context, r *Room) {
	if err := s.cache.Save(ctx, r.ID, r.snapshot(), s.ttl); err != nil {
		log.Printf("Cache save failed for room %s: %v", r.ID, err)
	}
}

// RoomState is the full picture handed to a joining session: committed
// elements only, never in-flight ones.
type RoomState struct {
	Elements     []Element
	Participants []Participant
	Viewport     Viewport
	Background   string
	Voice        []VoiceParticipant
}

// JoinResult is what a join produces: the allocated participant and the
// current room state including the joiner.
type JoinResult struct {
	Participant Participant
	State       RoomState

	// Rejoined is set when the session was already a member of the room;
	// the join was an idempotent no-op and must not be re-broadcast.
	Rejoined bool
}

func (r *Room) state() RoomState {
	return RoomState{
		Elements:     append([]Element(nil), r.Elements...),
		Participants: r.ParticipantList(),
		Viewport:     r.Viewport,
		Background:   r.Background,
		Voice:        r.VoiceRoster(),
	}
}

// Join registers a new participant in the room and returns the full current
// state. The participant ID is server-generated and its color is a pure
// function of that ID. A resent join from a session that is already a member
// returns the existing participant unchanged. A join also cancels any
// pending eviction: a room that looked empty only momentarily keeps its
// board.
func (s *Store) Join(ctx context.Context, roomID, displayName, sessionID string) JoinResult {
	entry := s.entryFor(ctx, roomID)
	defer entry.mu.Unlock()

	if entry.evict != nil {
		entry.evict.Stop()
		entry.evict = nil
	}

	for _, p := range entry.room.Participants {
		if p.SessionID == sessionID {
			return JoinResult{Participant: *p, State: entry.room.state(), Rejoined: true}
		}
	}

	id := uuid.NewString()
	p := &Participant{
		ID:        id,
		Name:      displayName,
		Color:     ColorFor(id),
		SessionID: sessionID,
	}
	entry.room.Participants[id] = p
	entry.room.LastActivity = time.Now()
	s.writeThrough(ctx, entry.room)

	return JoinResult{Participant: *p, State: entry.room.state()}
}

// LeaveResult reports which rosters the participant was actually removed
// from, so the caller knows what to broadcast.
type LeaveResult struct {
	Removed      bool
	VoiceRemoved bool
}

// Leave removes the participant from the room and, defensively, from the
// voice roster. When the room empties, its eviction is scheduled after the
// grace window.
func (s *Store) Leave(ctx context.Context, roomID, participantID string) LeaveResult {
	s.mu.Lock()
	entry, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return LeaveResult{}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.room == nil {
		return LeaveResult{}
	}

	var res LeaveResult
	if _, ok := entry.room.Participants[participantID]; ok {
		delete(entry.room.Participants, participantID)
		res.Removed = true
	}
	if _, ok := entry.room.Voice[participantID]; ok {
		delete(entry.room.Voice, participantID)
		res.VoiceRemoved = true
	}
	if !res.Removed && !res.VoiceRemoved {
		return res
	}

	entry.room.LastActivity = time.Now()
	if len(entry.room.Participants) == 0 {
		s.scheduleEvict(entry, roomID)
	} else {
		s.writeThrough(ctx, entry.room)
	}
	return res
}

func (s *Store) scheduleEvict(entry *roomEntry, roomID string) {
	if entry.evict != nil {
		entry.evict.Stop()
	}
	entry.evict = time.AfterFunc(s.grace, func() {
		s.evict(roomID)
	})
}

// evict drops an empty room from memory and deletes its cache row. A room
// repopulated since scheduling is left alone. The emptiness re-check and
// the registry removal happen under both locks, so no join can slip in
// between seeing the room empty and removing it: a join that got the old
// board back always keeps the room.
func (s *Store) evict(roomID string) {
	s.mu.Lock()
	entry, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}

	entry.mu.Lock()
	if entry.room != nil && len(entry.room.Participants) > 0 {
		entry.mu.Unlock()
		s.mu.Unlock()
		return
	}
	entry.evict = nil
	entry.room = nil
	entry.gone = true
	delete(s.rooms, roomID)
	entry.mu.Unlock()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, roomID); err != nil {
		log.Printf("Cache delete failed for room %s: %v", roomID, err)
	}
	log.Printf("Room %s evicted after grace window", roomID)
}

// UpdateCursor mutates a participant's transient cursor. This path skips
// the write-through on purpose: cursor traffic is far too frequent and the
// position is worthless after a restart.
func (s *Store) UpdateCursor(roomID, participantID string, x, y float64) bool {
	s.mu.Lock()
	entry, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.room == nil {
		return false
	}
	p, ok := entry.room.Participants[participantID]
	if !ok {
		return false
	}
	p.Cursor = &Cursor{X: x, Y: y}
	entry.room.LastActivity = time.Now()
	return true
}

// CommitElement appends the element to the committed list, or replaces the
// existing element carrying the same ID. Last commit wins; two participants
// racing on one ID is accepted behavior, not a conflict to detect.
func (s *Store) CommitElement(ctx context.Context, roomID string, el Element) {
	entry := s.entryFor(ctx, roomID)
	defer entry.mu.Unlock()

	replaced := false
	for i := range entry.room.Elements {
		if entry.room.Elements[i].ID == el.ID {
			entry.room.Elements[i] = el
			replaced = true
			break
		}
	}
	if !replaced {
		entry.room.Elements = append(entry.room.Elements, el)
	}
	entry.room.LastActivity = time.Now()
	s.writeThrough(ctx, entry.room)
}

// DeleteElements removes the named elements from the committed list.
// Deleting IDs that are already gone is a no-op, so the operation is
// idempotent.
func (s *Store) DeleteElements(ctx context.Context, roomID string, elementIDs []string) {
	entry := s.entryFor(ctx, roomID)
	defer entry.mu.Unlock()

	doomed := make(map[string]struct{}, len(elementIDs))
	for _, id := range elementIDs {
		doomed[id] = struct{}{}
	}

	kept := entry.room.Elements[:0]
	for _, el := range entry.room.Elements {
		if _, gone := doomed[el.ID]; !gone {
			kept = append(kept, el)
		}
	}
	entry.room.Elements = kept
	entry.room.LastActivity = time.Now()
	s.writeThrough(ctx, entry.room)
}

// SetViewport replaces the shared viewport.
func (s *Store) SetViewport(ctx context.Context, roomID string, vp Viewport) {
	entry := s.entryFor(ctx, roomID)
	defer entry.mu.Unlock()

	entry.room.Viewport = vp
	entry.room.LastActivity = time.Now()
	s.writeThrough(ctx, entry.room)
}

// SetBackground replaces the board background color.
func (s *Store) SetBackground(ctx context.Context, roomID, color string) {
	entry := s.entryFor(ctx, roomID)
	defer entry.mu.Unlock()

	entry.room.Background = color
	entry.room.LastActivity = time.Now()
	s.writeThrough(ctx, entry.room)
}

// VoiceJoin adds a participant to the room's call roster and returns the
// other current members, so the joiner can be told who is already on the
// call. The roster is memory-only and never written through.
func (s *Store) VoiceJoin(ctx context.Context, roomID string, vp VoiceParticipant) []VoiceParticipant {
	entry := s.entryFor(ctx, roomID)
	defer entry.mu.Unlock()

	others := make([]VoiceParticipant, 0, len(entry.room.Voice))
	for id, v := range entry.room.Voice {
		if id != vp.ID {
			others = append(others, *v)
		}
	}
	member := vp
	entry.room.Voice[vp.ID] = &member
	return others
}

// VoiceLeave removes a participant from the call roster. Absent members are
// a defensive no-op.
func (s *Store) VoiceLeave(roomID, participantID string) bool {
	s.mu.Lock()
	entry, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.room == nil {
		return false
	}
	if _, ok := entry.room.Voice[participantID]; !ok {
		return false
	}
	delete(entry.room.Voice, participantID)
	return true
}

// SetVoiceMuted records the ephemeral mute flag on a roster member.
func (s *Store) SetVoiceMuted(roomID, participantID string, muted bool) {
	s.setVoiceFlag(roomID, participantID, func(v *VoiceParticipant) { v.Muted = muted })
}

// SetVoiceSpeaking records the ephemeral speaking flag on a roster member.
func (s *Store) SetVoiceSpeaking(roomID, participantID string, speaking bool) {
	s.setVoiceFlag(roomID, participantID, func(v *VoiceParticipant) { v.Speaking = speaking })
}

func (s *Store) setVoiceFlag(roomID, participantID string, fn func(*VoiceParticipant)) {
	s.mu.Lock()
	entry, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.room == nil {
		return
	}
	if v, ok := entry.room.Voice[participantID]; ok {
		fn(v)
	}
}

// RoomInfo is the pre-join summary of a room.
type RoomInfo struct {
	Exists       bool
	Participants int
	Elements     int
	LastActivity time.Time
}

// Info reports on a room without creating it. An existence check for a room
// nobody has touched yields a transient zero state, not a durable row.
func (s *Store) Info(ctx context.Context, roomID string) RoomInfo {
	s.mu.Lock()
	entry, ok := s.rooms[roomID]
	s.mu.Unlock()

	if ok {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.room != nil {
			return RoomInfo{
				Exists:       true,
				Participants: len(entry.room.Participants),
				Elements:     len(entry.room.Elements),
				LastActivity: entry.room.LastActivity,
			}
		}
	}

	snap, err := s.cache.Load(ctx, roomID)
	if err != nil {
		return RoomInfo{}
	}
	return RoomInfo{
		Exists:       true,
		Participants: len(snap.Participants),
		Elements:     len(snap.Elements),
		LastActivity: time.UnixMilli(snap.LastActivity),
	}
}
