package sync

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/sameersharmadev/canverse/internal/board"
	"github.com/sameersharmadev/canverse/internal/ws"
)

// Gateway fans outbound messages to live sessions. *ws.Hub is the
// production implementation.
type Gateway interface {
	Register(s ws.Session)
	Broadcast(roomID string, sender ws.Session, data []byte)
	Unicast(roomID, participantID string, data []byte) bool
}

// Router validates inbound messages and routes them to the room store,
// emitting the resulting broadcasts through the gateway. Protocol errors
// drop the action silently; only a failed join is reported back to the
// requesting session.
type Router struct {
	gateway Gateway
	rooms   *board.Store
}

func NewRouter(gateway Gateway, rooms *board.Store) *Router {
	return &Router{gateway: gateway, rooms: rooms}
}

// binding returns the session's identity, or ok=false for a session that
// has not joined a room yet.
func binding(s ws.Session) (roomID, participantID string, ok bool) {
	roomID = s.RoomID()
	participantID = s.ParticipantID()
	return roomID, participantID, roomID != "" && participantID != ""
}

func (r *Router) Dispatch(s ws.Session, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		log.Printf("Dropping message from session %s: %v", s.ID(), err)
		return
	}

	switch env.Type {
	case EventJoinRoom:
		r.handleJoin(s, env.Data)
	case EventDrawingStart:
		r.handleDrawing(s, EventDrawingStart, env.Data, false)
	case EventDrawingUpdate:
		r.handleDrawing(s, EventDrawingUpdate, env.Data, false)
	case EventDrawingEnd:
		r.handleDrawing(s, EventDrawingEnd, env.Data, true)
	case EventCursorMove:
		r.handleCursorMove(s, env.Data)
	case EventElementsDeleted:
		r.handleElementsDeleted(s, env.Data)
	case EventViewportUpdate:
		r.handleViewport(s, env.Data)
	case EventBackground:
		r.handleBackground(s, env.Data)
	case EventVoiceJoin:
		r.handleVoiceJoin(s, env.Data)
	case EventVoiceLeave:
		r.handleVoiceLeave(s)
	case EventVoiceSignal:
		r.handleVoiceSignal(s, env.Data)
	case EventVoiceSpeaking:
		r.handleVoiceSpeaking(s, env.Data)
	case EventVoiceMute:
		r.handleVoiceMute(s, env.Data)
	default:
		log.Printf("Dropping unknown message type %q from session %s", env.Type, s.ID())
	}
}

func (r *Router) handleJoin(s ws.Session, data json.RawMessage) {
	var p JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.UserName == "" {
		log.Printf("Invalid join request from session %s: %v", s.ID(), err)
		s.Send(encode(EventError, ErrorPayload{Message: "Failed to join room"}))
		return
	}

	if boundRoom, _, ok := binding(s); ok {
		if boundRoom == p.RoomID {
			// resent join, nothing to do
			return
		}
		log.Printf("Session %s already in room %s, rejecting join for %s", s.ID(), boundRoom, p.RoomID)
		s.Send(encode(EventError, ErrorPayload{Message: "Failed to join room"}))
		return
	}

	res := r.rooms.Join(context.Background(), p.RoomID, p.UserName, s.ID())
	s.Bind(p.RoomID, res.Participant.ID)
	r.gateway.Register(s)

	s.Send(encode(EventRoomState, RoomStatePayload{
		Elements:        res.State.Elements,
		Users:           res.State.Participants,
		Viewport:        res.State.Viewport,
		BackgroundColor: res.State.Background,
		UserID:          res.Participant.ID,
		VoiceUsers:      res.State.Voice,
	}))

	if !res.Rejoined {
		r.gateway.Broadcast(p.RoomID, s, encode(EventUserJoined, res.Participant))
	}
	log.Printf("User %s (%s) joined room %s", p.UserName, res.Participant.ID, p.RoomID)
}

// Disconnect runs the cleanup cascade for a closed session. Presence and
// voice teardown both run regardless of how far the other gets.
func (r *Router) Disconnect(s ws.Session) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	res := r.rooms.Leave(context.Background(), roomID, pid)
	if res.VoiceRemoved {
		r.gateway.Broadcast(roomID, s, encode(EventVoiceUserLeft, VoiceUserLeftPayload{UserID: pid}))
	}
	if res.Removed {
		r.gateway.Broadcast(roomID, s, encode(EventUserLeft, pid))
		log.Printf("User %s left room %s", pid, roomID)
	}
}

func (r *Router) handleDrawing(s ws.Session, event string, data json.RawMessage, commit bool) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	var p DrawingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID || p.Element.ID == "" {
		log.Printf("Dropping invalid %s from session %s", event, s.ID())
		return
	}
	if !board.ValidKind(p.Element.Kind) {
		log.Printf("Dropping %s with unknown element kind %q", event, p.Element.Kind)
		return
	}

	p.Element.OwnerID = pid
	p.Element.Timestamp = time.Now().UnixMilli()

	// start/update only fan out a transient preview; end commits and
	// persists before the final fan-out.
	if commit {
		r.rooms.CommitElement(context.Background(), roomID, p.Element)
	}
	r.gateway.Broadcast(roomID, s, encode(event, p.Element))
}

func (r *Router) handleCursorMove(s ws.Session, data json.RawMessage) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	var p CursorMovePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID {
		return
	}

	if !r.rooms.UpdateCursor(roomID, pid, p.X, p.Y) {
		return
	}
	r.gateway.Broadcast(roomID, s, encode(EventCursorUpdate, CursorUpdatePayload{UserID: pid, X: p.X, Y: p.Y}))
}

func (r *Router) handleElementsDeleted(s ws.Session, data json.RawMessage) {
	roomID, _, ok := binding(s)
	if !ok {
		return
	}

	var p ElementsDeletedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID || len(p.ElementIDs) == 0 {
		return
	}

	r.rooms.DeleteElements(context.Background(), roomID, p.ElementIDs)
	r.gateway.Broadcast(roomID, s, encode(EventElementsDeleted, p.ElementIDs))
}

func (r *Router) handleViewport(s ws.Session, data json.RawMessage) {
	roomID, _, ok := binding(s)
	if !ok {
		return
	}

	var p ViewportPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID {
		return
	}

	r.rooms.SetViewport(context.Background(), roomID, p.Viewport)
	r.gateway.Broadcast(roomID, s, encode(EventViewportUpdate, ViewportPayload{Viewport: p.Viewport}))
}

func (r *Router) handleBackground(s ws.Session, data json.RawMessage) {
	roomID, _, ok := binding(s)
	if !ok {
		return
	}

	var p BackgroundPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID || p.BackgroundColor == "" {
		return
	}

	r.rooms.SetBackground(context.Background(), roomID, p.BackgroundColor)
	r.gateway.Broadcast(roomID, s, encode(EventBackground, BackgroundPayload{BackgroundColor: p.BackgroundColor}))
}

func (r *Router) handleVoiceJoin(s ws.Session, data json.RawMessage) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	var p VoiceJoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID {
		return
	}

	name := p.UserName
	if name == "" {
		name = "Unknown"
	}
	color := p.UserColor
	if color == "" {
		color = board.ColorFor(pid)
	}

	member := board.VoiceParticipant{ID: pid, Name: name, Color: color}
	others := r.rooms.VoiceJoin(context.Background(), roomID, member)

	if len(others) > 0 {
		s.Send(encode(EventVoiceRoomState, VoiceRoomStatePayload{VoiceUsers: others}))
	}
	r.gateway.Broadcast(roomID, s, encode(EventVoiceUserJoined, VoiceUserJoinedPayload{
		UserID:    pid,
		UserName:  name,
		UserColor: color,
	}))
	log.Printf("User %s joined voice chat in room %s", pid, roomID)
}

func (r *Router) handleVoiceLeave(s ws.Session) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	if !r.rooms.VoiceLeave(roomID, pid) {
		return
	}
	r.gateway.Broadcast(roomID, s, encode(EventVoiceUserLeft, VoiceUserLeftPayload{UserID: pid}))
	log.Printf("User %s left voice chat in room %s", pid, roomID)
}

func (r *Router) handleVoiceSignal(s ws.Session, data json.RawMessage) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	var p VoiceSignalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID || p.TargetUserID == "" || len(p.Signal) == 0 {
		return
	}

	delivered := r.gateway.Unicast(roomID, p.TargetUserID, encode(EventVoiceSignal, VoiceSignalDelivery{
		CallerUserID: pid,
		Signal:       p.Signal,
	}))
	if !delivered {
		// normal when the target already left; nothing to report back
		log.Printf("Voice signal target %s not found in room %s", p.TargetUserID, roomID)
	}
}

func (r *Router) handleVoiceSpeaking(s ws.Session, data json.RawMessage) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	var p VoiceSpeakingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID {
		return
	}

	r.rooms.SetVoiceSpeaking(roomID, pid, p.IsSpeaking)
	r.gateway.Broadcast(roomID, s, encode(EventVoiceSpeaking, VoiceSpeakingPayload{UserID: pid, IsSpeaking: p.IsSpeaking}))
}

func (r *Router) handleVoiceMute(s ws.Session, data json.RawMessage) {
	roomID, pid, ok := binding(s)
	if !ok {
		return
	}

	var p VoiceMutePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != roomID {
		return
	}

	r.rooms.SetVoiceMuted(roomID, pid, p.IsMuted)
	r.gateway.Broadcast(roomID, s, encode(EventVoiceMute, VoiceMutePayload{UserID: pid, IsMuted: p.IsMuted}))
}
