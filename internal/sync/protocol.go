// Package sync implements the room synchronization protocol: the message
// catalogue, its validation at the gateway boundary, and the routing of
// presence, drawing and voice traffic.
package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/sameersharmadev/canverse/internal/board"
)

// Inbound event names.
const (
	EventJoinRoom        = "join-room"
	EventDrawingStart    = "drawing-start"
	EventDrawingUpdate   = "drawing-update"
	EventDrawingEnd      = "drawing-end"
	EventCursorMove      = "cursor-move"
	EventElementsDeleted = "elements-deleted"
	EventViewportUpdate  = "viewport-update"
	EventBackground      = "background-update"
	EventVoiceJoin       = "voice-join"
	EventVoiceLeave      = "voice-leave"
	EventVoiceSignal     = "voice-signal"
	EventVoiceSpeaking   = "voice-speaking"
	EventVoiceMute       = "voice-mute"
)

// Outbound event names.
const (
	EventRoomState       = "room-state"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventCursorUpdate    = "cursor-update"
	EventVoiceRoomState  = "voice-room-state"
	EventVoiceUserJoined = "voice-user-joined"
	EventVoiceUserLeft   = "voice-user-left"
	EventError           = "error"
)

// Envelope is the wire frame for every message in either direction.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var errEmptyMessage = errors.New("empty message")

// DecodeEnvelope validates the outer frame of an inbound message.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if len(raw) == 0 {
		return Envelope{}, errEmptyMessage
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, errors.New("missing message type")
	}
	return env, nil
}

type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// RoomStatePayload is the full snapshot handed to a joining session. It
// only ever contains committed elements; in-flight drawings stay invisible
// until their commit.
type RoomStatePayload struct {
	Elements        []board.Element          `json:"elements"`
	Users           []board.Participant      `json:"users"`
	Viewport        board.Viewport           `json:"viewport"`
	BackgroundColor string                   `json:"backgroundColor"`
	UserID          string                   `json:"userId"`
	VoiceUsers      []board.VoiceParticipant `json:"voiceUsers"`
}

type DrawingPayload struct {
	RoomID  string        `json:"roomId"`
	Element board.Element `json:"element"`
}

type CursorMovePayload struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type CursorUpdatePayload struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type ElementsDeletedPayload struct {
	RoomID     string   `json:"roomId"`
	ElementIDs []string `json:"elementIds"`
}

type ViewportPayload struct {
	RoomID   string         `json:"roomId,omitempty"`
	Viewport board.Viewport `json:"viewport"`
}

type BackgroundPayload struct {
	RoomID          string `json:"roomId,omitempty"`
	BackgroundColor string `json:"backgroundColor"`
}

type VoiceJoinPayload struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`
}

type VoiceLeavePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type VoiceRoomStatePayload struct {
	VoiceUsers []board.VoiceParticipant `json:"voiceUsers"`
}

type VoiceUserJoinedPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`
}

type VoiceUserLeftPayload struct {
	UserID string `json:"userId"`
}

// VoiceSignalPayload carries an opaque signaling blob between exactly two
// peers. The server never looks inside Signal.
type VoiceSignalPayload struct {
	RoomID       string          `json:"roomId"`
	TargetUserID string          `json:"targetUserId"`
	CallerUserID string          `json:"callerUserId"`
	Signal       json.RawMessage `json:"signal"`
}

type VoiceSignalDelivery struct {
	CallerUserID string          `json:"callerUserId"`
	Signal       json.RawMessage `json:"signal"`
}

type VoiceSpeakingPayload struct {
	RoomID     string `json:"roomId,omitempty"`
	UserID     string `json:"userId"`
	IsSpeaking bool   `json:"isSpeaking"`
}

type VoiceMutePayload struct {
	RoomID  string `json:"roomId,omitempty"`
	UserID  string `json:"userId"`
	IsMuted bool   `json:"isMuted"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// encode frames an outbound event. Marshal failures cannot happen for the
// catalogue's payload types, so a nil return only signals a programming
// error upstream.
func encode(event string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to encode %s payload: %v", event, err)
		return nil
	}
	raw, err := json.Marshal(Envelope{Type: event, Data: payload})
	if err != nil {
		log.Printf("Failed to encode %s envelope: %v", event, err)
		return nil
	}
	return raw
}
