package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sameersharmadev/canverse/internal/board"
	"github.com/sameersharmadev/canverse/internal/ws"
)

type API struct {
	hub   *ws.Hub
	rooms *board.Store
}

func New(hub *ws.Hub, rooms *board.Store) *API {
	return &API{hub: hub, rooms: rooms}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RoomInfoResponse is the pre-join summary clients use to validate a room
// ID before connecting.
type RoomInfoResponse struct {
	RoomID           string `json:"roomId"`
	Exists           bool   `json:"exists"`
	ParticipantCount int    `json:"participantCount"`
	ElementCount     int    `json:"elementCount"`
	LastActivity     int64  `json:"lastActivity,omitempty"`
}

// RoomInfoHandler reports on a room without creating it: checking whether a
// room exists must not leave a durable row behind.
func (a *API) RoomInfoHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	info := a.rooms.Info(r.Context(), roomID)
	resp := RoomInfoResponse{
		RoomID:           roomID,
		Exists:           info.Exists,
		ParticipantCount: info.Participants,
		ElementCount:     info.Elements,
	}
	if info.Exists {
		resp.LastActivity = info.LastActivity.UnixMilli()
	}

	jsonResponse(w, http.StatusOK, resp)
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"resident_rooms": a.rooms.RoomCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// RegisterRoutes mounts the HTTP surface on the router.
func (a *API) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomId}/info", a.RoomInfoHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", a.StatsHandler).Methods(http.MethodGet)
}
