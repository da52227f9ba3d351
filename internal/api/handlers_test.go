package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sameersharmadev/canverse/internal/board"
	"github.com/sameersharmadev/canverse/internal/ws"
)

type memCache struct {
	mu   sync.Mutex
	rows map[string]*board.Snapshot
}

func newMemCache() *memCache {
	return &memCache{rows: make(map[string]*board.Snapshot)}
}

func (c *memCache) Load(ctx context.Context, roomID string) (*board.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.rows[roomID]
	if !ok {
		return nil, board.ErrSnapshotNotFound
	}
	return snap, nil
}

func (c *memCache) Save(ctx context.Context, roomID string, snap *board.Snapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[roomID] = snap
	return nil
}

func (c *memCache) Delete(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, roomID)
	return nil
}

func newTestAPI(t *testing.T) (*API, *board.Store, *memCache) {
	t.Helper()
	cache := newMemCache()
	rooms := board.NewStore(cache, time.Hour, time.Hour)
	t.Cleanup(rooms.Close)
	hub := ws.NewHub()
	return New(hub, rooms), rooms, cache
}

func serve(t *testing.T, a *API, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := mux.NewRouter()
	a.RegisterRoutes(router)

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rec := serve(t, a, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRoomInfoUnknownRoom(t *testing.T) {
	a, rooms, cache := newTestAPI(t)

	rec := serve(t, a, http.MethodGet, "/rooms/NOPE/info")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RoomInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOPE", resp.RoomID)
	assert.False(t, resp.Exists)
	assert.Zero(t, resp.ParticipantCount)
	assert.Zero(t, resp.ElementCount)

	// probing must not create the room anywhere
	assert.Zero(t, rooms.RoomCount())
	assert.Empty(t, cache.rows)
}

func TestRoomInfoActiveRoom(t *testing.T) {
	a, rooms, _ := newTestAPI(t)

	rooms.Join(context.Background(), "ABCD", "alice", "sess-1")
	x, y, w, h := 0.0, 0.0, 10.0, 10.0
	rooms.CommitElement(context.Background(), "ABCD", board.Element{
		ID: "r1", Kind: board.KindRectangle, X: &x, Y: &y, Width: &w, Height: &h,
	})

	rec := serve(t, a, http.MethodGet, "/rooms/ABCD/info")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RoomInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Exists)
	assert.Equal(t, 1, resp.ParticipantCount)
	assert.Equal(t, 1, resp.ElementCount)
	assert.NotZero(t, resp.LastActivity)
}

func TestRoomInfoColdRoomFromCache(t *testing.T) {
	_, rooms, cache := newTestAPI(t)

	// populate, then drop the in-memory copy so only the cached row remains
	rooms.Join(context.Background(), "ABCD", "alice", "sess-1")
	snap, err := cache.Load(context.Background(), "ABCD")
	require.NoError(t, err)
	other := board.NewStore(cache, time.Hour, time.Hour)
	t.Cleanup(other.Close)
	coldAPI := New(ws.NewHub(), other)
	require.NotNil(t, snap)

	rec := serve(t, coldAPI, http.MethodGet, "/rooms/ABCD/info")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RoomInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Exists)
	assert.Equal(t, 1, resp.ParticipantCount)
	assert.Zero(t, other.RoomCount(), "info must not pull the room into memory")
}

func TestStatsHandler(t *testing.T) {
	a, rooms, _ := newTestAPI(t)
	rooms.Join(context.Background(), "ABCD", "alice", "sess-1")

	rec := serve(t, a, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["active_rooms"])
	assert.EqualValues(t, 0, body["active_clients"])
	assert.EqualValues(t, 1, body["resident_rooms"])
}

func TestRoutesRejectWrongMethod(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rec := serve(t, a, http.MethodPost, "/health")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
