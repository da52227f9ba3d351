package board_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sameersharmadev/canverse/internal/board"
)

// fakeCache is an in-memory board.Cache with failure injection.
type fakeCache struct {
	mu       sync.Mutex
	rows     map[string]*board.Snapshot
	saves    int
	deletes  int
	lastTTL  time.Duration
	failLoad bool
	failSave bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{rows: make(map[string]*board.Snapshot)}
}

func (f *fakeCache) Load(ctx context.Context, roomID string) (*board.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad {
		return nil, errors.New("cache unreachable")
	}
	snap, ok := f.rows[roomID]
	if !ok {
		return nil, board.ErrSnapshotNotFound
	}
	return snap, nil
}

func (f *fakeCache) Save(ctx context.Context, roomID string, snap *board.Snapshot, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("cache unreachable")
	}
	f.rows[roomID] = snap
	f.saves++
	f.lastTTL = ttl
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, roomID)
	f.deletes++
	return nil
}

func (f *fakeCache) row(roomID string) (*board.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.rows[roomID]
	return snap, ok
}

func (f *fakeCache) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeCache) savedTTL() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTTL
}

func newTestStore(cache *fakeCache) *board.Store {
	return board.NewStore(cache, time.Hour, 25*time.Millisecond)
}

func rect(id string) board.Element {
	x, y, w, h := 10.0, 20.0, 100.0, 50.0
	return board.Element{
		ID:     id,
		Kind:   board.KindRectangle,
		X:      &x,
		Y:      &y,
		Width:  &w,
		Height: &h,
		Stroke: "#000000",
	}
}

func TestJoinCreatesRoomWithDurableRow(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()

	res := store.Join(context.Background(), "ABCD", "alice", "sess-a")

	require.NotEmpty(t, res.Participant.ID)
	assert.Equal(t, "alice", res.Participant.Name)
	assert.Equal(t, board.ColorFor(res.Participant.ID), res.Participant.Color)
	assert.False(t, res.Rejoined)

	assert.Empty(t, res.State.Elements)
	assert.Len(t, res.State.Participants, 1)
	assert.Equal(t, board.Viewport{X: 0, Y: 0, Scale: 1}, res.State.Viewport)
	assert.Equal(t, "#ffffff", res.State.Background)

	// every referenced room gets a cache row immediately
	snap, ok := cache.row("ABCD")
	require.True(t, ok)
	assert.Equal(t, "ABCD", snap.ID)
	assert.Len(t, snap.Participants, 1)
}

func TestJoinMaterializesRoomFromCache(t *testing.T) {
	cache := newFakeCache()
	el := rect("r1")
	cache.rows["ABCD"] = &board.Snapshot{
		ID:         "ABCD",
		Elements:   []board.Element{el},
		Viewport:   board.Viewport{X: 5, Y: -3, Scale: 2},
		Background: "#222222",
	}

	store := newTestStore(cache)
	defer store.Close()

	res := store.Join(context.Background(), "ABCD", "bob", "sess-b")
	require.Len(t, res.State.Elements, 1)
	assert.Equal(t, "r1", res.State.Elements[0].ID)
	assert.Equal(t, board.Viewport{X: 5, Y: -3, Scale: 2}, res.State.Viewport)
	assert.Equal(t, "#222222", res.State.Background)
}

func TestJoinIsIdempotentPerSession(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()

	first := store.Join(context.Background(), "ABCD", "alice", "sess-a")
	second := store.Join(context.Background(), "ABCD", "alice", "sess-a")

	assert.True(t, second.Rejoined)
	assert.Equal(t, first.Participant.ID, second.Participant.ID)
	assert.Len(t, second.State.Participants, 1)
}

func TestCacheFailuresNeverPropagate(t *testing.T) {
	cache := newFakeCache()
	cache.failLoad = true
	cache.failSave = true

	store := newTestStore(cache)
	defer store.Close()

	res := store.Join(context.Background(), "ABCD", "alice", "sess-a")
	assert.NotEmpty(t, res.Participant.ID)
	assert.Empty(t, res.State.Elements)

	store.CommitElement(context.Background(), "ABCD", rect("r1"))
	info := store.Info(context.Background(), "ABCD")
	assert.True(t, info.Exists)
	assert.Equal(t, 1, info.Elements)
}

func TestCommitElementLastWriteWins(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	store.Join(ctx, "ABCD", "alice", "sess-a")

	first := rect("r1")
	store.CommitElement(ctx, "ABCD", first)

	second := rect("r1")
	second.Stroke = "#ff0000"
	store.CommitElement(ctx, "ABCD", second)

	snap, ok := cache.row("ABCD")
	require.True(t, ok)
	require.Len(t, snap.Elements, 1)
	assert.Equal(t, "r1", snap.Elements[0].ID)
	assert.Equal(t, "#ff0000", snap.Elements[0].Stroke)
}

func TestCommittedMutationsRefreshSnapshotTTL(t *testing.T) {
	cache := newFakeCache()
	store := board.NewStore(cache, 42*time.Minute, 25*time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	store.Join(ctx, "ABCD", "alice", "sess-a")
	assert.Equal(t, 42*time.Minute, cache.savedTTL())

	store.CommitElement(ctx, "ABCD", rect("r1"))
	assert.Equal(t, 42*time.Minute, cache.savedTTL())

	store.SetBackground(ctx, "ABCD", "#000000")
	assert.Equal(t, 42*time.Minute, cache.savedTTL())
}

func TestDeleteElementsIsIdempotent(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	store.Join(ctx, "ABCD", "alice", "sess-a")
	store.CommitElement(ctx, "ABCD", rect("r1"))
	store.CommitElement(ctx, "ABCD", rect("r2"))

	store.DeleteElements(ctx, "ABCD", []string{"r1", "missing"})
	store.DeleteElements(ctx, "ABCD", []string{"r1"})

	snap, ok := cache.row("ABCD")
	require.True(t, ok)
	require.Len(t, snap.Elements, 1)
	assert.Equal(t, "r2", snap.Elements[0].ID)
}

func TestCursorUpdatesSkipWriteThrough(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	res := store.Join(ctx, "ABCD", "alice", "sess-a")
	saves := cache.saveCount()

	require.True(t, store.UpdateCursor("ABCD", res.Participant.ID, 42, 7))
	assert.Equal(t, saves, cache.saveCount())

	// a later committed mutation persists, but without the cursor
	store.CommitElement(ctx, "ABCD", rect("r1"))
	snap, ok := cache.row("ABCD")
	require.True(t, ok)
	require.Len(t, snap.Participants, 1)
	assert.Nil(t, snap.Participants[0].Participant.Cursor)
}

func TestUpdateCursorUnknownParticipant(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()

	store.Join(context.Background(), "ABCD", "alice", "sess-a")
	assert.False(t, store.UpdateCursor("ABCD", "nobody", 1, 2))
	assert.False(t, store.UpdateCursor("XXXX", "nobody", 1, 2))
}

func TestEmptyRoomEvictedAfterGraceWindow(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	res := store.Join(ctx, "ABCD", "alice", "sess-a")
	store.CommitElement(ctx, "ABCD", rect("r1"))

	left := store.Leave(ctx, "ABCD", res.Participant.ID)
	assert.True(t, left.Removed)

	require.Eventually(t, func() bool {
		_, ok := cache.row("ABCD")
		return !ok && store.RoomCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRejoinBeforeGraceWindowCancelsEviction(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	res := store.Join(ctx, "ABCD", "alice", "sess-a")
	store.CommitElement(ctx, "ABCD", rect("r1"))
	store.Leave(ctx, "ABCD", res.Participant.ID)

	rejoined := store.Join(ctx, "ABCD", "alice", "sess-a2")
	require.Len(t, rejoined.State.Elements, 1)

	// outlive the grace window: the board must survive
	time.Sleep(80 * time.Millisecond)

	info := store.Info(ctx, "ABCD")
	assert.True(t, info.Exists)
	assert.Equal(t, 1, info.Elements)
	_, ok := cache.row("ABCD")
	assert.True(t, ok)
}

// Races the eviction timer against an immediate rejoin. With a zero grace
// window every leave fires eviction at once, so the rejoin and the evictor
// contend for the same room over and over. Whenever the rejoin got the old
// board back, the room must still exist afterwards; eviction may only win
// before the join, never behind it.
func TestRejoinRacingEvictionNeverLosesBoard(t *testing.T) {
	cache := newFakeCache()
	store := board.NewStore(cache, time.Hour, 0)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		roomID := fmt.Sprintf("ROOM%d", i%8)

		res := store.Join(ctx, roomID, "alice", fmt.Sprintf("sess-%d", i))
		store.CommitElement(ctx, roomID, rect("r1"))
		store.Leave(ctx, roomID, res.Participant.ID)

		re := store.Join(ctx, roomID, "alice", fmt.Sprintf("sess-%d-re", i))
		if len(re.State.Elements) == 1 {
			info := store.Info(ctx, roomID)
			require.True(t, info.Exists, "iteration %d: room vanished after a rejoin that returned its board", i)
			require.Equal(t, 1, info.Elements, "iteration %d", i)
		}
		store.Leave(ctx, roomID, re.Participant.ID)
	}
}

func TestLeaveCleansVoiceRosterDefensively(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	a := store.Join(ctx, "ABCD", "alice", "sess-a")
	store.Join(ctx, "ABCD", "bob", "sess-b")
	store.VoiceJoin(ctx, "ABCD", board.VoiceParticipant{ID: a.Participant.ID, Name: "alice", Color: a.Participant.Color})

	res := store.Leave(ctx, "ABCD", a.Participant.ID)
	assert.True(t, res.Removed)
	assert.True(t, res.VoiceRemoved)

	// leaving a second time is a no-op on both rosters
	res = store.Leave(ctx, "ABCD", a.Participant.ID)
	assert.False(t, res.Removed)
	assert.False(t, res.VoiceRemoved)
}

func TestVoiceRosterIndependentOfPresence(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	a := store.Join(ctx, "ABCD", "alice", "sess-a")
	b := store.Join(ctx, "ABCD", "bob", "sess-b")

	others := store.VoiceJoin(ctx, "ABCD", board.VoiceParticipant{ID: a.Participant.ID, Name: "alice"})
	assert.Empty(t, others)

	others = store.VoiceJoin(ctx, "ABCD", board.VoiceParticipant{ID: b.Participant.ID, Name: "bob"})
	require.Len(t, others, 1)
	assert.Equal(t, a.Participant.ID, others[0].ID)

	// hanging up never touches drawing presence
	require.True(t, store.VoiceLeave("ABCD", b.Participant.ID))
	info := store.Info(ctx, "ABCD")
	assert.Equal(t, 2, info.Participants)

	// and the roster is never persisted
	snap, ok := cache.row("ABCD")
	require.True(t, ok)
	assert.Len(t, snap.Participants, 2)
}

func TestVoiceLeaveAbsentMemberIsNoop(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()

	store.Join(context.Background(), "ABCD", "alice", "sess-a")
	assert.False(t, store.VoiceLeave("ABCD", "nobody"))
	assert.False(t, store.VoiceLeave("XXXX", "nobody"))
}

func TestInfoDoesNotCreateRoom(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()

	info := store.Info(context.Background(), "GHOST")
	assert.False(t, info.Exists)
	assert.Zero(t, info.Participants)
	assert.Zero(t, info.Elements)

	_, ok := cache.row("GHOST")
	assert.False(t, ok)
	assert.Equal(t, 0, store.RoomCount())
}

func TestInfoReadsCacheForColdRoom(t *testing.T) {
	cache := newFakeCache()
	cache.rows["COLD"] = &board.Snapshot{
		ID:       "COLD",
		Elements: []board.Element{rect("r1"), rect("r2")},
	}

	store := newTestStore(cache)
	defer store.Close()

	info := store.Info(context.Background(), "COLD")
	assert.True(t, info.Exists)
	assert.Equal(t, 2, info.Elements)
	assert.Equal(t, 0, store.RoomCount())
}

func TestConcurrentCommitsKeepOneElementPerID(t *testing.T) {
	cache := newFakeCache()
	store := newTestStore(cache)
	defer store.Close()
	ctx := context.Background()

	store.Join(ctx, "ABCD", "alice", "sess-a")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.CommitElement(ctx, "ABCD", rect("contested"))
		}()
	}
	wg.Wait()

	info := store.Info(ctx, "ABCD")
	assert.Equal(t, 1, info.Elements)
}
