package devserver

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomsync-dev/roomsync/pkg/client"
	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

func startServer(t *testing.T) string {
	t.Helper()
	srv := New(Config{Logger: discardLogger()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testSpawner struct{}

func (testSpawner) Has(template string) bool { return template == "pawn" }

func (testSpawner) Spawn(string, protocol.Vec3, protocol.Vec3) (any, error) {
	return &struct{}{}, nil
}

func (testSpawner) Despawn(any) {}

func newParticipant(t *testing.T, addr string, cb client.Callbacks) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.ServerAddr = addr
	cfg.ReconnectAttempts = 0
	cfg.BatchInterval = 5 * time.Millisecond
	cfg.StreamDelay = 5 * time.Millisecond
	cfg.StreamRate = 100
	cfg.Logger = discardLogger()
	cfg.Spawner = testSpawner{}

	c := client.New(cfg, cb)
	t.Cleanup(c.Close)
	return c
}

// eval runs fn on the client's dispatch goroutine and returns its result.
func eval[T any](c *client.Client, fn func() T) T {
	ch := make(chan T, 1)
	c.Dispatch(func() { ch <- fn() })
	return <-ch
}

// callOnLoop runs a dispatch-goroutine-only operation and checks its error
// from the test goroutine.
func callOnLoop(t *testing.T, c *client.Client, fn func() error) {
	t.Helper()
	require.NoError(t, eval(c, fn))
}

func connectAndWait(t *testing.T, c *client.Client, name string) string {
	t.Helper()
	c.Connect(name)
	var id string
	require.Eventually(t, func() bool {
		id = eval(c, c.PlayerID)
		return id != ""
	}, 2*time.Second, 10*time.Millisecond)
	return id
}

func joinAndWait(t *testing.T, c *client.Client, room string) {
	t.Helper()
	c.JoinRoom(room)
	require.Eventually(t, func() bool {
		return eval(c, c.State) == client.StateInRoom
	}, 2*time.Second, 10*time.Millisecond)
}

// recorder collects event handler invocations across goroutines.
type recorder struct {
	mu   sync.Mutex
	args [][]any
}

func (r *recorder) handler(_ *client.Entity, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, args)
}

func (r *recorder) calls() [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]any(nil), r.args...)
}

func TestConnectCreateList(t *testing.T) {
	addr := startServer(t)
	c := newParticipant(t, addr, client.Callbacks{})
	connectAndWait(t, c, "alice")

	created := make(chan protocol.Room, 1)
	c2 := newParticipant(t, addr, client.Callbacks{
		OnRoomCreated: func(room protocol.Room) { created <- room },
	})
	connectAndWait(t, c2, "bob")
	c2.CreateRoom("lobby", 2)

	select {
	case room := <-created:
		assert.Equal(t, "lobby", room.Name)
		assert.Equal(t, 2, room.MaxPlayers)
	case <-time.After(2 * time.Second):
		t.Fatal("room creation not confirmed")
	}

	type listResult struct {
		rooms []protocol.Room
		err   error
	}
	listed := make(chan listResult, 1)
	c.RoomList(func(rooms []protocol.Room, err error) {
		listed <- listResult{rooms: rooms, err: err}
	})
	select {
	case res := <-listed:
		require.NoError(t, res.err)
		require.Len(t, res.rooms, 1)
		assert.Equal(t, "lobby", res.rooms[0].Name)
		assert.Equal(t, 0, res.rooms[0].CurrentPlayers)
	case <-time.After(2 * time.Second):
		t.Fatal("room list not delivered")
	}
}

func TestDuplicateRoomRejected(t *testing.T) {
	addr := startServer(t)
	failed := make(chan string, 1)
	c := newParticipant(t, addr, client.Callbacks{
		OnError: func(op string, err error) { failed <- op },
	})
	connectAndWait(t, c, "alice")

	created := make(chan struct{}, 1)
	c2 := newParticipant(t, addr, client.Callbacks{
		OnRoomCreated: func(protocol.Room) { created <- struct{}{} },
	})
	connectAndWait(t, c2, "bob")
	c2.CreateRoom("lobby", 2)
	<-created

	c.CreateRoom("lobby", 2)
	select {
	case op := <-failed:
		assert.Equal(t, "create-room", op)
	case <-time.After(2 * time.Second):
		t.Fatal("duplicate room creation did not fail")
	}
}

func TestSessionEndToEnd(t *testing.T) {
	addr := startServer(t)

	aliceEvents := &recorder{}
	alice := newParticipant(t, addr, client.Callbacks{})
	require.NoError(t, alice.RegisterEvent("wave", []client.ArgKind{client.KindString}, aliceEvents.handler))

	aliceID := connectAndWait(t, alice, "alice")
	alice.CreateOrJoinRoom("lobby", 3)
	require.Eventually(t, func() bool {
		return eval(alice, alice.State) == client.StateInRoom
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, eval(alice, alice.IsAuthority))

	// Alice spawns her pawn; the server's echo assigns the id.
	callOnLoop(t, alice, func() error {
		return alice.Instantiate("pawn", protocol.Vec3{X: 1}, protocol.Vec3{})
	})
	require.Eventually(t, func() bool {
		return eval(alice, alice.Directory().Len) == 1
	}, 2*time.Second, 10*time.Millisecond)
	pawnID := eval(alice, func() int {
		return alice.Directory().OwnedBy(aliceID)[0].ID
	})

	// Bob joins and is seeded with Alice's pawn.
	bobEvents := &recorder{}
	bob := newParticipant(t, addr, client.Callbacks{})
	require.NoError(t, bob.RegisterEvent("wave", []client.ArgKind{client.KindString}, bobEvents.handler))
	connectAndWait(t, bob, "bob")
	joinAndWait(t, bob, "lobby")
	require.Eventually(t, func() bool {
		return eval(bob, bob.Directory().Len) == 1
	}, 2*time.Second, 10*time.Millisecond)
	bobView := eval(bob, func() *client.Entity { return bob.Directory().Get(pawnID) })
	require.NotNil(t, bobView)
	assert.Equal(t, aliceID, bobView.Owner)

	// Alice sees the membership grow.
	require.Eventually(t, func() bool {
		room := eval(alice, alice.Room)
		return room != nil && room.CurrentPlayers == 2
	}, 2*time.Second, 10*time.Millisecond)

	// A relayed event executes on every participant, sender included.
	callOnLoop(t, alice, func() error {
		return alice.CallEvent(pawnID, "wave", client.ServerRelayed, "hello")
	})
	require.Eventually(t, func() bool {
		return len(aliceEvents.calls()) == 1 && len(bobEvents.calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []any{"hello"}, bobEvents.calls()[0])

	// A buffered event reaches current members now and later joiners on
	// arrival.
	callOnLoop(t, alice, func() error {
		return alice.CallEvent(pawnID, "wave", client.Buffered, "welcome")
	})
	require.Eventually(t, func() bool {
		return len(bobEvents.calls()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	carolEvents := &recorder{}
	carol := newParticipant(t, addr, client.Callbacks{})
	require.NoError(t, carol.RegisterEvent("wave", []client.ArgKind{client.KindString}, carolEvents.handler))
	connectAndWait(t, carol, "carol")
	joinAndWait(t, carol, "lobby")
	require.Eventually(t, func() bool {
		calls := carolEvents.calls()
		return len(calls) == 1 && calls[0][0] == "welcome"
	}, 2*time.Second, 10*time.Millisecond)

	// The pong exchange produces a latency estimate once streams flow.
	require.Eventually(t, func() bool {
		return bob.Latency() != 0
	}, 2*time.Second, 10*time.Millisecond)

	// Destroy propagates to everyone.
	callOnLoop(t, alice, func() error {
		return alice.DestroyEntity(pawnID)
	})
	for _, c := range []*client.Client{alice, bob, carol} {
		require.Eventually(t, func() bool {
			return eval(c, c.Directory().Len) == 0
		}, 2*time.Second, 10*time.Millisecond)
	}

	// Bob leaves; the others see the membership shrink.
	bob.LeaveRoom()
	require.Eventually(t, func() bool {
		room := eval(alice, alice.Room)
		return room != nil && room.CurrentPlayers == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoomFullRejected(t *testing.T) {
	addr := startServer(t)

	created := make(chan struct{}, 1)
	alice := newParticipant(t, addr, client.Callbacks{
		OnRoomCreated: func(protocol.Room) { created <- struct{}{} },
	})
	connectAndWait(t, alice, "alice")
	alice.CreateRoom("duo", 1)
	<-created
	joinAndWait(t, alice, "duo")

	failed := make(chan string, 1)
	bob := newParticipant(t, addr, client.Callbacks{
		OnError: func(op string, err error) { failed <- op },
	})
	connectAndWait(t, bob, "bob")
	bob.JoinRoom("duo")

	select {
	case op := <-failed:
		assert.Equal(t, "join-room", op)
	case <-time.After(2 * time.Second):
		t.Fatal("join into a full room did not fail")
	}
}
