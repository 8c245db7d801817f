package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/blackjack/api/protocol"
	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/pkg/codes"
	"github.com/yola1107/blackjack/transport/websocket"
)

var ctx = context.Background()

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// captureConn records every frame sent to it.
type captureConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed atomic.Bool
}

func (c *captureConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *captureConn) Close() error { c.closed.Store(true); return nil }
func (c *captureConn) Closed() bool { return c.closed.Load() }

func (c *captureConn) drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type client struct {
	t    *testing.T
	s    *Service
	conn *captureConn
	id   string
	pid  string
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	c := conf.Default()
	m, mclean, err := NewMetrics()
	require.NoError(t, err)
	s, cleanup, err := NewService(c.Room, c.Game, c.Server.Work, websocket.NewSessionManager(), m, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanup()
		mclean()
	})
	return s
}

func connect(t *testing.T, s *Service) *client {
	conn := &captureConn{}
	return &client{t: t, s: s, conn: conn, id: s.sessions.Register(conn)}
}

func (c *client) raw(data string) error {
	return c.s.d.Dispatch(ctx, c.id, []byte(data))
}

func (c *client) send(typ string, payload any) error {
	data, err := json.Marshal(map[string]any{"type": typ, "payload": payload})
	require.NoError(c.t, err)
	return c.s.d.Dispatch(ctx, c.id, data)
}

func (c *client) frames() []frame {
	var out []frame
	for _, b := range c.conn.drain() {
		var f frame
		require.NoError(c.t, json.Unmarshal(b, &f))
		out = append(out, f)
	}
	return out
}

// expect pops every pending frame and requires exactly the given types.
func (c *client) expect(types ...string) []frame {
	c.t.Helper()
	fs := c.frames()
	got := make([]string, 0, len(fs))
	for _, f := range fs {
		got = append(got, f.Type)
	}
	if len(types) == 0 {
		require.Empty(c.t, got)
		return nil
	}
	require.Equal(c.t, types, got)
	return fs
}

// expectError requires exactly one pending ERROR frame matching want.
func (c *client) expectError(want *errors.Error) protocol.Error {
	c.t.Helper()
	fs := c.expect(protocol.TypeError)
	e := decode[protocol.Error](c.t, fs[0])
	require.Equal(c.t, want.Code, e.Code, e.Message)
	require.Equal(c.t, want.Reason, e.Reason)
	require.NotEmpty(c.t, e.Message)
	return e
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func (c *client) setName(name string) {
	c.t.Helper()
	require.NoError(c.t, c.send(protocol.TypeSetName, map[string]string{"name": name}))
	fs := c.expect(protocol.TypeNameSet)
	ns := decode[protocol.NameSet](c.t, fs[0])
	require.NotEmpty(c.t, ns.PlayerID)
	require.Equal(c.t, name, ns.Name)
	c.pid = ns.PlayerID
}

func (c *client) createRoom(payload map[string]any) protocol.RoomInfo {
	c.t.Helper()
	require.NoError(c.t, c.send(protocol.TypeCreateRoom, payload))
	fs := c.expect(protocol.TypeRoomCreated)
	return decode[protocol.RoomInfo](c.t, fs[0])
}

func (c *client) lastState() protocol.GameState {
	c.t.Helper()
	var st *protocol.GameState
	for _, f := range c.frames() {
		if f.Type == protocol.TypeGameState {
			v := decode[protocol.GameState](c.t, f)
			st = &v
		}
	}
	require.NotNil(c.t, st, "no GAME_STATE received")
	return *st
}

func card(rank, suit string) game.Card { return game.Card{Suit: suit, Rank: rank} }

// stacked puts the given cards on top of every fresh deck in draw order.
func stacked(top ...game.Card) game.Shuffler {
	return func(cards []game.Card) {
		for i, want := range top {
			for j := i; j < len(cards); j++ {
				if cards[j] == want {
					cards[i], cards[j] = cards[j], cards[i]
					break
				}
			}
		}
	}
}

// table seats alice (host) and bob in one room and drains their frames.
func table(t *testing.T, s *Service) (alice, bob *client, roomID string) {
	alice, bob = connect(t, s), connect(t, s)
	alice.setName("alice")
	bob.setName("bob")
	info := alice.createRoom(map[string]any{"roomName": "high rollers"})
	require.NoError(t, bob.send(protocol.TypeJoinRoom, map[string]string{"roomId": info.RoomID}))
	bob.expect(protocol.TypeJoinSuccess)
	alice.expect(protocol.TypePlayerJoined)
	return alice, bob, info.RoomID
}

func TestProtocolErrors(t *testing.T) {
	s := newTestService(t)
	c := connect(t, s)

	tests := []struct {
		name string
		raw  string
		want *errors.Error
	}{
		{"malformed json", `{"type":`, codes.ErrMalformed},
		{"missing type", `{"payload":{}}`, codes.ErrMissingType},
		{"unknown type", `{"type":"DANCE"}`, codes.ErrUnknownType},
		{"bad payload", `{"type":"PLACE_BET","payload":{"amount":"ten"}}`, codes.ErrBadPayload},
		{"name not set", `{"type":"CREATE_ROOM","payload":{}}`, codes.ErrNameNotSet},
		{"blank name", `{"type":"SET_NAME","payload":{"name":"   "}}`, codes.ErrNameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.t = t
			require.Error(t, c.raw(tt.raw))
			c.expectError(tt.want)
		})
	}
}

func TestSetNameCaseInsensitiveType(t *testing.T) {
	s := newTestService(t)
	c := connect(t, s)
	require.NoError(t, c.raw(`{"type":"set_name","payload":{"name":"  Ana  "}}`))
	fs := c.expect(protocol.TypeNameSet)
	ns := decode[protocol.NameSet](t, fs[0])
	assert.Equal(t, "Ana", ns.Name)

	// a second SET_NAME issues a new player id
	c.setName("Ana")
	assert.NotEqual(t, ns.PlayerID, c.pid)
	assert.Equal(t, 1, s.ids.Len())
}

func TestListRoomsWithoutName(t *testing.T) {
	s := newTestService(t)
	c := connect(t, s)
	require.NoError(t, c.send(protocol.TypeListRooms, nil))
	fs := c.expect(protocol.TypeRoomsList)
	assert.JSONEq(t, `[]`, string(fs[0].Payload))
}

func TestCreateListJoin(t *testing.T) {
	s := newTestService(t)
	alice, bob := connect(t, s), connect(t, s)
	alice.setName("alice")
	bob.setName("bob")

	info := alice.createRoom(map[string]any{"roomName": "", "password": "pw", "maxPlayers": 2})
	assert.Len(t, info.RoomID, 8)
	assert.Equal(t, "alice's table", info.Name)
	assert.Equal(t, alice.pid, info.HostPlayerID)
	assert.Equal(t, []protocol.PlayerInfo{{ID: alice.pid, Name: "alice"}}, info.Players)

	require.NoError(t, bob.send(protocol.TypeListRooms, nil))
	list := decode[[]protocol.RoomSummary](t, bob.expect(protocol.TypeRoomsList)[0])
	require.Len(t, list, 1)
	assert.Equal(t, protocol.RoomSummary{
		ID: info.RoomID, Name: "alice's table", PlayerCount: 1, HasPassword: true, HostName: "alice",
	}, list[0])

	require.Error(t, bob.send(protocol.TypeJoinRoom, map[string]string{"roomId": info.RoomID, "password": "nope"}))
	bob.expectError(codes.ErrWrongPassword)
	alice.expect()

	require.NoError(t, bob.send(protocol.TypeJoinRoom, map[string]string{"roomId": info.RoomID, "password": "pw"}))
	joined := decode[protocol.RoomInfo](t, bob.expect(protocol.TypeJoinSuccess)[0])
	assert.Equal(t, alice.pid, joined.HostPlayerID)
	assert.Equal(t, []protocol.PlayerInfo{{ID: alice.pid, Name: "alice"}, {ID: bob.pid, Name: "bob"}}, joined.Players)

	pj := decode[protocol.PlayerJoined](t, alice.expect(protocol.TypePlayerJoined)[0])
	assert.Equal(t, protocol.PlayerJoined{RoomID: info.RoomID, Player: protocol.PlayerInfo{ID: bob.pid, Name: "bob"}}, pj)

	// full rooms are not listed and cannot be joined
	carol := connect(t, s)
	carol.setName("carol")
	require.NoError(t, carol.send(protocol.TypeListRooms, nil))
	assert.JSONEq(t, `[]`, string(carol.expect(protocol.TypeRoomsList)[0].Payload))
	require.Error(t, carol.send(protocol.TypeJoinRoom, map[string]string{"roomId": info.RoomID, "password": "pw"}))
	carol.expectError(codes.ErrRoomFull)

	require.Error(t, bob.send(protocol.TypeCreateRoom, map[string]any{"roomName": "second"}))
	bob.expectError(codes.ErrAlreadyInRoom)
	require.Error(t, carol.send(protocol.TypeJoinRoom, map[string]string{"roomId": "ffffffff"}))
	carol.expectError(codes.ErrRoomNotFound)
}

func TestRoomScopedWithoutRoom(t *testing.T) {
	s := newTestService(t)
	c := connect(t, s)
	c.setName("solo")
	for _, typ := range []string{protocol.TypeLeaveRoom, protocol.TypeStartGame, protocol.TypeHit, protocol.TypeNewRound} {
		require.Error(t, c.send(typ, nil), typ)
		c.expectError(codes.ErrNotInRoom)
	}

	c.createRoom(nil)
	require.Error(t, c.send(protocol.TypePlaceBet, map[string]int{"amount": 10}))
	c.expectError(codes.ErrNoActiveGame)
}

func TestFullRound(t *testing.T) {
	s := newTestService(t)
	s.shuffle = stacked(
		card("10", "hearts"), card("9", "hearts"), // alice 19
		card("10", "spades"), card("6", "spades"), // bob 16
		card("10", "diamonds"), card("8", "diamonds"), // dealer 18
		card("10", "clubs"), // bob's hit
	)
	alice, bob, roomID := table(t, s)

	require.Error(t, bob.send(protocol.TypeStartGame, nil))
	bob.expectError(codes.ErrNotHost)

	require.NoError(t, alice.send(protocol.TypeStartGame, nil))
	st := alice.lastState()
	assert.Equal(t, roomID, st.RoomID)
	assert.Equal(t, "Betting", st.State)
	assert.Equal(t, -1, st.CurrentPlayerIndex)
	assert.Equal(t, "Betting", bob.lastState().State)

	// late joiners are turned away once the game runs
	carol := connect(t, s)
	carol.setName("carol")
	require.Error(t, carol.send(protocol.TypeJoinRoom, map[string]string{"roomId": roomID}))
	carol.expectError(codes.ErrGameInProgress)

	require.Error(t, alice.send(protocol.TypeHit, nil))
	alice.expectError(codes.ErrWrongPhase)
	require.Error(t, alice.send(protocol.TypeStartGame, nil))
	alice.expectError(codes.ErrGameAlreadyStarted)

	require.Error(t, alice.send(protocol.TypePlaceBet, map[string]int{"amount": 0}))
	alice.expectError(codes.ErrBetTooLow)
	require.Error(t, alice.send(protocol.TypePlaceBet, map[string]int{"amount": 5000}))
	alice.expectError(codes.ErrInsufficientFunds)
	bob.expect()

	require.NoError(t, alice.send(protocol.TypePlaceBet, map[string]int{"amount": 100}))
	st = bob.lastState()
	assert.Equal(t, "Betting", st.State)
	assert.Equal(t, "BetPlaced", st.Players[0].Status)
	alice.lastState()

	require.NoError(t, bob.send(protocol.TypePlaceBet, map[string]int{"amount": 50}))
	st = alice.lastState()
	bob.lastState()
	assert.Equal(t, "PlayerTurn", st.State)
	assert.Equal(t, 0, st.CurrentPlayerIndex)
	assert.Equal(t, 19, st.Players[0].HandValue)
	require.Len(t, st.DealerHand, 2)
	assert.True(t, st.DealerHand[1].Hidden)
	assert.Equal(t, 10, st.DealerValue)
	assert.Equal(t, 52-6, st.CardsRemaining)

	require.Error(t, bob.send(protocol.TypeHit, nil))
	bob.expectError(codes.ErrNotYourTurn)

	require.NoError(t, alice.send(protocol.TypeStand, nil))
	st = bob.lastState()
	alice.lastState()
	assert.Equal(t, 1, st.CurrentPlayerIndex)

	require.NoError(t, bob.send(protocol.TypeHit, nil))
	st = alice.lastState()
	bob.lastState()
	assert.Equal(t, "GameOver", st.State)
	assert.Equal(t, "Busted", st.Players[1].Status)
	assert.Equal(t, int64(1100), st.Players[0].Balance)
	assert.Equal(t, int64(950), st.Players[1].Balance)
	assert.False(t, st.DealerHand[1].Hidden)
	assert.Equal(t, 18, st.DealerValue)
	assert.NotEmpty(t, st.Messages)
	assert.LessOrEqual(t, len(st.Messages), 5)

	require.Error(t, alice.send(protocol.TypePlaceBet, map[string]int{"amount": 10}))
	alice.expectError(codes.ErrWrongPhase)

	require.NoError(t, bob.send(protocol.TypeNewRound, nil))
	st = alice.lastState()
	bob.lastState()
	assert.Equal(t, "Betting", st.State)
	assert.Equal(t, int64(1100), st.Players[0].Balance)
	assert.Empty(t, st.DealerHand)
}

func TestLeaveHostHandoffAndDelete(t *testing.T) {
	s := newTestService(t)
	alice, bob, roomID := table(t, s)

	require.NoError(t, alice.send(protocol.TypeLeaveRoom, nil))
	lr := decode[protocol.LeftRoom](t, alice.expect(protocol.TypeLeftRoom)[0])
	assert.Equal(t, roomID, lr.RoomID)

	fs := bob.expect(protocol.TypePlayerLeft, protocol.TypeNewHost)
	assert.Equal(t, protocol.PlayerLeft{RoomID: roomID, PlayerID: alice.pid}, decode[protocol.PlayerLeft](t, fs[0]))
	assert.Equal(t, protocol.NewHost{RoomID: roomID, HostID: bob.pid, HostName: "bob"}, decode[protocol.NewHost](t, fs[1]))

	require.Error(t, alice.send(protocol.TypeLeaveRoom, nil))
	alice.expectError(codes.ErrNotInRoom)

	require.NoError(t, bob.send(protocol.TypeLeaveRoom, nil))
	bob.expect(protocol.TypeLeftRoom)
	assert.Equal(t, 0, s.rooms.Len())
	_, ok := s.rooms.Get(roomID)
	assert.False(t, ok)
}

func TestDisconnectMidTurn(t *testing.T) {
	s := newTestService(t)
	s.shuffle = stacked(
		card("10", "hearts"), card("5", "hearts"), // alice 15
		card("10", "spades"), card("6", "spades"), // bob 16
		card("10", "diamonds"), card("7", "diamonds"), // dealer 17
	)
	alice, bob, roomID := table(t, s)
	require.NoError(t, alice.send(protocol.TypeStartGame, nil))
	require.NoError(t, alice.send(protocol.TypePlaceBet, map[string]int{"amount": 10}))
	require.NoError(t, bob.send(protocol.TypePlaceBet, map[string]int{"amount": 10}))
	require.Equal(t, 0, bob.lastState().CurrentPlayerIndex)
	alice.frames()

	// connection gone: registry entry first, then the identity chain
	_, ok := s.sessions.Unregister(alice.id)
	require.True(t, ok)
	assert.True(t, alice.conn.Closed())
	s.disconnect(ctx, alice.id)

	fs := bob.expect(protocol.TypePlayerLeft, protocol.TypeNewHost, protocol.TypeGameState)
	assert.Equal(t, alice.pid, decode[protocol.PlayerLeft](t, fs[0]).PlayerID)
	assert.Equal(t, bob.pid, decode[protocol.NewHost](t, fs[1]).HostID)
	st := decode[protocol.GameState](t, fs[2])
	assert.Equal(t, roomID, st.RoomID)
	require.Len(t, st.Players, 1)
	assert.Equal(t, 0, st.CurrentPlayerIndex)
	assert.Equal(t, bob.pid, st.Players[0].PlayerID)

	_, ok = s.ids.PlayerOf(alice.id)
	assert.False(t, ok)
	assert.Equal(t, 1, s.ids.Len())

	// a second close is a no-op
	s.disconnect(ctx, alice.id)
	bob.expect()

	require.NoError(t, bob.send(protocol.TypeStand, nil))
	assert.Equal(t, "GameOver", bob.lastState().State)
}

func TestRenameLeavesRoom(t *testing.T) {
	s := newTestService(t)
	alice, bob, roomID := table(t, s)
	oldID := alice.pid

	require.NoError(t, alice.send(protocol.TypeSetName, map[string]string{"name": "alicia"}))
	fs := alice.expect(protocol.TypeLeftRoom, protocol.TypeNameSet)
	ns := decode[protocol.NameSet](t, fs[1])
	assert.NotEqual(t, oldID, ns.PlayerID)
	assert.Equal(t, "alicia", ns.Name)

	fs = bob.expect(protocol.TypePlayerLeft, protocol.TypeNewHost)
	assert.Equal(t, oldID, decode[protocol.PlayerLeft](t, fs[0]).PlayerID)

	_, seated := s.rooms.RoomOf(ns.PlayerID)
	assert.False(t, seated)
	id, _ := s.rooms.RoomOf(bob.pid)
	assert.Equal(t, roomID, id)
}

func TestBroadcastToRoom(t *testing.T) {
	s := newTestService(t)
	alice, bob, roomID := table(t, s)

	err := s.Broadcaster().BroadcastToRoom(ctx, roomID, protocol.TypeNewHost,
		&protocol.NewHost{RoomID: roomID, HostID: alice.pid, HostName: "alice"}, alice.pid)
	require.NoError(t, err)
	bob.expect(protocol.TypeNewHost)
	alice.expect()

	err = s.Broadcaster().BroadcastToRoom(ctx, "missing", protocol.TypeNewHost, nil, "")
	assert.True(t, errors.Is(err, codes.ErrRoomNotFound))

	// stale seats are skipped
	s.sessions.Unregister(bob.id)
	n := s.Broadcaster().Fanout([]string{alice.pid, bob.pid}, []byte(`{}`), "")
	assert.Equal(t, 1, n)
}

func TestPanicBecomesInternalError(t *testing.T) {
	s := newTestService(t)
	c := connect(t, s)
	c.setName("boom")
	s.d.handlers[protocol.TypeHit] = func(context.Context, *request) error { panic("boom") }

	err := c.send(protocol.TypeHit, nil)
	require.Error(t, err)
	c.expectError(codes.ErrInternal)

	// the connection keeps working
	require.NoError(t, c.send(protocol.TypeListRooms, nil))
	c.expect(protocol.TypeRoomsList)
}

func TestStatsCountsDispatches(t *testing.T) {
	s := newTestService(t)
	c := connect(t, s)
	c.setName("counter")
	_ = c.send(protocol.TypeLeaveRoom, nil)
	_ = c.raw(`nonsense`)

	st := s.Stats(ctx)
	assert.Equal(t, 1, st.Connections)
	assert.Equal(t, 1, st.Players)
	assert.Equal(t, int64(1), st.Dispatched["SET_NAME/OK"])
	assert.Equal(t, int64(1), st.Dispatched["LEAVE_ROOM/NOT_IN_ROOM"])
	assert.Equal(t, int64(1), st.Dispatched["INVALID/MALFORMED"])
	s.reportStats()
}

func TestGameConfigFollowsWatcher(t *testing.T) {
	c := conf.Default()
	m, mclean, err := NewMetrics()
	require.NoError(t, err)
	defer mclean()
	w := conf.NewWatcher()
	s, cleanup, err := NewService(c.Room, c.Game, c.Server.Work, websocket.NewSessionManager(), m, w)
	require.NoError(t, err)
	defer cleanup()

	alice := connect(t, s)
	alice.setName("alice")
	alice.createRoom(nil)

	updated := *c.Game
	updated.StartingBalance = 250
	w.Publish("game", &updated)

	require.NoError(t, alice.send(protocol.TypeStartGame, nil))
	assert.Equal(t, int64(250), alice.lastState().Players[0].Balance)
}

func TestRoomLogFollowsWatcher(t *testing.T) {
	c := conf.Default()
	m, mclean, err := NewMetrics()
	require.NoError(t, err)
	defer mclean()
	w := conf.NewWatcher()
	s, cleanup, err := NewService(c.Room, c.Game, c.Server.Work, websocket.NewSessionManager(), m, w)
	require.NoError(t, err)
	defer cleanup()

	dir := t.TempDir()
	w.Publish("room.logCache", &conf.LogCache{Open: true, Directory: dir})

	alice := connect(t, s)
	alice.setName("alice")
	info := alice.createRoom(nil)
	_, err = os.Stat(filepath.Join(dir, "room_"+info.RoomID+".log"))
	assert.NoError(t, err)
}
