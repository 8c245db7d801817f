package room

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/pkg/codes"
)

type names map[string]string

func (n names) NameOf(id string) string {
	if v, ok := n[id]; ok {
		return v
	}
	return "Unknown"
}

var ctx = context.Background()

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	m := NewRegistry(conf.Default().Room, names{"a": "Ana", "b": "Bia", "c": "Caio"})
	t.Cleanup(m.Close)
	return m
}

func seated(t *testing.T, r *Room) []string {
	t.Helper()
	var ps []string
	require.NoError(t, r.Do(ctx, func(r *Room) error {
		ps = r.Players()
		return nil
	}))
	return ps
}

func host(t *testing.T, r *Room) string {
	t.Helper()
	var h string
	require.NoError(t, r.Do(ctx, func(r *Room) error {
		h = r.Host()
		return nil
	}))
	return h
}

func TestCreate(t *testing.T) {
	m := newRegistry(t)

	var hooked atomic.Bool
	r, err := m.Create(ctx, "  ", 0, "", "a", func(r *Room) { hooked.Store(true) })
	require.NoError(t, err)
	assert.True(t, hooked.Load())
	assert.Len(t, r.ID, 8)
	assert.Equal(t, "Ana's table", r.Name)
	assert.Equal(t, 8, r.MaxPlayers)
	assert.Equal(t, []string{"a"}, seated(t, r))
	assert.Equal(t, "a", host(t, r))

	got, ok := m.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, r.ID, got)
	assert.Equal(t, 1, m.Len())

	_, err = m.Create(ctx, "second", 2, "", "a")
	assert.True(t, errors.Is(err, codes.ErrAlreadyInRoom))
	assert.Equal(t, 1, m.Len())

	_, err = m.Create(ctx, "huge", 99, "", "b")
	assert.True(t, errors.Is(err, codes.ErrBadPayload))
	_, ok = m.RoomOf("b")
	assert.False(t, ok)
}

func TestJoinCapacity(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "duo", 2, "", "a")
	require.NoError(t, err)

	_, err = m.Join(ctx, r.ID, "b", "")
	require.NoError(t, err)

	var hooked bool
	_, err = m.Join(ctx, r.ID, "c", "", func(*Room) { hooked = true })
	assert.True(t, errors.Is(err, codes.ErrRoomFull))
	assert.False(t, hooked, "rejected join must not notify")
	assert.Equal(t, []string{"a", "b"}, seated(t, r))
	_, ok := m.RoomOf("c")
	assert.False(t, ok)
}

func TestJoinErrors(t *testing.T) {
	m := newRegistry(t)
	locked, err := m.Create(ctx, "vip", 4, "secret", "a")
	require.NoError(t, err)

	_, err = m.Join(ctx, "nope", "b", "")
	assert.True(t, errors.Is(err, codes.ErrRoomNotFound))

	_, err = m.Join(ctx, locked.ID, "b", "wrong")
	assert.True(t, errors.Is(err, codes.ErrWrongPassword))
	_, err = m.Join(ctx, locked.ID, "b", "")
	assert.True(t, errors.Is(err, codes.ErrWrongPassword))

	_, err = m.Join(ctx, locked.ID, "b", "secret")
	require.NoError(t, err)

	// already seated is checked before the room lookup
	_, err = m.Join(ctx, "nope", "b", "")
	assert.True(t, errors.Is(err, codes.ErrAlreadyInRoom))

	open, err := m.Create(ctx, "open", 4, "", "c")
	require.NoError(t, err)
	_, err = m.Join(ctx, open.ID, "b", "")
	assert.True(t, errors.Is(err, codes.ErrAlreadyInRoom))

	m2 := newRegistry(t)
	r2, err := m2.Create(ctx, "", 4, "", "a")
	require.NoError(t, err)
	require.NoError(t, r2.Do(ctx, func(r *Room) error {
		_, err := r.StartGame("a", names{})
		return err
	}))
	_, err = m2.Join(ctx, r2.ID, "b", "")
	assert.True(t, errors.Is(err, codes.ErrGameInProgress))
}

func TestNoPasswordAcceptsAny(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "open", 4, "", "a")
	require.NoError(t, err)
	_, err = m.Join(ctx, r.ID, "b", "whatever")
	require.NoError(t, err)
}

func TestLeaveHandsOverHost(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "duo", 2, "", "a")
	require.NoError(t, err)
	_, err = m.Join(ctx, r.ID, "b", "")
	require.NoError(t, err)

	var hooked LeaveResult
	res, err := m.Leave(ctx, r.ID, "a", func(_ *Room, res LeaveResult) { hooked = res })
	require.NoError(t, err)
	assert.False(t, res.RoomDeleted)
	assert.Equal(t, "b", res.NewHost)
	assert.Equal(t, res, hooked)
	assert.Equal(t, "b", host(t, r))
	assert.Equal(t, []string{"b"}, seated(t, r))
	assert.Equal(t, 1, m.Len())

	// second leave is reported, not applied
	_, err = m.Leave(ctx, r.ID, "a")
	assert.True(t, errors.Is(err, codes.ErrNotInRoom))
}

func TestLeaveNonHostKeepsHost(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "trio", 3, "", "a")
	require.NoError(t, err)
	for _, p := range []string{"b", "c"} {
		_, err = m.Join(ctx, r.ID, p, "")
		require.NoError(t, err)
	}
	res, err := m.Leave(ctx, r.ID, "b")
	require.NoError(t, err)
	assert.Empty(t, res.NewHost)
	assert.Equal(t, "a", host(t, r))
	assert.Equal(t, []string{"a", "c"}, seated(t, r))

	// host succession follows seating order
	res, err = m.Leave(ctx, r.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", res.NewHost)
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "solo", 2, "", "a")
	require.NoError(t, err)
	require.NoError(t, r.Do(ctx, func(r *Room) error {
		_, err := r.StartGame("a", names{})
		return err
	}))

	res, err := m.Leave(ctx, r.ID, "a")
	require.NoError(t, err)
	assert.True(t, res.RoomDeleted)
	assert.Zero(t, m.Len())
	_, ok := m.Get(r.ID)
	assert.False(t, ok)
	assert.Empty(t, m.ListJoinable(ctx))

	err = r.Do(ctx, func(*Room) error { return nil })
	assert.True(t, errors.Is(err, codes.ErrRoomNotFound))
	_, err = m.Join(ctx, r.ID, "b", "")
	assert.True(t, errors.Is(err, codes.ErrRoomNotFound))
}

func TestLeaveMidRoundDropsSeat(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "duo", 2, "", "a")
	require.NoError(t, err)
	_, err = m.Join(ctx, r.ID, "b", "")
	require.NoError(t, err)

	var g *game.Game
	require.NoError(t, r.Do(ctx, func(r *Room) error {
		g, err = r.StartGame("a", names{"a": "Ana", "b": "Bia"})
		return err
	}))
	_, err = m.Leave(ctx, r.ID, "b")
	require.NoError(t, err)
	require.NoError(t, r.Do(ctx, func(r *Room) error {
		assert.Nil(t, r.Game().Seat("b"))
		assert.NotNil(t, r.Game().Seat("a"))
		return nil
	}))
	assert.Same(t, g, r.game)
}

func TestStartGame(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "duo", 2, "", "a")
	require.NoError(t, err)
	_, err = m.Join(ctx, r.ID, "b", "")
	require.NoError(t, err)

	require.NoError(t, r.Do(ctx, func(r *Room) error {
		_, err := r.StartGame("b", names{})
		assert.True(t, errors.Is(err, codes.ErrNotHost))
		assert.False(t, r.InProgress())

		g, err := r.StartGame("a", names{"a": "Ana", "b": "Bia"}, game.WithStartingBalance(500))
		require.NoError(t, err)
		assert.True(t, r.InProgress())
		assert.False(t, r.CanJoin())
		assert.Len(t, g.Seats(), 2)
		assert.Equal(t, "Bia", g.Seat("b").Name)
		assert.Equal(t, int64(500), g.Seat("a").Balance)

		_, err = r.StartGame("a", names{})
		assert.True(t, errors.Is(err, codes.ErrGameAlreadyStarted))
		return nil
	}))
}

func TestListJoinable(t *testing.T) {
	m := newRegistry(t)
	first, err := m.Create(ctx, "first", 2, "pw", "a")
	require.NoError(t, err)
	_, err = m.Create(ctx, "full", 1, "", "b")
	require.NoError(t, err)
	third, err := m.Create(ctx, "third", 4, "", "c")
	require.NoError(t, err)
	require.NoError(t, third.Do(ctx, func(r *Room) error {
		_, err := r.StartGame("c", names{})
		return err
	}))
	list := m.ListJoinable(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, 1, list[0].PlayerCount)
	assert.True(t, list[0].HasPassword)
	assert.Equal(t, "Ana", list[0].HostName)
}

func TestListJoinableOrder(t *testing.T) {
	m := NewRegistry(conf.Default().Room, names{})
	defer m.Close()
	var ids []string
	for i := 0; i < 20; i++ {
		r, err := m.Create(ctx, fmt.Sprintf("r%d", i), 2, "", fmt.Sprintf("p%d", i))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	list := m.ListJoinable(ctx)
	require.Len(t, list, 20)
	for i, s := range list {
		assert.Equal(t, ids[i], s.ID)
	}
}

func TestConcurrentJoinsNeverOverfill(t *testing.T) {
	m := NewRegistry(conf.Default().Room, names{})
	defer m.Close()
	r, err := m.Create(ctx, "race", 4, "", "host")
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Join(ctx, r.ID, fmt.Sprintf("p%d", i), ""); err == nil {
				ok.Add(1)
			} else {
				assert.True(t, errors.Is(err, codes.ErrRoomFull))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(3), ok.Load())
	assert.Len(t, seated(t, r), 4)
}

func TestConcurrentJoinSingleRoom(t *testing.T) {
	m := NewRegistry(conf.Default().Room, names{})
	defer m.Close()
	var rooms []*Room
	for i := 0; i < 5; i++ {
		r, err := m.Create(ctx, "", 8, "", fmt.Sprintf("h%d", i))
		require.NoError(t, err)
		rooms = append(rooms, r)
	}

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for _, r := range rooms {
		wg.Add(1)
		go func(r *Room) {
			defer wg.Done()
			if _, err := m.Join(ctx, r.ID, "solo", ""); err == nil {
				won.Add(1)
			}
		}(r)
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())

	total := 0
	for _, r := range rooms {
		for _, p := range seated(t, r) {
			if p == "solo" {
				total++
			}
		}
	}
	assert.Equal(t, 1, total)
}

func TestRoomLogWritesWhenOpen(t *testing.T) {
	dir := t.TempDir()
	c := conf.Default().Room
	c.LogCache = &conf.LogCache{Open: true, Directory: dir}
	m := NewRegistry(c, names{"a": "Ana"})

	r, err := m.Create(ctx, "logged", 2, "", "a")
	require.NoError(t, err)
	_, err = m.Leave(ctx, r.ID, "a")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "room_"+r.ID+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[创建房间]")
	assert.Contains(t, string(data), "[离开房间]")
}

func TestLogCacheReloadAppliesToNewRooms(t *testing.T) {
	dir := t.TempDir()
	c := conf.Default().Room
	c.LogCache = &conf.LogCache{Open: false, Directory: dir}
	m := NewRegistry(c, names{"a": "Ana", "b": "Bia"})
	t.Cleanup(m.Close)

	quiet, err := m.Create(ctx, "quiet", 2, "", "a")
	require.NoError(t, err)

	// the caller's config may change afterwards without affecting the registry
	c.LogCache.Open = true
	m.SetLogCache(&conf.LogCache{Open: true, Directory: dir})
	logged, err := m.Create(ctx, "logged", 2, "", "b")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "room_"+quiet.ID+".log"))
	assert.True(t, os.IsNotExist(err))
	_, err = m.Leave(ctx, logged.ID, "b")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "room_"+logged.ID+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[创建房间]")
}

func TestAbandonedJoinLeavesNoSeat(t *testing.T) {
	m := newRegistry(t)
	r, err := m.Create(ctx, "busy", 4, "", "a")
	require.NoError(t, err)

	release := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = r.Do(ctx, func(*Room) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	var hooked atomic.Bool
	_, err = m.Join(short, r.ID, "b", "", func(*Room) { hooked.Store(true) })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.Equal(t, []string{"a"}, seated(t, r))
	assert.False(t, hooked.Load())
	_, ok := m.RoomOf("b")
	assert.False(t, ok)

	// the player can still join afterwards
	_, err = m.Join(ctx, r.ID, "b", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seated(t, r))
}
