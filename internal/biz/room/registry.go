package room

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/library/shard"
	"github.com/yola1107/blackjack/library/task"
	"github.com/yola1107/blackjack/pkg/codes"
)

const (
	idAlphabet = "0123456789abcdef"
	idLength   = 8
)

// LeaveResult describes what a leave did to the room.
type LeaveResult struct {
	RoomID      string
	PlayerID    string
	RoomDeleted bool
	NewHost     string // 非空表示房主转移
}

// Hook runs on the room loop right after a successful create or join, so
// whatever it sends is ordered before any later action in the room.
type Hook func(r *Room)

// LeaveHook runs on the room loop right after a seat is removed.
type LeaveHook func(r *Room, res LeaveResult)

// Registry owns every room and the player -> room index.
type Registry struct {
	c     *conf.Room
	names NameResolver

	rooms      *shard.Map[*Room]  // roomID -> room
	playerRoom *shard.Map[string] // playerID -> roomID
	seq        atomic.Uint64
	logCache   atomic.Pointer[conf.LogCache]
}

func NewRegistry(c *conf.Room, names NameResolver) *Registry {
	m := &Registry{
		c:          c,
		names:      names,
		rooms:      shard.New[*Room](),
		playerRoom: shard.New[string](),
	}
	m.SetLogCache(c.LogCache)
	return m
}

// SetLogCache replaces the round log settings. Rooms created afterwards
// use them; open rooms keep the settings they were created with.
func (m *Registry) SetLogCache(c *conf.LogCache) {
	var cp conf.LogCache
	if c != nil {
		cp = *c
	}
	m.logCache.Store(&cp)
}

func (m *Registry) Len() int { return m.rooms.Len() }

func (m *Registry) Get(roomID string) (*Room, bool) {
	return m.rooms.Load(roomID)
}

// RoomOf returns the room id playerID is seated in.
func (m *Registry) RoomOf(playerID string) (string, bool) {
	return m.playerRoom.Load(playerID)
}

// Create opens a room with hostID seated as host. A blank name becomes
// the configured placeholder; maxPlayers <= 0 takes the default.
func (m *Registry) Create(ctx context.Context, name string, maxPlayers int, password, hostID string, then ...Hook) (*Room, error) {
	switch {
	case maxPlayers <= 0:
		maxPlayers = m.c.DefaultMaxPlayers
	case maxPlayers > m.c.MaxPlayersLimit:
		return nil, codes.Detail(codes.ErrBadPayload, "maxPlayers must be at most %d.", m.c.MaxPlayersLimit)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf(m.c.NameFormat, m.names.NameOf(hostID))
	}

	id, err := m.newID()
	if err != nil {
		return nil, codes.ErrInternal
	}
	if _, loaded := m.playerRoom.LoadOrStore(hostID, id); loaded {
		return nil, codes.ErrAlreadyInRoom
	}

	r := &Room{
		ID:         id,
		Name:       name,
		MaxPlayers: maxPlayers,
		seq:        m.seq.Add(1),
		loop:       task.NewLoop("room-"+id, m.c.QueueSize),
		mLog:       NewRoomLog(id, *m.logCache.Load()),
		password:   password,
		players:    []string{hostID},
		host:       hostID,
	}
	r.loop.Start()

	// hooks run before the room is published so nothing can overtake them
	err = r.Do(ctx, func(r *Room) error {
		r.mLog.created(r.Name, hostID, r.MaxPlayers, r.HasPassword())
		for _, fn := range then {
			fn(r)
		}
		return nil
	})
	if err == nil {
		if _, loaded := m.rooms.LoadOrStore(id, r); loaded {
			err = codes.ErrInternal
		}
	}
	if err != nil {
		m.playerRoom.DeleteIf(hostID, func(v string) bool { return v == id })
		m.stop(r)
		return nil, err
	}
	log.Infof("room created. id=%s name=%q host=%s max=%d rooms=%d", id, name, hostID, maxPlayers, m.rooms.Len())
	return r, nil
}

func (m *Registry) newID() (string, error) {
	for i := 0; i < 8; i++ {
		id, err := gonanoid.Generate(idAlphabet, idLength)
		if err != nil {
			return "", err
		}
		if _, ok := m.rooms.Load(id); !ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("room: no free id")
}

// Join seats playerID. A player already in a room is rejected before the
// room is looked up.
func (m *Registry) Join(ctx context.Context, roomID, playerID, password string, then ...Hook) (*Room, error) {
	if _, loaded := m.playerRoom.LoadOrStore(playerID, roomID); loaded {
		return nil, codes.ErrAlreadyInRoom
	}
	rollback := func() {
		m.playerRoom.DeleteIf(playerID, func(v string) bool { return v == roomID })
	}

	r, ok := m.rooms.Load(roomID)
	if !ok {
		rollback()
		return nil, codes.ErrRoomNotFound
	}
	err := r.Do(ctx, func(r *Room) error {
		switch {
		case !r.checkPassword(password):
			return codes.ErrWrongPassword
		case r.inProgress:
			return codes.ErrGameInProgress
		case len(r.players) >= r.MaxPlayers:
			return codes.ErrRoomFull
		}
		r.players = append(r.players, playerID)
		r.mLog.userEnter(playerID, len(r.players))
		for _, fn := range then {
			fn(r)
		}
		return nil
	})
	if err != nil {
		rollback()
		return nil, err
	}
	log.Debugf("player joined. room=%s player=%s", roomID, playerID)
	return r, nil
}

// Leave removes playerID from roomID. An empty room is deleted together
// with its game; otherwise a departing host hands over to the longest
// seated player. Leaving twice reports ErrNotInRoom.
func (m *Registry) Leave(ctx context.Context, roomID, playerID string, then ...LeaveHook) (LeaveResult, error) {
	res := LeaveResult{RoomID: roomID, PlayerID: playerID}
	if !m.playerRoom.DeleteIf(playerID, func(v string) bool { return v == roomID }) {
		return res, codes.ErrNotInRoom
	}
	r, ok := m.rooms.Load(roomID)
	if !ok {
		log.Warnf("player %s mapped to missing room %s", playerID, roomID)
		return res, codes.ErrRoomNotFound
	}

	err := r.Do(ctx, func(r *Room) error {
		idx := slices.Index(r.players, playerID)
		if idx < 0 {
			log.Errorf("room %s: player %s indexed here but not seated", r.ID, playerID)
			return codes.ErrNotInRoom
		}
		r.players = slices.Delete(r.players, idx, idx+1)
		if r.game != nil {
			r.game.RemovePlayer(playerID)
		}

		switch {
		case len(r.players) == 0:
			r.deleted = true
			r.game = nil
			m.rooms.DeleteIf(r.ID, func(v *Room) bool { return v == r })
			res.RoomDeleted = true
		case r.host == playerID:
			r.host = r.players[0]
			res.NewHost = r.host
			if r.host == "" {
				log.Errorf("room %s: host handoff found no candidate, players=%v", r.ID, r.players)
			}
		}
		r.mLog.userExit(playerID, len(r.players), res.NewHost)
		for _, fn := range then {
			fn(r, res)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if res.RoomDeleted {
		m.stop(r)
		log.Infof("room deleted. id=%s rooms=%d", roomID, m.rooms.Len())
	}
	return res, nil
}

func (m *Registry) stop(r *Room) {
	r.loop.Stop()
	r.mLog.deleted()
	if err := r.mLog.Close(); err != nil {
		log.Warnf("room %s log close: %v", r.ID, err)
	}
}

// ListJoinable returns joinable rooms in creation order. Each room is
// asked on its own loop, a bounded number at a time.
func (m *Registry) ListJoinable(ctx context.Context) []Summary {
	var rooms []*Room
	m.rooms.Range(func(_ string, r *Room) bool {
		rooms = append(rooms, r)
		return true
	})

	out := make([]Summary, len(rooms))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(m.c.ListParallel, 1))
	for i, r := range rooms {
		i, r := i, r
		eg.Go(func() error {
			_ = r.Do(ctx, func(r *Room) error {
				out[i] = r.summary(m.names)
				return nil
			})
			return nil
		})
	}
	_ = eg.Wait()

	list := make([]Summary, 0, len(out))
	for _, s := range out {
		if s.joinable {
			list = append(list, s)
		}
	}
	slices.SortFunc(list, func(a, b Summary) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return list
}

// Close stops every room loop. Used on shutdown.
func (m *Registry) Close() {
	m.rooms.Range(func(id string, r *Room) bool {
		if _, ok := m.rooms.LoadAndDelete(id); ok {
			m.stop(r)
		}
		return true
	})
}
