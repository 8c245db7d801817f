package room

import (
	"context"
	"errors"
	"slices"

	"github.com/yola1107/blackjack/api/protocol"
	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/library/task"
	"github.com/yola1107/blackjack/pkg/codes"
)

// NameResolver resolves display names of players.
type NameResolver interface {
	NameOf(playerID string) string
}

// Room is a seating area with an optional password and one host. Its
// mutable fields are owned by its loop: only touch them from inside Do.
type Room struct {
	ID         string
	Name       string
	MaxPlayers int
	seq        uint64 // 创建顺序

	loop *task.Loop
	mLog *Log

	password   string
	players    []string // 入座顺序
	host       string
	inProgress bool
	game       *game.Game
	deleted    bool
}

// Do runs fn on the room's loop and waits for it. Calls for one room are
// applied one at a time in arrival order.
func (r *Room) Do(ctx context.Context, fn func(r *Room) error) error {
	err := r.loop.PostAndWait(ctx, func() error {
		if r.deleted {
			return codes.ErrRoomNotFound
		}
		return fn(r)
	})
	if errors.Is(err, task.ErrLoopStopped) {
		return codes.ErrRoomNotFound
	}
	return err
}

func (r *Room) Players() []string { return slices.Clone(r.players) }
func (r *Room) PlayerCount() int { return len(r.players) }
func (r *Room) Host() string { return r.host }
func (r *Room) HasPassword() bool { return r.password != "" }
func (r *Room) InProgress() bool { return r.inProgress }
func (r *Room) Game() *game.Game { return r.game }
func (r *Room) Has(id string) bool { return slices.Contains(r.players, id) }
func (r *Room) Log() *Log { return r.mLog }
func (r *Room) IsHost(id string) bool { return r.host == id }

// CanJoin reports a free seat in a room whose game has not started.
func (r *Room) CanJoin() bool {
	return len(r.players) < r.MaxPlayers && !r.inProgress
}

func (r *Room) checkPassword(password string) bool {
	return r.password == "" || r.password == password
}

// Info renders the room for ROOM_CREATED / JOIN_SUCCESS.
func (r *Room) Info(names NameResolver) *protocol.RoomInfo {
	info := &protocol.RoomInfo{
		RoomID:       r.ID,
		Name:         r.Name,
		HostPlayerID: r.host,
		Players:      make([]protocol.PlayerInfo, 0, len(r.players)),
	}
	for _, id := range r.players {
		info.Players = append(info.Players, protocol.PlayerInfo{ID: id, Name: names.NameOf(id)})
	}
	return info
}

// StartGame seats every current player in a new game. Only the host may
// start and only once per room.
func (r *Room) StartGame(requester string, names NameResolver, opts ...game.Option) (*game.Game, error) {
	if r.host != requester {
		return nil, codes.ErrNotHost
	}
	if r.game != nil {
		return nil, codes.ErrGameAlreadyStarted
	}
	seats := make([]game.Player, 0, len(r.players))
	for _, id := range r.players {
		seats = append(seats, game.Player{ID: id, Name: names.NameOf(id)})
	}
	r.game = game.New(r.ID, seats, opts...)
	r.inProgress = true
	r.mLog.begin(r.game)
	return r.game, nil
}

func (r *Room) summary(names NameResolver) Summary {
	return Summary{
		ID:          r.ID,
		Name:        r.Name,
		PlayerCount: len(r.players),
		HasPassword: r.HasPassword(),
		HostName:    names.NameOf(r.host),
		seq:         r.seq,
		joinable:    r.CanJoin(),
	}
}

type Summary struct {
	ID          string
	Name        string
	PlayerCount int
	HasPassword bool
	HostName    string

	seq      uint64
	joinable bool
}
