package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/blackjack/api/protocol"
	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/internal/biz/identity"
	"github.com/yola1107/blackjack/internal/biz/room"
	"github.com/yola1107/blackjack/library/work"
	"github.com/yola1107/blackjack/pkg/codes"
	"github.com/yola1107/blackjack/transport/websocket"
)

// Broadcaster delivers server messages to players through their current
// connection.
type Broadcaster struct {
	sessions *websocket.SessionManager
	ids      *identity.Directory
	rooms    *room.Registry
	pool     work.ITaskLoop
}

func NewBroadcaster(sessions *websocket.SessionManager, ids *identity.Directory, rooms *room.Registry, pool work.ITaskLoop) *Broadcaster {
	return &Broadcaster{sessions: sessions, ids: ids, rooms: rooms, pool: pool}
}

// SendTo writes data to playerID's connection. Players without a live
// connection are logged and skipped.
func (b *Broadcaster) SendTo(playerID string, data []byte) bool {
	connID, ok := b.ids.ConnectionOf(playerID)
	if !ok {
		log.Warnf("broadcast: player %s has no connection", playerID)
		return false
	}
	if err := b.sessions.Send(connID, data); err != nil {
		if errors.Is(err, websocket.ErrConnNotFound) || errors.Is(err, websocket.ErrConnNotOpen) {
			log.Debugf("broadcast: skip player %s conn %s: %v", playerID, connID, err)
		} else {
			log.Warnf("broadcast: player %s conn %s: %v", playerID, connID, err)
		}
		return false
	}
	return true
}

// Fanout sends data to every player in players except exclude and waits
// until each send is queued. Callers on a room loop pass the room's own
// seat list so the messages keep the room's order.
func (b *Broadcaster) Fanout(players []string, data []byte, exclude string) int {
	if data == nil {
		return 0
	}
	targets := make([]string, 0, len(players))
	for _, id := range players {
		if id != exclude {
			targets = append(targets, id)
		}
	}
	switch len(targets) {
	case 0:
		return 0
	case 1:
		if b.SendTo(targets[0], data) {
			return 1
		}
		return 0
	}

	var sent atomic.Int32
	jobs := make([]func(), 0, len(targets))
	for _, id := range targets {
		jobs = append(jobs, func() {
			if b.SendTo(id, data) {
				sent.Add(1)
			}
		})
	}
	b.pool.RunAll(context.Background(), jobs...)
	return int(sent.Load())
}

// BroadcastToRoom sends one message to everyone seated in roomID except
// exclude. The seat list is read on the room loop.
func (b *Broadcaster) BroadcastToRoom(ctx context.Context, roomID, typ string, payload any, exclude string) error {
	r, ok := b.rooms.Get(roomID)
	if !ok {
		return codes.ErrRoomNotFound
	}
	data := encode(typ, payload)
	return r.Do(ctx, func(r *room.Room) error {
		b.Fanout(r.Players(), data, exclude)
		return nil
	})
}

// BroadcastGameState sends the table snapshot to every seated player.
// Must run on r's loop.
func (b *Broadcaster) BroadcastGameState(r *room.Room, g *game.Game) {
	if g == nil {
		return
	}
	b.Fanout(r.Players(), encode(protocol.TypeGameState, g.Snapshot()), "")
}

func encode(typ string, payload any) []byte {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Errorf("encode %s: %v", typ, err)
		return nil
	}
	return data
}
