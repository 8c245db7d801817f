package service

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/recovery"

	"github.com/yola1107/blackjack/api/protocol"
	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/internal/biz/room"
	"github.com/yola1107/blackjack/pkg/codes"
)

// request is one decoded client message on its way through the pipeline.
type request struct {
	connID   string
	playerID string // SET_NAME / LIST_ROOMS 可能为空
	msg      protocol.Message
}

type handlerFunc func(ctx context.Context, req *request) error

// rule describes the checks a room scoped action needs. They run on the
// room loop together with the action itself.
type rule struct {
	needGame bool
	phase    *game.Phase
	turn     bool
}

func inPhase(p game.Phase) *game.Phase { return &p }

// Dispatcher turns text frames into handler calls and converts every
// failure into one ERROR frame for the caller.
type Dispatcher struct {
	svc      *Service
	handlers map[string]handlerFunc
	public   map[string]bool // 不需要 SET_NAME
	chain    middleware.Handler
}

func newDispatcher(s *Service) *Dispatcher {
	d := &Dispatcher{
		svc: s,
		handlers: map[string]handlerFunc{
			protocol.TypeSetName:    s.onSetName,
			protocol.TypeListRooms:  s.onListRooms,
			protocol.TypeCreateRoom: s.onCreateRoom,
			protocol.TypeJoinRoom:   s.onJoinRoom,
			protocol.TypeLeaveRoom:  s.onLeaveRoom,
			protocol.TypeStartGame:  s.onStartGame,
			protocol.TypePlaceBet:   s.onPlaceBet,
			protocol.TypeHit:        s.onHit,
			protocol.TypeStand:      s.onStand,
			protocol.TypeNewRound:   s.onNewRound,
		},
		public: map[string]bool{
			protocol.TypeSetName:   true,
			protocol.TypeListRooms: true,
		},
	}
	d.chain = middleware.Chain(
		recovery.Recovery(recovery.WithHandler(func(ctx context.Context, req, err any) error {
			log.Errorf("[dispatch] panic handling %v: %v", req, err)
			return codes.ErrInternal
		})),
		logging(),
	)(d.route)
	return d
}

// Dispatch handles one frame from connID.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, data []byte) error {
	start := time.Now()
	typ := "INVALID"
	msg, err := protocol.Decode(data)
	if err == nil {
		typ = msg.MessageType()
		_, err = d.chain(ctx, &request{connID: connID, msg: msg})
	}
	if err != nil {
		err = clientError(err)
		d.svc.replyError(connID, err)
	}
	d.svc.metrics.observe(ctx, typ, err, time.Since(start))
	return err
}

func (d *Dispatcher) route(ctx context.Context, in any) (any, error) {
	req := in.(*request)
	typ := req.msg.MessageType()
	h, ok := d.handlers[typ]
	if !ok {
		return nil, codes.Detail(codes.ErrUnknownType, "Unknown message type: %s", typ)
	}
	if pid, ok := d.svc.ids.PlayerOf(req.connID); ok {
		req.playerID = pid
	} else if !d.public[typ] {
		return nil, codes.ErrNameNotSet
	}
	return nil, h(ctx, req)
}

// clientError keeps taxonomy errors and hides anything else behind
// ErrInternal.
func clientError(err error) error {
	if codes.Category(err) != codes.CategoryInternal {
		return err
	}
	if !errors.Is(err, codes.ErrInternal) {
		log.Errorf("[dispatch] internal error: %v", err)
		return codes.ErrInternal
	}
	return err
}

func logging() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, in any) (any, error) {
			req := in.(*request)
			reply, err := handler(ctx, in)
			if err != nil {
				log.Debugf("[dispatch] conn=%s player=%s %s rejected: %v", req.connID, req.playerID, req.msg.MessageType(), err)
			} else {
				log.Debugf("[dispatch] conn=%s player=%s %s ok", req.connID, req.playerID, req.msg.MessageType())
			}
			return reply, err
		}
	}
}

// inRoom runs fn on the loop of the caller's room after the checks of
// rl, so the verdict and the mutation see the same state.
func (s *Service) inRoom(ctx context.Context, playerID string, rl rule, fn func(r *room.Room, g *game.Game) error) error {
	roomID, ok := s.rooms.RoomOf(playerID)
	if !ok {
		return codes.ErrNotInRoom
	}
	r, ok := s.rooms.Get(roomID)
	if !ok {
		return codes.ErrRoomNotFound
	}
	return r.Do(ctx, func(r *room.Room) error {
		if !r.Has(playerID) {
			return codes.ErrNotInRoom
		}
		g := r.Game()
		if rl.needGame {
			if g == nil {
				return codes.ErrNoActiveGame
			}
			if rl.phase != nil && g.Phase() != *rl.phase {
				return codes.Detail(codes.ErrWrongPhase, "Action not allowed during %s.", g.Phase())
			}
			if rl.turn && g.CurrentPlayerID() != playerID {
				return codes.ErrNotYourTurn
			}
		}
		return fn(r, g)
	})
}
