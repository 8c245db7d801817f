package service

import (
	"context"
	"errors"
	"sync/atomic"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/yola1107/blackjack/api/protocol"
	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/internal/biz/identity"
	"github.com/yola1107/blackjack/internal/biz/room"
	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/library/work"
	"github.com/yola1107/blackjack/pkg/codes"
	"github.com/yola1107/blackjack/transport/websocket"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewService, NewMetrics, websocket.NewSessionManager)

var _ websocket.SessionHandler = (*Service)(nil)

// Service is the blackjack session service. It owns the identity and room
// registries and reacts to websocket session events.
type Service struct {
	sessions *websocket.SessionManager
	ids      *identity.Directory
	rooms    *room.Registry
	ws       work.IWorkStore
	bc       *Broadcaster
	d        *Dispatcher
	metrics  *Metrics

	wc       *conf.Work
	gameConf atomic.Pointer[conf.Game]
	shuffle  game.Shuffler // 测试注入
	statsID  int64
}

// NewService new a service.
func NewService(rc *conf.Room, gc *conf.Game, wc *conf.Work, sessions *websocket.SessionManager,
	metrics *Metrics, watcher *conf.Watcher) (*Service, func(), error) {
	log.Infof("start server:\"%s\" version:%+v", conf.Name, conf.Version)

	s := &Service{
		sessions: sessions,
		ids:      identity.NewDirectory(),
		ws:       work.NewWorkStore(wc.PoolSize),
		metrics:  metrics,
		wc:       wc,
	}
	s.rooms = room.NewRegistry(rc, s.ids)
	s.bc = NewBroadcaster(sessions, s.ids, s.rooms, s.ws)
	s.d = newDispatcher(s)
	s.setGameConfig(gc)
	if watcher != nil {
		watcher.Subscribe("game", func(v any) {
			if gc, ok := v.(*conf.Game); ok {
				s.setGameConfig(gc)
			}
		})
		watcher.Subscribe("room.logCache", func(v any) {
			if lc, ok := v.(*conf.LogCache); ok {
				s.rooms.SetLogCache(lc)
			}
		})
	}

	if err := s.ws.Start(); err != nil {
		return nil, nil, err
	}
	s.startStats()

	cleanup := func() {
		log.Info("closing the room resources")
		s.ws.Scheduler().Cancel(s.statsID)
		s.rooms.Close()
		s.ws.Stop()
	}
	return s, cleanup, nil
}

func (s *Service) setGameConfig(gc *conf.Game) {
	cp := *gc
	s.gameConf.Store(&cp)
}

// gameOptions reads the game config current at START_GAME.
func (s *Service) gameOptions() []game.Option {
	gc := s.gameConf.Load()
	opts := []game.Option{
		game.WithStartingBalance(gc.StartingBalance),
		game.WithMinBet(gc.MinBet),
		game.WithMaxBet(gc.MaxBet),
		game.WithMessageTail(gc.MessageTail),
	}
	if s.shuffle != nil {
		opts = append(opts, game.WithShuffler(s.shuffle))
	}
	return opts
}

// Dispatcher returns the message dispatcher.
func (s *Service) Dispatcher() *Dispatcher { return s.d }

// Broadcaster returns the room broadcaster.
func (s *Service) Broadcaster() *Broadcaster { return s.bc }

// OnSessionOpen 连接建立回调
func (s *Service) OnSessionOpen(_ context.Context, sess *websocket.Session) {
	log.Debugf("OnOpenFunc: %q", sess.ID())
}

// OnSessionClose 连接关闭回调. The identity goes first, then the seat.
func (s *Service) OnSessionClose(ctx context.Context, sess *websocket.Session) {
	s.disconnect(ctx, sess.ID())
}

// OnMessage 消息回调
func (s *Service) OnMessage(ctx context.Context, sess *websocket.Session, data []byte) error {
	return s.d.Dispatch(ctx, sess.ID(), data)
}

func (s *Service) disconnect(ctx context.Context, connID string) {
	pid, ok := s.ids.PlayerOf(connID)
	if !ok {
		return
	}
	s.ids.RemoveIdentity(pid)
	err := s.leave(ctx, pid, "")
	switch {
	case err == nil:
		log.Infof("player %s left on disconnect. conn=%s", pid, connID)
	case errors.Is(err, codes.ErrNotInRoom):
	default:
		log.Warnf("disconnect: leave failed. player=%s conn=%s err=%v", pid, connID, err)
	}
}

// reply sends a message to one connection. A connection that went away
// meanwhile is only logged.
func (s *Service) reply(connID, typ string, payload any) {
	data := encode(typ, payload)
	if data == nil {
		return
	}
	if err := s.sessions.Send(connID, data); err != nil {
		log.Debugf("reply %s to %s: %v", typ, connID, err)
	}
}

func (s *Service) replyError(connID string, err error) {
	e := kerrors.FromError(err)
	s.reply(connID, protocol.TypeError, &protocol.Error{
		Message: e.Message,
		Code:    e.Code,
		Reason:  e.Reason,
	})
}
