package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/blackjack/api/protocol"
	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/internal/biz/room"
	"github.com/yola1107/blackjack/pkg/codes"
)

// onSetName 设置昵称. A player renaming while seated leaves the room first.
func (s *Service) onSetName(ctx context.Context, req *request) error {
	m := req.msg.(*protocol.SetName)
	if strings.TrimSpace(m.Name) == "" {
		return codes.ErrNameRequired
	}
	if req.playerID != "" {
		if err := s.leave(ctx, req.playerID, req.connID); err != nil && !errors.Is(err, codes.ErrNotInRoom) {
			log.Warnf("rename: leave room failed. player=%s err=%v", req.playerID, err)
		}
	}
	pid, previous, err := s.ids.SetName(req.connID, m.Name)
	if err != nil {
		return err
	}
	log.Infof("name set. conn=%s player=%s name=%q previous=%q", req.connID, pid, s.ids.NameOf(pid), previous)
	s.reply(req.connID, protocol.TypeNameSet, &protocol.NameSet{PlayerID: pid, Name: s.ids.NameOf(pid)})
	return nil
}

func (s *Service) onListRooms(ctx context.Context, req *request) error {
	list := s.rooms.ListJoinable(ctx)
	out := make([]protocol.RoomSummary, 0, len(list))
	for _, r := range list {
		out = append(out, protocol.RoomSummary{
			ID:          r.ID,
			Name:        r.Name,
			PlayerCount: r.PlayerCount,
			HasPassword: r.HasPassword,
			HostName:    r.HostName,
		})
	}
	s.reply(req.connID, protocol.TypeRoomsList, out)
	return nil
}

func (s *Service) onCreateRoom(ctx context.Context, req *request) error {
	m := req.msg.(*protocol.CreateRoom)
	_, err := s.rooms.Create(ctx, m.RoomName, m.MaxPlayers, m.Password, req.playerID, func(r *room.Room) {
		s.reply(req.connID, protocol.TypeRoomCreated, r.Info(s.ids))
	})
	return err
}

func (s *Service) onJoinRoom(ctx context.Context, req *request) error {
	m := req.msg.(*protocol.JoinRoom)
	pid := req.playerID
	_, err := s.rooms.Join(ctx, strings.TrimSpace(m.RoomID), pid, m.Password, func(r *room.Room) {
		s.reply(req.connID, protocol.TypeJoinSuccess, r.Info(s.ids))
		s.bc.Fanout(r.Players(), encode(protocol.TypePlayerJoined, &protocol.PlayerJoined{
			RoomID: r.ID,
			Player: protocol.PlayerInfo{ID: pid, Name: s.ids.NameOf(pid)},
		}), pid)
	})
	return err
}

func (s *Service) onLeaveRoom(ctx context.Context, req *request) error {
	return s.leave(ctx, req.playerID, req.connID)
}

// leave removes playerID from its room and tells the rest of the table.
// connID, when set, receives LEFT_ROOM.
func (s *Service) leave(ctx context.Context, playerID, connID string) error {
	roomID, ok := s.rooms.RoomOf(playerID)
	if !ok {
		return codes.ErrNotInRoom
	}
	_, err := s.rooms.Leave(ctx, roomID, playerID, func(r *room.Room, res room.LeaveResult) {
		if connID != "" {
			s.reply(connID, protocol.TypeLeftRoom, &protocol.LeftRoom{RoomID: res.RoomID})
		}
		if res.RoomDeleted {
			return
		}
		players := r.Players()
		s.bc.Fanout(players, encode(protocol.TypePlayerLeft, &protocol.PlayerLeft{
			RoomID:   res.RoomID,
			PlayerID: playerID,
		}), playerID)
		if res.NewHost != "" {
			s.bc.Fanout(players, encode(protocol.TypeNewHost, &protocol.NewHost{
				RoomID:   res.RoomID,
				HostID:   res.NewHost,
				HostName: s.ids.NameOf(res.NewHost),
			}), "")
		}
		if g := r.Game(); g != nil {
			s.afterAction(r, g)
		}
	})
	return err
}

func (s *Service) onStartGame(ctx context.Context, req *request) error {
	return s.inRoom(ctx, req.playerID, rule{}, func(r *room.Room, _ *game.Game) error {
		g, err := r.StartGame(req.playerID, s.ids, s.gameOptions()...)
		if err != nil {
			return err
		}
		log.Infof("game started. room=%s seats=%d", r.ID, len(g.Seats()))
		s.bc.BroadcastGameState(r, g)
		return nil
	})
}

func (s *Service) onPlaceBet(ctx context.Context, req *request) error {
	m := req.msg.(*protocol.PlaceBet)
	rl := rule{needGame: true, phase: inPhase(game.PhaseBetting)}
	return s.inRoom(ctx, req.playerID, rl, func(r *room.Room, g *game.Game) error {
		if err := g.PlaceBet(req.playerID, m.Amount); err != nil {
			return err
		}
		s.afterAction(r, g)
		return nil
	})
}

func (s *Service) onHit(ctx context.Context, req *request) error {
	rl := rule{needGame: true, phase: inPhase(game.PhasePlayerTurn), turn: true}
	return s.inRoom(ctx, req.playerID, rl, func(r *room.Room, g *game.Game) error {
		if err := g.Hit(req.playerID); err != nil {
			return err
		}
		s.afterAction(r, g)
		return nil
	})
}

func (s *Service) onStand(ctx context.Context, req *request) error {
	rl := rule{needGame: true, phase: inPhase(game.PhasePlayerTurn), turn: true}
	return s.inRoom(ctx, req.playerID, rl, func(r *room.Room, g *game.Game) error {
		if err := g.Stand(req.playerID); err != nil {
			return err
		}
		s.afterAction(r, g)
		return nil
	})
}

func (s *Service) onNewRound(ctx context.Context, req *request) error {
	rl := rule{needGame: true, phase: inPhase(game.PhaseGameOver)}
	return s.inRoom(ctx, req.playerID, rl, func(r *room.Room, g *game.Game) error {
		g.StartNewRound()
		s.afterAction(r, g)
		return nil
	})
}

// afterAction publishes the table and records a finished round. Runs on
// the room loop.
func (s *Service) afterAction(r *room.Room, g *game.Game) {
	s.bc.BroadcastGameState(r, g)
	r.Log().Round(g)
}
