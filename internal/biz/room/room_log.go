package room

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yola1107/blackjack/internal/biz/game"
	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/library/log/file"
)

// Log is a room's round log. It is a no-op unless logCache.open is set.
type Log struct {
	roomID    string
	logger    *file.Log
	lastRound int // 已记录的局数
}

func NewRoomLog(roomID string, c conf.LogCache) *Log {
	l := &Log{roomID: roomID}
	if c.Open {
		l.logger = file.NewFileLog(filepath.Join(c.Directory, fmt.Sprintf("room_%s.log", roomID)))
	}
	return l
}

func (l *Log) Close() error {
	if l.logger == nil {
		return nil
	}
	return l.logger.Close()
}

func (l *Log) write(msg string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.WriteLog(msg, args...)
}

func (l *Log) created(name, host string, maxPlayers int, locked bool) {
	l.write("[创建房间] room=%s name=%q host=%s max=%d password=%v", l.roomID, name, host, maxPlayers, locked)
}

func (l *Log) userEnter(playerID string, count int) {
	l.write("[进入房间] 玩家:%s 房间人数(%d)", playerID, count)
}

func (l *Log) userExit(playerID string, count int, newHost string) {
	l.write("[离开房间] 玩家:%s 房间人数(%d) newHost=%q", playerID, count, newHost)
}

func (l *Log) begin(g *game.Game) {
	logs := []string{fmt.Sprintf("[游戏开始] room=%s seats=%d", l.roomID, len(g.Seats()))}
	for _, s := range g.Seats() {
		logs = append(logs, fmt.Sprintf("玩家:%s(%s) 余额[%d]", s.Name, s.PlayerID, s.Balance))
	}
	l.write(strings.Join(logs, "\r\n"))
}

// Round records a settled round. Each round is written once no matter how
// often it is called while the game sits in GameOver.
func (l *Log) Round(g *game.Game) {
	if g.Phase() != game.PhaseGameOver || g.Round() == l.lastRound {
		return
	}
	l.lastRound = g.Round()
	logs := []string{fmt.Sprintf("[结算] room=%s", l.roomID)}
	for _, s := range g.Seats() {
		logs = append(logs, fmt.Sprintf("玩家:%s 投注[%d] 手牌:%v 点数[%d] 状态:%v 余额[%d]",
			s.Name, s.Bet, s.Hand, s.Value(), s.Status, s.Balance))
	}
	logs = append(logs, fmt.Sprintf("庄家:%v 点数[%d]", g.Dealer(), game.HandValue(g.Dealer())))
	l.write(strings.Join(logs, "\r\n"))
}

func (l *Log) deleted() {
	l.write("[删除房间] room=%s", l.roomID)
}
