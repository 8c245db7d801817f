package game

import (
	"fmt"
)

type Phase int32

const (
	PhaseBetting Phase = iota
	PhasePlayerTurn
	PhaseDealerTurn
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseBetting:
		return "Betting"
	case PhasePlayerTurn:
		return "PlayerTurn"
	case PhaseDealerTurn:
		return "DealerTurn"
	case PhaseGameOver:
		return "GameOver"
	default:
		return fmt.Sprintf("%d", p)
	}
}

type Status int32

const (
	StWaiting Status = iota
	StBetPlaced
	StPlaying
	StStanding
	StBlackjack
	StBusted
)

func (s Status) String() string {
	switch s {
	case StWaiting:
		return "Waiting"
	case StBetPlaced:
		return "BetPlaced"
	case StPlaying:
		return "Playing"
	case StStanding:
		return "Standing"
	case StBlackjack:
		return "Blackjack"
	case StBusted:
		return "Busted"
	default:
		return fmt.Sprintf("%d", s)
	}
}

// Player identifies who takes a seat when a game starts.
type Player struct {
	ID   string
	Name string
}

type Seat struct {
	PlayerID string // 玩家ID
	Name     string // 昵称
	Balance  int64  // 余额, 结算时变动
	Bet      int64  // 本局下注
	Hand     []Card // 手牌
	Status   Status // 状态
}

func (s *Seat) Value() int { return HandValue(s.Hand) }

func (s *Seat) reset() {
	s.Bet = 0
	s.Hand = nil
	s.Status = StWaiting
}

type Options struct {
	StartingBalance int64    // 初始余额
	MinBet          int64    // 最小下注
	MaxBet          int64    // 最大下注, 0 不限
	MessageTail     int      // 快照中携带的日志条数
	MaxMessages     int      // 日志保留上限
	Shuffle         Shuffler // 洗牌
}

type Option func(*Options)

func WithStartingBalance(v int64) Option { return func(o *Options) { o.StartingBalance = v } }
func WithMinBet(v int64) Option          { return func(o *Options) { o.MinBet = v } }
func WithMaxBet(v int64) Option          { return func(o *Options) { o.MaxBet = v } }
func WithMessageTail(n int) Option       { return func(o *Options) { o.MessageTail = n } }
func WithShuffler(s Shuffler) Option     { return func(o *Options) { o.Shuffle = s } }

func defaultOptions() Options {
	return Options{
		StartingBalance: 1000,
		MinBet:          1,
		MessageTail:     5,
		MaxMessages:     64,
	}
}
