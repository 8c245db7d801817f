package game

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/samber/lo"

	"github.com/yola1107/blackjack/pkg/codes"
)

// Game is one room's blackjack table. It is not safe for concurrent use;
// the owning room serializes every call on its loop.
type Game struct {
	roomID   string
	opts     Options
	deck     *Deck
	seats    []*Seat
	dealer   []Card
	phase    Phase
	turn     int // 当前操作座位, -1 无
	round    int
	messages []string
}

// New seats players in the given order and opens the first betting round.
func New(roomID string, players []Player, opts ...Option) *Game {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MinBet < 1 {
		o.MinBet = 1
	}
	g := &Game{
		roomID: roomID,
		opts:   o,
		deck:   NewDeck(o.Shuffle),
		seats: lo.Map(players, func(p Player, _ int) *Seat {
			return &Seat{PlayerID: p.ID, Name: p.Name, Balance: o.StartingBalance}
		}),
	}
	g.StartNewRound()
	return g
}

func (g *Game) RoomID() string { return g.roomID }
func (g *Game) Phase() Phase   { return g.phase }
func (g *Game) Seats() []*Seat { return g.seats }
func (g *Game) Dealer() []Card { return g.dealer }
func (g *Game) Round() int      { return g.round }

func (g *Game) Messages() []string { return g.messages }

// Seat returns the seat of playerID or nil.
func (g *Game) Seat(playerID string) *Seat {
	s, _ := g.seatOf(playerID)
	return s
}

// CurrentPlayerID is empty outside PlayerTurn.
func (g *Game) CurrentPlayerID() string {
	if g.phase != PhasePlayerTurn || g.turn < 0 || g.turn >= len(g.seats) {
		return ""
	}
	return g.seats[g.turn].PlayerID
}

func (g *Game) seatOf(playerID string) (*Seat, int) {
	for i, s := range g.seats {
		if s.PlayerID == playerID {
			return s, i
		}
	}
	return nil, -1
}

func (g *Game) logf(format string, args ...any) {
	g.messages = append(g.messages, fmt.Sprintf(format, args...))
	if over := len(g.messages) - g.opts.MaxMessages; g.opts.MaxMessages > 0 && over > 0 {
		g.messages = append([]string(nil), g.messages[over:]...)
	}
}

func (g *Game) reject(err *errors.Error, who string) error {
	g.logf("%s: %s", who, err.Message)
	return err
}

// StartNewRound clears hands and bets and opens betting on a fresh deck.
// Balances carry over.
func (g *Game) StartNewRound() {
	g.dealer = nil
	for _, s := range g.seats {
		s.reset()
	}
	g.deck.Reset()
	g.phase = PhaseBetting
	g.turn = -1
	g.round++
	g.logf("New round. Place your bets.")
}

func (g *Game) PlaceBet(playerID string, amount int64) error {
	s, _ := g.seatOf(playerID)
	if s == nil {
		return g.reject(codes.ErrSeatNotFound, playerID)
	}
	switch {
	case g.phase != PhaseBetting:
		return g.reject(codes.ErrWrongPhase, s.Name)
	case s.Status != StWaiting:
		return g.reject(codes.ErrBetAlreadyPlaced, s.Name)
	case amount < g.opts.MinBet:
		return g.reject(codes.Detail(codes.ErrBetTooLow, "Minimum bet is %d.", g.opts.MinBet), s.Name)
	case g.opts.MaxBet > 0 && amount > g.opts.MaxBet:
		return g.reject(codes.Detail(codes.ErrBetTooHigh, "Maximum bet is %d.", g.opts.MaxBet), s.Name)
	case amount > s.Balance:
		return g.reject(codes.ErrInsufficientFunds, s.Name)
	}

	s.Bet = amount
	s.Status = StBetPlaced
	g.logf("%s bets %d.", s.Name, amount)
	g.maybeDeal()
	return nil
}

// maybeDeal deals once every seat either bet or cannot afford the minimum,
// provided at least one bet is on the table.
func (g *Game) maybeDeal() {
	if g.phase != PhaseBetting {
		return
	}
	anyBet := false
	for _, s := range g.seats {
		switch {
		case s.Status == StBetPlaced:
			anyBet = true
		case s.Balance < g.opts.MinBet:
		default:
			return
		}
	}
	if anyBet {
		g.dealInitialCards()
	}
}

func (g *Game) dealInitialCards() {
	for _, s := range g.seats {
		if s.Status != StBetPlaced {
			continue
		}
		s.Hand = []Card{g.deck.Draw(), g.deck.Draw()}
		s.Status = StPlaying
		if IsBlackjack(s.Hand) {
			s.Status = StBlackjack
			g.logf("%s has blackjack!", s.Name)
		}
	}
	g.dealer = []Card{g.deck.Draw(), g.deck.Draw()}

	if IsBlackjack(g.dealer) {
		g.logf("Dealer has blackjack.")
		g.phase = PhaseGameOver
		g.turn = -1
		g.settle()
		return
	}
	g.phase = PhasePlayerTurn
	g.turn = -1
	g.advanceTurn()
}

// advanceTurn moves to the next Playing seat; past the last seat the dealer
// plays.
func (g *Game) advanceTurn() {
	for g.turn++; g.turn < len(g.seats); g.turn++ {
		if g.seats[g.turn].Status == StPlaying {
			return
		}
	}
	g.turn = -1
	g.dealerTurn()
}

func (g *Game) checkTurn(playerID string) (*Seat, error) {
	s, idx := g.seatOf(playerID)
	if s == nil {
		return nil, g.reject(codes.ErrSeatNotFound, playerID)
	}
	if g.phase != PhasePlayerTurn {
		return nil, g.reject(codes.ErrWrongPhase, s.Name)
	}
	if idx != g.turn {
		return nil, g.reject(codes.ErrNotYourTurn, s.Name)
	}
	if s.Status != StPlaying {
		return nil, g.reject(codes.ErrSeatNotPlaying, s.Name)
	}
	return s, nil
}

// Hit draws a card for the current seat. Busting, or reaching exactly 21,
// ends that seat's turn.
func (g *Game) Hit(playerID string) error {
	s, err := g.checkTurn(playerID)
	if err != nil {
		return err
	}
	c := g.deck.Draw()
	s.Hand = append(s.Hand, c)
	v := s.Value()
	switch {
	case v > 21:
		s.Status = StBusted
		g.logf("%s draws %s and busts with %d.", s.Name, c, v)
		g.advanceTurn()
	case v == 21:
		s.Status = StStanding
		g.logf("%s draws %s. 21!", s.Name, c)
		g.advanceTurn()
	default:
		g.logf("%s draws %s (%d).", s.Name, c, v)
	}
	return nil
}

func (g *Game) Stand(playerID string) error {
	s, err := g.checkTurn(playerID)
	if err != nil {
		return err
	}
	s.Status = StStanding
	g.logf("%s stands with %d.", s.Name, s.Value())
	g.advanceTurn()
	return nil
}

func (g *Game) dealerTurn() {
	g.phase = PhaseDealerTurn
	for HandValue(g.dealer) < 17 {
		g.dealer = append(g.dealer, g.deck.Draw())
	}
	if v := HandValue(g.dealer); v > 21 {
		g.logf("Dealer busts with %d.", v)
	} else {
		g.logf("Dealer stands with %d.", v)
	}
	g.phase = PhaseGameOver
	g.settle()
}

// RemovePlayer drops a departing player's seat. The round re-evaluates so
// it never waits on someone who left.
func (g *Game) RemovePlayer(playerID string) bool {
	s, idx := g.seatOf(playerID)
	if s == nil {
		return false
	}
	g.seats = append(g.seats[:idx], g.seats[idx+1:]...)
	g.logf("%s left the table.", s.Name)

	switch g.phase {
	case PhaseBetting:
		g.maybeDeal()
	case PhasePlayerTurn:
		switch {
		case idx < g.turn:
			g.turn--
		case idx == g.turn:
			g.turn--
			g.advanceTurn()
		}
	}
	return true
}
