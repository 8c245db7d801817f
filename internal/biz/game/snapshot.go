package game

import (
	"github.com/samber/lo"

	"github.com/yola1107/blackjack/api/protocol"
	"github.com/yola1107/blackjack/library/ext"
)

// dealerHidden reports whether the hole card is still face down.
func (g *Game) dealerHidden() bool {
	return g.phase == PhaseBetting || g.phase == PhasePlayerTurn
}

// Snapshot renders the client view of the table.
func (g *Game) Snapshot() *protocol.GameState {
	st := &protocol.GameState{
		RoomID:             g.roomID,
		State:              g.phase.String(),
		CurrentPlayerIndex: -1,
		CardsRemaining:     g.deck.Remaining(),
		Players: lo.Map(g.seats, func(s *Seat, _ int) protocol.SeatState {
			return protocol.SeatState{
				PlayerID:   s.PlayerID,
				Name:       s.Name,
				Balance:    s.Balance,
				CurrentBet: s.Bet,
				Hand:       lo.Map(s.Hand, func(c Card, _ int) protocol.Card { return c.view() }),
				HandValue:  s.Value(),
				Status:     s.Status.String(),
			}
		}),
	}
	if g.phase == PhasePlayerTurn {
		st.CurrentPlayerIndex = g.turn
	}

	if g.dealerHidden() && len(g.dealer) > 0 {
		st.DealerHand = []protocol.Card{g.dealer[0].view()}
		for range g.dealer[1:] {
			st.DealerHand = append(st.DealerHand, protocol.Card{Hidden: true})
		}
		st.DealerValue = HandValue(g.dealer[:1])
	} else {
		st.DealerHand = lo.Map(g.dealer, func(c Card, _ int) protocol.Card { return c.view() })
		st.DealerValue = HandValue(g.dealer)
		st.DealerIsBusted = st.DealerValue > 21
	}
	if st.DealerHand == nil {
		st.DealerHand = []protocol.Card{}
	}

	n := len(g.messages)
	from := n - ext.Clamp(g.opts.MessageTail, 0, n)
	st.Messages = append([]string{}, g.messages[from:]...)
	return st
}
