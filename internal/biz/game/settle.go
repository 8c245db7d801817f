package game

// settle pays out every seat that played the round. Only called on entering
// GameOver.
func (g *Game) settle() {
	dealerValue := HandValue(g.dealer)
	dealerBJ := IsBlackjack(g.dealer)
	dealerBust := dealerValue > 21

	for _, s := range g.seats {
		if s.Status == StWaiting {
			continue
		}
		v := s.Value()
		switch {
		case s.Status == StBusted:
			g.lose(s, "%s busted and loses %d.")
		case s.Status == StBlackjack && dealerBJ:
			g.logf("%s pushes: both have blackjack.", s.Name)
		case s.Status == StBlackjack:
			win := s.Bet * 3 / 2
			s.Balance += win
			g.logf("%s wins %d with blackjack!", s.Name, win)
		case dealerBJ:
			g.lose(s, "%s loses %d to the dealer's blackjack.")
		case dealerBust:
			s.Balance += s.Bet
			g.logf("%s wins %d, dealer busted.", s.Name, s.Bet)
		case v > dealerValue:
			s.Balance += s.Bet
			g.logf("%s wins %d with %d.", s.Name, s.Bet, v)
		case v == dealerValue:
			g.logf("%s pushes with %d.", s.Name, v)
		default:
			g.lose(s, "%s loses %d.")
		}
	}
}

func (g *Game) lose(s *Seat, format string) {
	s.Balance -= s.Bet
	g.logf(format, s.Name, s.Bet)
}
