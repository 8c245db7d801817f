package game

import (
	"github.com/samber/lo"

	"github.com/yola1107/blackjack/api/protocol"
)

var (
	suits = []string{"hearts", "diamonds", "clubs", "spades"}
	ranks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
)

type Card struct {
	Suit string
	Rank string
}

// Value counts aces as 11; soft-ace reduction happens in HandValue.
func (c Card) Value() int {
	switch c.Rank {
	case "A":
		return 11
	case "J", "Q", "K", "10":
		return 10
	default:
		return int(c.Rank[0] - '0')
	}
}

func (c Card) String() string { return c.Rank + " of " + c.Suit }

func (c Card) view() protocol.Card { return protocol.Card{Suit: c.Suit, Rank: c.Rank} }

// Shuffler permutes a deck in place.
type Shuffler func(cards []Card)

func defaultShuffle(cards []Card) { lo.Shuffle(cards) }

/*
	Deck 牌堆
*/

type Deck struct {
	index   int
	cards   []Card
	shuffle Shuffler
}

// NewDeck returns a full 52 card deck permuted by shuffle.
func NewDeck(shuffle Shuffler) *Deck {
	if shuffle == nil {
		shuffle = defaultShuffle
	}
	d := &Deck{shuffle: shuffle}
	d.Reset()
	return d
}

// Reset refills and reshuffles the deck.
func (d *Deck) Reset() {
	d.index = 0
	d.cards = make([]Card, 0, len(suits)*len(ranks))
	for _, s := range suits {
		for _, r := range ranks {
			d.cards = append(d.cards, Card{Suit: s, Rank: r})
		}
	}
	d.shuffle(d.cards)
}

// Draw deals the next card. An exhausted deck is refilled first.
func (d *Deck) Draw() Card {
	if d.index >= len(d.cards) {
		d.Reset()
	}
	c := d.cards[d.index]
	d.index++
	return c
}

func (d *Deck) Remaining() int { return len(d.cards) - d.index }
