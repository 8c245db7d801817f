package protocol

type Error struct {
	Message string `json:"message"`
	Code    int32  `json:"code"`
	Reason  string `json:"reason"`
}

type NameSet struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	HasPassword bool   `json:"hasPassword"`
	HostName    string `json:"hostName"`
}

type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomInfo is sent as ROOM_CREATED to the creator and JOIN_SUCCESS to a
// joiner.
type RoomInfo struct {
	RoomID       string       `json:"roomId"`
	Name         string       `json:"name"`
	HostPlayerID string       `json:"hostPlayerId"`
	Players      []PlayerInfo `json:"players"`
}

type PlayerJoined struct {
	RoomID string     `json:"roomId"`
	Player PlayerInfo `json:"player"`
}

type PlayerLeft struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type LeftRoom struct {
	RoomID string `json:"roomId"`
}

type NewHost struct {
	RoomID   string `json:"roomId"`
	HostID   string `json:"hostId"`
	HostName string `json:"hostName"`
}

// Card is a dealt card. A face-down card only carries Hidden.
type Card struct {
	Suit   string `json:"suit,omitempty"`
	Rank   string `json:"rank,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

type SeatState struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Balance    int64  `json:"balance"`
	CurrentBet int64  `json:"currentBet"`
	Hand       []Card `json:"hand"`
	HandValue  int    `json:"handValue"`
	Status     string `json:"status"`
}

type GameState struct {
	RoomID             string      `json:"roomId"`
	State              string      `json:"state"`
	Players            []SeatState `json:"players"`
	DealerHand         []Card      `json:"dealerHand"`
	DealerValue        int         `json:"dealerValue"`
	DealerIsBusted     bool        `json:"dealerIsBusted"`
	CurrentPlayerIndex int         `json:"currentPlayerIndex"`
	CardsRemaining     int         `json:"cardsRemaining"`
	Messages           []string    `json:"messages"`
}
