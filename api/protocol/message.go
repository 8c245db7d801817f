// Package protocol defines the JSON envelopes exchanged over the websocket.
// Every frame is {"type": "...", "payload": {...}}; payload fields are
// camelCase.
package protocol

// client -> server
const (
	TypeSetName    = "SET_NAME"
	TypeListRooms  = "LIST_ROOMS"
	TypeCreateRoom = "CREATE_ROOM"
	TypeJoinRoom   = "JOIN_ROOM"
	TypeLeaveRoom  = "LEAVE_ROOM"
	TypeStartGame  = "START_GAME"
	TypePlaceBet   = "PLACE_BET"
	TypeHit        = "HIT"
	TypeStand      = "STAND"
	TypeNewRound   = "NEW_ROUND"
)

// server -> client
const (
	TypeError        = "ERROR"
	TypeNameSet      = "NAME_SET"
	TypeRoomsList    = "ROOMS_LIST"
	TypeRoomCreated  = "ROOM_CREATED"
	TypeJoinSuccess  = "JOIN_SUCCESS"
	TypePlayerJoined = "PLAYER_JOINED"
	TypePlayerLeft   = "PLAYER_LEFT"
	TypeLeftRoom     = "LEFT_ROOM"
	TypeNewHost      = "NEW_HOST"
	TypeGameState    = "GAME_STATE"
)

// Message is one decoded client request.
type Message interface {
	MessageType() string
}

type SetName struct {
	Name string `json:"name"`
}

type ListRooms struct{}

type CreateRoom struct {
	RoomName   string `json:"roomName" validate:"max=64"`
	Password   string `json:"password" validate:"max=64"`
	MaxPlayers int    `json:"maxPlayers" validate:"gte=0,lte=64"`
}

type JoinRoom struct {
	RoomID   string `json:"roomId" validate:"required"`
	Password string `json:"password"`
}

type LeaveRoom struct{}

type StartGame struct{}

type PlaceBet struct {
	Amount int64 `json:"amount"`
}

type Hit struct{}

type Stand struct{}

type NewRound struct{}

func (SetName) MessageType() string    { return TypeSetName }
func (ListRooms) MessageType() string  { return TypeListRooms }
func (CreateRoom) MessageType() string { return TypeCreateRoom }
func (JoinRoom) MessageType() string   { return TypeJoinRoom }
func (LeaveRoom) MessageType() string  { return TypeLeaveRoom }
func (StartGame) MessageType() string  { return TypeStartGame }
func (PlaceBet) MessageType() string   { return TypePlaceBet }
func (Hit) MessageType() string        { return TypeHit }
func (Stand) MessageType() string      { return TypeStand }
func (NewRound) MessageType() string   { return TypeNewRound }
