package codes

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
)

// Category names reported to clients. The thousands digit of an error code
// selects the category.
const (
	CategoryProtocol  = "ProtocolError"
	CategoryAuth      = "AuthError"
	CategoryRoom      = "RoomError"
	CategoryGameState = "GameStateError"
	CategoryInternal  = "InternalError"
)

var (
	// 1xxx protocol / validation
	ErrMalformed    = errors.New(1001, "MALFORMED", "Invalid JSON format.")
	ErrMissingType  = errors.New(1002, "MISSING_TYPE", "Message type is required.")
	ErrUnknownType  = errors.New(1003, "UNKNOWN_TYPE", "Unknown message type.")
	ErrNameRequired = errors.New(1004, "NAME_REQUIRED", "Name cannot be empty.")
	ErrBadPayload   = errors.New(1005, "BAD_PAYLOAD", "Invalid message payload.")

	// 2xxx identity
	ErrNameNotSet = errors.New(2001, "NAME_NOT_SET", "Player name not set. Send SET_NAME first.")

	// 3xxx room
	ErrNotInRoom      = errors.New(3001, "NOT_IN_ROOM", "You are not in a room.")
	ErrRoomNotFound   = errors.New(3002, "ROOM_NOT_FOUND", "Room not found.")
	ErrWrongPassword  = errors.New(3003, "WRONG_PASSWORD", "Invalid password.")
	ErrRoomFull       = errors.New(3004, "ROOM_FULL", "Room is full.")
	ErrGameInProgress = errors.New(3005, "GAME_IN_PROGRESS", "Game is already in progress.")
	ErrAlreadyInRoom  = errors.New(3006, "ALREADY_IN_ROOM", "You are already in a room. Leave it first.")
	ErrNoActiveGame   = errors.New(3007, "NO_ACTIVE_GAME", "No active game in this room.")
	ErrNotHost        = errors.New(3008, "NOT_HOST", "Only the host can start the game.")

	// 4xxx game state
	ErrWrongPhase         = errors.New(4001, "WRONG_PHASE", "Action not allowed in the current phase.")
	ErrNotYourTurn        = errors.New(4002, "NOT_YOUR_TURN", "It is not your turn.")
	ErrSeatNotFound       = errors.New(4003, "SEAT_NOT_FOUND", "You are not seated in this game.")
	ErrBetAlreadyPlaced   = errors.New(4004, "BET_ALREADY_PLACED", "Bet already placed this round.")
	ErrBetTooLow          = errors.New(4005, "BET_TOO_LOW", "Bet is below the table minimum.")
	ErrBetTooHigh         = errors.New(4006, "BET_TOO_HIGH", "Bet is above the table maximum.")
	ErrInsufficientFunds  = errors.New(4007, "INSUFFICIENT_FUNDS", "Bet exceeds your balance.")
	ErrSeatNotPlaying     = errors.New(4008, "SEAT_NOT_PLAYING", "Your hand is no longer in play.")
	ErrGameAlreadyStarted = errors.New(4009, "GAME_ALREADY_STARTED", "A game is already running in this room.")

	// 5xxx internal
	ErrInternal = errors.New(5001, "INTERNAL", "Internal server error.")
)

// Category maps err onto the client facing taxonomy. Errors that are not
// kratos errors are internal.
func Category(err error) string {
	e := errors.FromError(err)
	if e == nil {
		return ""
	}
	switch e.Code / 1000 {
	case 1:
		return CategoryProtocol
	case 2:
		return CategoryAuth
	case 3:
		return CategoryRoom
	case 4:
		return CategoryGameState
	default:
		return CategoryInternal
	}
}

// Detail returns a copy of e carrying a more specific message. The copy
// still matches e under errors.Is.
func Detail(e *errors.Error, format string, args ...any) *errors.Error {
	return errors.New(int(e.Code), e.Reason, fmt.Sprintf(format, args...))
}
