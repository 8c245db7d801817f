package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-kratos/kratos/v2/encoding"
	_ "github.com/go-kratos/kratos/v2/encoding/json"
	"github.com/go-playground/validator/v10"

	"github.com/yola1107/blackjack/pkg/codes"
)

var (
	codec    = encoding.GetCodec("json")
	validate = validator.New()

	factories = map[string]func() Message{
		TypeSetName:    func() Message { return &SetName{} },
		TypeListRooms:  func() Message { return &ListRooms{} },
		TypeCreateRoom: func() Message { return &CreateRoom{} },
		TypeJoinRoom:   func() Message { return &JoinRoom{} },
		TypeLeaveRoom:  func() Message { return &LeaveRoom{} },
		TypeStartGame:  func() Message { return &StartGame{} },
		TypePlaceBet:   func() Message { return &PlaceBet{} },
		TypeHit:        func() Message { return &Hit{} },
		TypeStand:      func() Message { return &Stand{} },
		TypeNewRound:   func() Message { return &NewRound{} },
	}
)

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Decode parses one text frame into a typed request. The type match is
// case-insensitive. Returned errors are *errors.Error from pkg/codes.
func Decode(data []byte) (Message, error) {
	var env inbound
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, codes.ErrMalformed
	}
	typ := strings.ToUpper(strings.TrimSpace(env.Type))
	if typ == "" {
		return nil, codes.ErrMissingType
	}
	factory, ok := factories[typ]
	if !ok {
		return nil, codes.Detail(codes.ErrUnknownType, "Unknown message type: %s", env.Type)
	}

	msg := factory()
	if p := bytes.TrimSpace(env.Payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		if err := codec.Unmarshal(p, msg); err != nil {
			return nil, codes.Detail(codes.ErrBadPayload, "Invalid %s payload.", typ)
		}
	}
	if err := validate.Struct(msg); err != nil {
		return nil, codes.Detail(codes.ErrBadPayload, "Invalid %s payload: %s", typ, fieldErrors(err))
	}
	return msg, nil
}

func fieldErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}

// Encode renders a server message envelope.
func Encode(typ string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return codec.Marshal(&Envelope{Type: typ, Payload: payload})
}

// MustEncode is Encode for payload types that always marshal.
func MustEncode(typ string, payload any) []byte {
	b, err := Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return b
}
