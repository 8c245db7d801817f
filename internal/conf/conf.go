package conf

import (
	"encoding/json"
	"fmt"
	"time"

	zconf "github.com/yola1107/blackjack/library/log/zap/conf"
)

const (
	Name    = "blackjack"
	Version = "v0.1.0"
)

type Bootstrap struct {
	Server *Server `json:"server" validate:"required"`
	Room   *Room   `json:"room" validate:"required"`
	Game   *Game   `json:"game" validate:"required"`
	Log    *Log    `json:"log" validate:"required"`
}

type Server struct {
	Websocket *Websocket `json:"websocket" validate:"required"`
	Work      *Work      `json:"work" validate:"required"`
}

type Websocket struct {
	Network        string   `json:"network" validate:"oneof=tcp tcp4 tcp6"`
	Addr           string   `json:"addr" validate:"required"`
	Path           string   `json:"path" validate:"required,startswith=/"`
	MaxConn        int      `json:"maxConn" validate:"gte=1"`
	SendChanSize   int      `json:"sendChanSize" validate:"gte=1"`
	MaxMessageSize int64    `json:"maxMessageSize" validate:"gte=0"`
	WriteTimeout   Duration `json:"writeTimeout"`
	PingInterval   Duration `json:"pingInterval"`
	ReadDeadline   Duration `json:"readDeadline"`
	RateLimit      float64  `json:"rateLimit" validate:"gte=0"` // 每连接每秒消息数, 0 不限
	RateBurst      int      `json:"rateBurst" validate:"gte=0"`
}

type Work struct {
	PoolSize      int      `json:"poolSize" validate:"gte=1"`
	StatsInterval Duration `json:"statsInterval"`
}

type Room struct {
	DefaultMaxPlayers int       `json:"defaultMaxPlayers" validate:"gte=1"`
	MaxPlayersLimit   int       `json:"maxPlayersLimit" validate:"gtefield=DefaultMaxPlayers"`
	NameFormat        string    `json:"nameFormat" validate:"required"`
	QueueSize         int       `json:"queueSize" validate:"gte=1"`
	ListParallel      int       `json:"listParallel" validate:"gte=1"`
	LogCache          *LogCache `json:"logCache" validate:"required"`
}

// LogCache enables one rolling round log per room.
type LogCache struct {
	Open      bool   `json:"open"`
	Directory string `json:"directory" validate:"required_if=Open true"`
}

type Game struct {
	StartingBalance int64 `json:"startingBalance" validate:"gte=1"`
	MinBet          int64 `json:"minBet" validate:"gte=1"`
	MaxBet          int64 `json:"maxBet" validate:"gte=0"` // 0 不限
	MessageTail     int   `json:"messageTail" validate:"gte=0"`
}

type Log struct {
	Logger *zconf.Logger `json:"logger" validate:"required"`
}

// Default is merged under the loaded file; zero fields take these values.
func Default() *Bootstrap {
	return &Bootstrap{
		Server: &Server{
			Websocket: &Websocket{
				Network:        "tcp",
				Addr:           "0.0.0.0:8080",
				Path:           "/ws",
				MaxConn:        10000,
				SendChanSize:   128,
				MaxMessageSize: 4096,
				WriteTimeout:   Duration(10 * time.Second),
				PingInterval:   Duration(15 * time.Second),
				ReadDeadline:   Duration(60 * time.Second),
				RateLimit:      20,
				RateBurst:      40,
			},
			Work: &Work{
				PoolSize:      256,
				StatsInterval: Duration(time.Minute),
			},
		},
		Room: &Room{
			DefaultMaxPlayers: 8,
			MaxPlayersLimit:   8,
			NameFormat:        "%s's table",
			QueueSize:         256,
			ListParallel:      16,
			LogCache: &LogCache{
				Open:      false,
				Directory: "./logs/rooms",
			},
		},
		Game: &Game{
			StartingBalance: 1000,
			MinBet:          1,
			MaxBet:          0,
			MessageTail:     5,
		},
		Log: &Log{
			Logger: zconf.DefaultConfig(zconf.WithAppName(Name)),
		},
	}
}

// Duration reads "10s" style strings or integer nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}
