package server

import (
	"github.com/google/wire"

	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/internal/service"
	"github.com/yola1107/blackjack/transport/websocket"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewWebsocketServer)

// NewWebsocketServer new an Websocket server.
func NewWebsocketServer(c *conf.Server, mgr *websocket.SessionManager, svc *service.Service) *websocket.Server {
	ws := c.Websocket
	var opts = []websocket.ServerOption{
		websocket.Sessions(mgr),
		websocket.Handler(svc),
	}
	if ws.Network != "" {
		opts = append(opts, websocket.Network(ws.Network))
	}
	if ws.Addr != "" {
		opts = append(opts, websocket.Address(ws.Addr))
	}
	if ws.Path != "" {
		opts = append(opts, websocket.Path(ws.Path))
	}
	if ws.MaxConn > 0 {
		opts = append(opts, websocket.MaxConnLimit(ws.MaxConn))
	}
	if ws.SendChanSize > 0 {
		opts = append(opts, websocket.SentChanSize(ws.SendChanSize))
	}
	if ws.MaxMessageSize > 0 {
		opts = append(opts, websocket.MaxMessageSize(ws.MaxMessageSize))
	}
	if ws.ReadDeadline > 0 && ws.PingInterval > 0 && ws.WriteTimeout > 0 {
		opts = append(opts, websocket.Heartbeat(ws.ReadDeadline.Std(), ws.PingInterval.Std(), ws.WriteTimeout.Std()))
	}
	if ws.RateLimit > 0 {
		opts = append(opts, websocket.RateLimit(ws.RateLimit, ws.RateBurst))
	}
	return websocket.NewServer(opts...)
}
