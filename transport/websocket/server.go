package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var (
	_ transport.Server     = (*Server)(nil)
	_ transport.Endpointer = (*Server)(nil)
)

// SessionHandler receives session events from the server.
type SessionHandler interface {
	OnSessionOpen(ctx context.Context, sess *Session)
	OnSessionClose(ctx context.Context, sess *Session)
	OnMessage(ctx context.Context, sess *Session, data []byte) error
}

type sessionKey struct{}

// NewSessionContext returns a context carrying sess.
func NewSessionContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the session a message arrived on.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok && sess != nil
}

// ServerOption is a Websocket server option.
type ServerOption func(*Server)

func Network(network string) ServerOption {
	return func(o *Server) { o.network = network }
}
func Address(addr string) ServerOption {
	return func(o *Server) { o.address = addr }
}
func Path(path string) ServerOption {
	return func(o *Server) { o.path = path }
}
func Endpoint(u *url.URL) ServerOption {
	return func(o *Server) { o.endpoint = u }
}
func TlsConf(tlsConfig *tls.Config) ServerOption {
	return func(o *Server) { o.tlsConf = tlsConfig }
}
func MaxConnLimit(maxConnLimit int) ServerOption {
	return func(o *Server) { o.maxConnLimit = maxConnLimit }
}
func Timeout(d time.Duration) ServerOption {
	return func(o *Server) { o.timeout = d }
}
func Heartbeat(d, i, w time.Duration) ServerOption {
	return func(o *Server) {
		o.sessionConf.ReadDeadline, o.sessionConf.PingInterval, o.sessionConf.WriteTimeout = d, i, w
	}
}
func SentChanSize(size int) ServerOption {
	return func(o *Server) { o.sessionConf.SendChanSize = size }
}
func MaxMessageSize(n int64) ServerOption {
	return func(o *Server) { o.sessionConf.MaxMessageSize = n }
}
func RateLimit(perSecond float64, burst int) ServerOption {
	return func(o *Server) { o.sessionConf.RateLimit, o.sessionConf.RateBurst = perSecond, burst }
}
func Sessions(mgr *SessionManager) ServerOption {
	return func(o *Server) { o.sessionMgr = mgr }
}
func Handler(h SessionHandler) ServerOption {
	return func(o *Server) { o.handler = h }
}

// Server is a Websocket server wrapper.
type Server struct {
	*http.Server
	baseCtx      context.Context
	lis          net.Listener
	tlsConf      *tls.Config
	endpoint     *url.URL
	err          error
	path         string
	network      string
	address      string
	timeout      time.Duration
	maxConnLimit int
	sessionConf  *SessionConfig
	router       *mux.Router         // 路由
	upgrader     *websocket.Upgrader // WebSocket升级器
	sessionMgr   *SessionManager     // 会话管理
	handler      SessionHandler      // 业务回调
}

// NewServer creates a Websocket server by options.
func NewServer(opts ...ServerOption) *Server {
	srv := &Server{
		baseCtx: context.Background(),
		network: "tcp",
		address: ":0",
		path:    "/ws",
		timeout: 5 * time.Second,
		sessionConf: &SessionConfig{
			WriteTimeout:   10 * time.Second,
			PingInterval:   15 * time.Second,
			ReadDeadline:   60 * time.Second,
			SendChanSize:   128,
			MaxMessageSize: 4096,
		},
		maxConnLimit: 10000,
		router:       mux.NewRouter(),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessionMgr: NewSessionManager(),
	}
	for _, o := range opts {
		o(srv)
	}
	// 使用CORS中间件包装处理函数
	srv.router.Handle(srv.path, CORS(srv.handleConnections())).Methods(http.MethodGet, http.MethodOptions)
	srv.Server = &http.Server{
		Addr:      srv.address,
		Handler:   srv.router,
		TLSConfig: srv.tlsConf,
	}
	return srv
}

// SessionManager returns the connection registry.
func (s *Server) SessionManager() *SessionManager {
	return s.sessionMgr
}

func (s *Server) Endpoint() (*url.URL, error) {
	if err := s.listenAndEndpoint(); err != nil {
		return nil, err
	}
	return s.endpoint, nil
}

func (s *Server) listenAndEndpoint() error {
	if s.lis == nil {
		lis, err := net.Listen(s.network, s.address)
		if err != nil {
			s.err = err
			return err
		}
		s.lis = lis
	}
	if s.endpoint == nil {
		scheme := "ws"
		if s.tlsConf != nil {
			scheme = "wss"
		}
		s.endpoint = &url.URL{Scheme: scheme, Host: s.lis.Addr().String(), Path: s.path}
	}
	return s.err
}

// Start start the Websocket server.
func (s *Server) Start(ctx context.Context) error {
	if err := s.listenAndEndpoint(); err != nil {
		return err
	}
	s.baseCtx = ctx
	s.BaseContext = func(net.Listener) context.Context {
		return ctx
	}
	log.Infof("[websocket] server listening on: %s%s", s.lis.Addr().String(), s.path)
	var err error
	if s.tlsConf != nil {
		err = s.ServeTLS(s.lis, "", "")
	} else {
		err = s.Serve(s.lis)
	}
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleConnections() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cnt := s.sessionMgr.Len(); cnt >= s.maxConnLimit {
			w.WriteHeader(http.StatusServiceUnavailable)
			log.Warnf("[websocket] StatusServiceUnavailable. over maxConnections(%d)", cnt)
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("[websocket] upgrade error: %v", err)
			return
		}

		sess := newSession(s, conn, s.sessionConf)
		sess.id = s.sessionMgr.Register(sess)
		sess.run()
	}
}

// Stop stop the Websocket server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info("[websocket] server stopping")

	// 停止HTTP服务器
	err := s.Shutdown(ctx)

	// 关闭所有会话
	s.sessionMgr.CloseAll()

	return err
}

func (s *Server) OnSessionOpen(sess *Session) {
	log.Infof("[websocket] connected. %q key=%q sessions=%d", sess.RemoteAddr(), sess.ID(), s.sessionMgr.Len())
	if s.handler != nil {
		s.handler.OnSessionOpen(NewSessionContext(s.baseCtx, sess), sess)
	}
}

func (s *Server) OnSessionClose(sess *Session) {
	s.sessionMgr.Unregister(sess.ID())
	log.Infof("[websocket] disconnect. key=%q sessions=%d", sess.ID(), s.sessionMgr.Len())
	if s.handler != nil {
		s.handler.OnSessionClose(NewSessionContext(context.WithoutCancel(s.baseCtx), sess), sess)
	}
}

// DispatchMessage 消息分发
func (s *Server) DispatchMessage(sess *Session, data []byte) error {
	if s.handler == nil {
		return nil
	}
	ctx := NewSessionContext(s.baseCtx, sess)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err := s.handler.OnMessage(ctx, sess, data)
	if err != nil {
		log.Debugf("[websocket] key=%q dispatch: %v", sess.ID(), err)
	}
	return err
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 添加 CORS 相关头部
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Length, X-CSRF-Token, Token, session")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
