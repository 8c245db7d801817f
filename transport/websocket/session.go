package websocket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/yola1107/blackjack/library/xgo"
)

var (
	errSessionClosed  = errors.New("session: closed send")
	errSendBufferFull = errors.New("session: send buffer full")
)

type iHandler interface {
	// OnSessionOpen 会话注册后回调
	OnSessionOpen(sess *Session)
	// OnSessionClose 读循环退出时回调, 每个会话恰好一次
	OnSessionClose(sess *Session)
	// DispatchMessage 处理客户端发来的一帧文本数据
	DispatchMessage(sess *Session, data []byte) error
}

type SessionConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadDeadline   time.Duration
	SendChanSize   int
	MaxMessageSize int64
	RateLimit      float64 // 每秒帧数, 0 不限
	RateBurst      int
}

// Session is one websocket connection. Frames are read and dispatched one
// at a time on the read pump; writes are queued to the write pump.
type Session struct {
	id         string
	h          iHandler
	connMu     sync.Mutex
	conn       *websocket.Conn
	config     *SessionConfig
	limiter    *rate.Limiter
	sendChan   chan []byte
	closed     atomic.Bool
	lastActive atomic.Value // time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	sendMu     sync.Mutex
}

func newSession(h iHandler, conn *websocket.Conn, config *SessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		h:        h,
		conn:     conn,
		config:   config,
		sendChan: make(chan []byte, max(config.SendChanSize, 1)),
		ctx:      ctx,
		cancel:   cancel,
	}
	if config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(config.RateBurst, 1))
	}
	s.lastActive.Store(time.Now())
	return s
}

// run starts the pumps. The id must be assigned before.
func (s *Session) run() {
	s.h.OnSessionOpen(s)
	go s.readPump()
	go s.writePump()
	go s.heartbeat()
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *Session) LastActive() time.Time {
	return s.lastActive.Load().(time.Time)
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Send queues one text frame. A client that lets its queue fill up is
// disconnected.
func (s *Session) Send(message []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.Closed() {
		return errSessionClosed
	}
	select {
	case s.sendChan <- message:
		return nil
	default:
	}
	log.Warnf("sessionID=%q send buffer full (%d), closing", s.id, cap(s.sendChan))
	go s.shutdown(true)
	return errSendBufferFull
}

// Close closes the connection with a normal closure frame.
func (s *Session) Close() error {
	s.shutdown(false)
	return nil
}

func (s *Session) readPump() {
	defer xgo.RecoverFromError(func(e any) {
		log.Errorf("sessionID=%q read pump panic: %v", s.id, e)
	})
	defer s.h.OnSessionClose(s)
	defer s.shutdown(false)

	if s.config.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.config.MaxMessageSize)
	}
	s.conn.SetPongHandler(func(string) error {
		s.lastActive.Store(time.Now())
		return s.conn.SetReadDeadline(time.Now().Add(s.config.ReadDeadline))
	})

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.config.ReadDeadline)); err != nil {
			log.Errorf("sessionID=%q set read deadline error: %v", s.id, err)
			return
		}

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warnf("sessionID=%q unexpected close: %v", s.id, err)
			}
			return
		}

		s.lastActive.Store(time.Now())

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if s.limiter != nil {
				if err := s.limiter.Wait(s.ctx); err != nil {
					return
				}
			}
			_ = s.h.DispatchMessage(s, data)
		default:
			log.Warnf("sessionID=%q unsupported message type: %d", s.id, msgType)
		}
	}
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.sendChan:
			if !ok {
				return
			}
			if err := s.writeTextMessage(msg); err != nil {
				if errors.Is(err, errSessionClosed) || strings.Contains(err.Error(), "close sent") {
					log.Infof("sessionID=%q write aborted, reason: %v", s.id, err)
				} else {
					log.Errorf("sessionID=%q write error: %v", s.id, err)
				}
				s.shutdown(true)
				return
			}
		}
	}
}

func (s *Session) heartbeat() {
	if s.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			if s.Closed() {
				return
			}
			if time.Since(s.LastActive()) > s.config.ReadDeadline {
				log.Warnf("sessionID=%q heartbeat timeout", s.id)
				s.shutdown(true)
				return
			}
			s.writeControl(websocket.PingMessage, nil)
		}
	}
}

// shutdown closes the session once. Closing the socket unblocks the read
// pump, which then reports the close to the handler.
func (s *Session) shutdown(force bool) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}

	s.closeNotify(force)

	s.cancel()

	s.sendMu.Lock()
	close(s.sendChan)
	s.sendMu.Unlock()

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()
	return true
}

func (s *Session) closeNotify(force bool) {
	reason := "Normal Closure"
	if force {
		reason = "Force Closure"
		if time.Since(s.LastActive()) > s.config.ReadDeadline {
			reason = "Force Closure (Heartbeat timeout)"
		}
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	s.writeControl(websocket.CloseMessage, message)
}

func (s *Session) writeControl(msgType int, data []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	_ = s.conn.WriteControl(msgType, data, time.Now().Add(s.config.WriteTimeout))
}

func (s *Session) writeTextMessage(data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.Closed() {
		return errSessionClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
