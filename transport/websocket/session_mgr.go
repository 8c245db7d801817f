package websocket

import (
	"errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/yola1107/blackjack/library/shard"
)

var (
	ErrConnNotFound = errors.New("websocket: connection not found")
	ErrConnNotOpen  = errors.New("websocket: connection not open")
)

// Conn is a handle the SessionManager can write to and close.
type Conn interface {
	Send(data []byte) error
	Close() error
	Closed() bool
}

// SessionManager indexes live connections by a generated id.
type SessionManager struct {
	sessions *shard.Map[Conn]
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: shard.New[Conn](),
	}
}

func (s *SessionManager) Len() int {
	return s.sessions.Len()
}

// Register stores conn under a fresh id and returns the id.
func (s *SessionManager) Register(conn Conn) string {
	for {
		id := uuid.NewString()
		if _, loaded := s.sessions.LoadOrStore(id, conn); !loaded {
			log.Debugf("session registered. key=%q sessions=%d", id, s.sessions.Len())
			return id
		}
	}
}

// Unregister removes id and closes its handle if it is still open.
// Close errors are only logged.
func (s *SessionManager) Unregister(id string) (Conn, bool) {
	conn, ok := s.sessions.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	if !conn.Closed() {
		if err := conn.Close(); err != nil {
			log.Warnf("session %q close: %v", id, err)
		}
	}
	log.Debugf("session unregistered. key=%q sessions=%d", id, s.sessions.Len())
	return conn, true
}

func (s *SessionManager) Get(id string) (Conn, bool) {
	return s.sessions.Load(id)
}

// Send writes one frame to id.
func (s *SessionManager) Send(id string, data []byte) error {
	conn, ok := s.sessions.Load(id)
	if !ok {
		return ErrConnNotFound
	}
	if conn.Closed() {
		return ErrConnNotOpen
	}
	if err := conn.Send(data); err != nil {
		return errors.Join(ErrConnNotOpen, err)
	}
	return nil
}

func (s *SessionManager) Range(fn func(id string, conn Conn) bool) {
	s.sessions.Range(fn)
}

// CloseAll closes every registered connection. Entries are removed by
// the owners' close callbacks.
func (s *SessionManager) CloseAll() {
	s.sessions.Range(func(id string, conn Conn) bool {
		if !conn.Closed() {
			_ = conn.Close()
		}
		return true
	})
}
