package domain

import (
	"sync/atomic"
	"time"
)

// Conn is the transport a session talks over. ReadLine blocks until a full
// inbound line is available.
type Conn interface {
	ReadLine() (string, error)
	WriteFrame(f Frame) error
	RemoteAddr() string
	Close() error
}

type Session struct {
	ID          string
	Remote      string
	ConnectedAt time.Time
	State       SessionState

	conn   Conn
	out    chan Frame
	done   chan struct{}
	closed atomic.Bool

	// guarded by the registry lock
	username   string
	room       string
	registered bool
}

func NewSession(id string, conn Conn, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Session{
		ID:          id,
		Remote:      conn.RemoteAddr(),
		ConnectedAt: time.Now(),
		State:       NewSessionState(),
		conn:        conn,
		out:         make(chan Frame, queueSize),
		done:        make(chan struct{}),
	}
}

// Username is safe to call from the goroutine serving the session; it is
// written once, by that goroutine, at login.
func (s *Session) Username() string {
	return s.username
}

// Send queues a frame without blocking. A full queue means the peer stopped
// reading and is reported as a delivery failure.
func (s *Session) Send(f Frame) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.out <- f:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

// WritePump drains the outbound queue to the connection until the session is
// closed. onError is called once if a write fails.
func (s *Session) WritePump(onError func(error)) {
	for {
		select {
		case f := <-s.out:
			if err := s.conn.WriteFrame(f); err != nil {
				onError(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	return s.conn.Close()
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) String() string {
	name := s.username
	if name == "" {
		name = "-"
	}
	return name + "@" + s.Remote + "(" + s.ID + ")"
}
