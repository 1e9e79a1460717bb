package adaptor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ponyo877/chatrelay/server/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait          = 10 * time.Second
	defaultMaxLine     = 1 << 20
	defaultMaxSessions = 1024
)

// lineConn speaks the newline-delimited frame protocol over a net.Conn.
type lineConn struct {
	conn      net.Conn
	scanner   *bufio.Scanner
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newLineConn(conn net.Conn, maxLineBytes int) *lineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(4096, maxLineBytes)), maxLineBytes)
	return &lineConn{conn: conn, scanner: scanner}
}

func (c *lineConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
	}
	if err := c.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (c *lineConn) WriteFrame(f domain.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := io.WriteString(c.conn, f.Encode()+"\n")
	return err
}

func (c *lineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

type TCPOptions struct {
	MaxLineBytes   int
	MaxConnections int
}

// TCPServer accepts chat clients and hands each connection to the usecase.
type TCPServer struct {
	uc     Usecase
	opts   TCPOptions
	logger *zap.Logger

	group   *errgroup.Group
	rejects sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[*lineConn]struct{}
	closing  bool
}

func NewTCPServer(uc Usecase, opts TCPOptions, logger *zap.Logger) *TCPServer {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaultMaxLine
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = defaultMaxSessions
	}
	group := new(errgroup.Group)
	group.SetLimit(opts.MaxConnections)
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPServer{
		uc:     uc,
		opts:   opts,
		logger: logger,
		group:  group,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*lineConn]struct{}),
	}
}

func (s *TCPServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve runs the accept loop until Shutdown is called.
func (s *TCPServer) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("Chat relay is listening", zap.String("addr", lis.Addr().String()))
	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}

		c := newLineConn(conn, s.opts.MaxLineBytes)
		if !s.group.TryGo(func() error {
			s.serve(c)
			return nil
		}) {
			s.startReject(c)
		}
	}
}

func (s *TCPServer) serve(c *lineConn) {
	if !s.track(c) {
		c.Close()
		return
	}
	defer s.untrack(c)
	defer c.Close()

	if err := s.uc.HandleSession(s.ctx, c); err != nil {
		s.logger.Warn("Session ended with error", zap.String("remote", c.RemoteAddr()), zap.Error(err))
	}
}

// startReject writes the full-server notice off the accept loop so a client
// that never reads cannot stall new accepts.
func (s *TCPServer) startReject(c *lineConn) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.rejects.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.rejects.Done()
		defer s.untrack(c)
		s.reject(c)
	}()
}

func (s *TCPServer) reject(c *lineConn) {
	s.logger.Warn("Connection limit reached, rejecting client",
		zap.String("remote", c.RemoteAddr()), zap.Int("max_connections", s.opts.MaxConnections))
	if err := c.WriteFrame(domain.Errorf("Server is full. Try again later.")); err != nil {
		s.logger.Debug("failed to notify rejected client", zap.Error(err))
	}
	c.Close()
}

func (s *TCPServer) track(c *lineConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *TCPServer) untrack(c *lineConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *TCPServer) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting, closes every live connection and waits for the
// session goroutines to return or ctx to expire.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan error, 1)
	go func() {
		err := s.group.Wait()
		s.rejects.Wait()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("failed to drain sessions: %w", ctx.Err())
	}
}
