package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ponyo877/chatrelay/server/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const frameTimeout = 2 * time.Second

// memRepository is an in-memory Repository.
type memRepository struct {
	mu       sync.Mutex
	users    map[string]domain.User
	messages []domain.PrivateMessage
	failPM   error
}

func newMemRepository() *memRepository {
	return &memRepository{users: make(map[string]domain.User)}
}

func (r *memRepository) CreateUser(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Username]; exists {
		return domain.ErrAlreadyExists
	}
	r.users[user.Username] = user
	return nil
}

func (r *memRepository) GetUser(_ context.Context, username string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, exists := r.users[username]
	if !exists {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (r *memRepository) CreatePrivateMessage(_ context.Context, message domain.PrivateMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPM != nil {
		return r.failPM
	}
	r.messages = append(r.messages, message)
	return nil
}

func (r *memRepository) ListPrivateMessages(_ context.Context, userA, userB string) ([]domain.PrivateMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PrivateMessage
	for _, m := range r.messages {
		if m.Between(userA, userB) {
			out = append(out, m)
		}
	}
	return out, nil
}

var errConnClosed = errors.New("conn closed")

// fakeConn is a domain.Conn driven by channels.
type fakeConn struct {
	in        chan string
	out       chan domain.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 16),
		out:    make(chan domain.Frame, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line := <-c.in:
		return line, nil
	case <-c.closed:
		return "", io.EOF
	}
}

func (c *fakeConn) WriteFrame(f domain.Frame) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return errConnClosed
	}
}

func (c *fakeConn) RemoteAddr() string { return "fake" }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type testServer struct {
	uc       *SessionUsecase
	repo     *memRepository
	registry domain.RoomRegistry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := newMemRepository()
	registry := domain.NewRoomRegistry(zap.NewNop())
	creds := NewCredentialUsecase(repo, NewBcryptHasher(bcrypt.MinCost))
	uc := NewSessionUsecase(creds, registry, Options{QueueSize: 64, BridgeHost: "10.0.0.7"}, zap.NewNop())
	return &testServer{uc: uc, repo: repo, registry: registry}
}

type client struct {
	t         *testing.T
	conn      *fakeConn
	done      chan error
	closeOnce sync.Once
}

func (srv *testServer) connect(t *testing.T) *client {
	t.Helper()
	c := &client{t: t, conn: newFakeConn(), done: make(chan error, 1)}
	go func() {
		c.done <- srv.uc.HandleSession(context.Background(), c.conn)
	}()
	c.expect("T|Welcome. Type 1 to Register, 2 to Login.")
	t.Cleanup(func() { c.close() })
	return c
}

func (c *client) send(line string) {
	c.t.Helper()
	select {
	case c.conn.in <- line:
	case <-time.After(frameTimeout):
		c.t.Fatalf("timed out sending %q", line)
	}
}

func (c *client) next() domain.Frame {
	c.t.Helper()
	select {
	case f := <-c.conn.out:
		return f
	case <-time.After(frameTimeout):
		c.t.Fatalf("timed out waiting for a frame")
		return domain.Frame{}
	}
}

func (c *client) expect(want string) {
	c.t.Helper()
	assert.Equal(c.t, want, c.next().String())
}

func (c *client) expectContains(parts ...string) domain.Frame {
	c.t.Helper()
	f := c.next()
	for _, p := range parts {
		assert.Contains(c.t, f.String(), p)
	}
	return f
}

func (c *client) expectNothing() {
	c.t.Helper()
	select {
	case f := <-c.conn.out:
		c.t.Fatalf("unexpected frame %q", f.String())
	case <-time.After(50 * time.Millisecond):
	}
}

// close disconnects and waits until the server has finished the session.
func (c *client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		select {
		case err := <-c.done:
			require.NoError(c.t, err)
		case <-time.After(frameTimeout):
			c.t.Fatalf("session did not finish")
		}
	})
}

func (c *client) register(username, password string) {
	c.t.Helper()
	c.send("1")
	c.expect("T|Enter desired username:")
	c.send(username)
	c.expect("T|Enter password:")
	c.send(password)
	c.expect("S|Registration successful. Logging in...")
	c.expectWelcome(username)
}

func (c *client) login(username, password string) {
	c.t.Helper()
	c.send("2")
	c.expect("T|Enter username:")
	c.send(username)
	c.expect("T|Enter password:")
	c.send(password)
	c.expect("S|Login successful.")
	c.expectWelcome(username)
}

func (c *client) expectWelcome(username string) {
	c.t.Helper()
	f := c.next()
	require.Equal(c.t, domain.FrameInfo, f.Type)
	assert.True(c.t, strings.HasPrefix(f.Payload, "\nYou joined: lobby\nMembers in lobby ("), f.Payload)
	assert.Contains(c.t, f.Payload, "Welcome, "+username+"!\nYou can start chatting immediately.")
	assert.Contains(c.t, f.Payload, "--- COMMANDS ---")
}
