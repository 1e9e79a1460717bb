package adaptor_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ponyo877/chatrelay/server/adaptor"
	"github.com/ponyo877/chatrelay/server/domain"
	"github.com/ponyo877/chatrelay/server/repository"
	"github.com/ponyo877/chatrelay/server/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type chatClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func (c *chatClient) send(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\r\n")
	require.NoError(c.t, err)
}

func (c *chatClient) next() domain.Frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	f, err := domain.DecodeFrame(strings.TrimSuffix(line, "\n"))
	require.NoError(c.t, err)
	return f
}

func (c *chatClient) expect(want string) {
	c.t.Helper()
	require.Equal(c.t, want, c.next().String())
}

func (c *chatClient) register(username, password string) {
	c.t.Helper()
	c.send("1")
	c.expect("T|Enter desired username:")
	c.send(username)
	c.expect("T|Enter password:")
	c.send(password)
	c.expect("S|Registration successful. Logging in...")
	welcome := c.next()
	assert.Equal(c.t, domain.FrameInfo, welcome.Type)
	assert.Contains(c.t, welcome.Payload, "\nYou joined: lobby\n")
	assert.Contains(c.t, welcome.Payload, "Welcome, "+username+"!")
}

func TestChatOverTCP(t *testing.T) {
	logger := zap.NewNop()
	repo, err := repository.NewJSONRepository(filepath.Join(t.TempDir(), "chat_data.json"), logger)
	require.NoError(t, err)
	registry := domain.NewRoomRegistry(logger)
	uc := usecase.NewUsecase(repo, usecase.NewBcryptHasher(bcrypt.MinCost), registry,
		usecase.Options{QueueSize: 16, BridgeHost: "192.0.2.10"}, logger)

	srv := adaptor.NewTCPServer(uc, adaptor.TCPOptions{}, logger)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(lis)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	connect := func() *chatClient {
		conn, err := net.Dial("tcp", lis.Addr().String())
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		c := &chatClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
		c.expect("T|Welcome. Type 1 to Register, 2 to Login.")
		return c
	}

	alice := connect()
	alice.register("alice", "pw1")
	bob := connect()
	bob.register("bob", "pw2")
	alice.expect("R|bob joined lobby")

	bob.send("hi there")
	alice.expect("R|bob: hi there")

	alice.send("/call")
	bob.expect("M|alice wants to start a video call! Type /accept")
	alice.expect("I|Video call request sent to the users in the room.")
	bob.send("/accept")
	alice.expect("V|OPEN_VIDEO|192.0.2.10")
	bob.expect("V|OPEN_VIDEO|192.0.2.10")
	bob.expect("S|Call accepted. Opening video chat...")

	bob.conn.Close()
	alice.expect("R|bob disconnected.")
	require.Eventually(t, func() bool { return !registry.IsOnline("bob") }, time.Second, 10*time.Millisecond)
}
