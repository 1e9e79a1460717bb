package adaptor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ponyo877/chatrelay/server/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ioTimeout = 2 * time.Second

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsecase struct {
	stats      domain.RegistryStats
	rooms      []domain.RoomInfo
	history    []domain.PrivateMessage
	historyErr error
	handle     func(ctx context.Context, conn domain.Conn) error
}

func (u *fakeUsecase) HandleSession(ctx context.Context, conn domain.Conn) error {
	if u.handle == nil {
		return echoSession(ctx, conn)
	}
	return u.handle(ctx, conn)
}

func (u *fakeUsecase) GetStats() domain.RegistryStats {
	return u.stats
}

func (u *fakeUsecase) ListRooms() []domain.RoomInfo {
	return u.rooms
}

func (u *fakeUsecase) ListPrivateHistory(_ context.Context, _, _ string) ([]domain.PrivateMessage, error) {
	return u.history, u.historyErr
}

// echoSession answers every line with an info frame carrying it.
func echoSession(_ context.Context, conn domain.Conn) error {
	for {
		line, err := conn.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := conn.WriteFrame(domain.NewFrame(domain.FrameInfo, line)); err != nil {
			return err
		}
	}
}

func startTCPServer(t *testing.T, uc Usecase, opts TCPOptions) (*TCPServer, string) {
	t.Helper()
	srv := NewTCPServer(uc, opts, zap.NewNop())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(lis)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-served
	})
	return srv, lis.Addr().String()
}

type tcpClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialTCP(t *testing.T, addr string) *tcpClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, ioTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &tcpClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpClient) send(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

// readRaw returns the next wire line without its newline.
func (c *tcpClient) readRaw() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	line, err := c.reader.ReadString('\n')
	return strings.TrimSuffix(line, "\n"), err
}

func (c *tcpClient) next() domain.Frame {
	c.t.Helper()
	line, err := c.readRaw()
	require.NoError(c.t, err)
	f, err := domain.DecodeFrame(line)
	require.NoError(c.t, err)
	return f
}

func (c *tcpClient) expect(want string) {
	c.t.Helper()
	require.Equal(c.t, want, c.next().String())
}

func (c *tcpClient) expectClosed() {
	c.t.Helper()
	_, err := c.readRaw()
	require.Error(c.t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		require.False(c.t, ne.Timeout(), "connection was not closed")
	}
}
