package adaptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const bridgeReadLimit = 64 << 10

const (
	actionSetUser    = "set_user"
	actionSetUserAck = "set_user_ack"
)

var forwardedActions = map[string]bool{
	"offer":  true,
	"answer": true,
	"ice":    true,
}

type bridgeMessage struct {
	Action   string `json:"action"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
}

type setUserAck struct {
	Action   string `json:"action"`
	IsCaller bool   `json:"isCaller"`
}

type bridgePeer struct {
	conn *websocket.Conn
	mu   sync.Mutex

	// guarded by the bridge lock
	room string
}

func (p *bridgePeer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *bridgePeer) writeJSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(v)
}

// SignalBridge relays WebRTC negotiation between browsers that opened a video
// call. The first socket in a bridge room is the caller.
type SignalBridge struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string][]*bridgePeer

	srv *http.Server
}

func NewSignalBridge(logger *zap.Logger) *SignalBridge {
	return &SignalBridge{
		logger: logger,
		upgrader: websocket.Upgrader{
			// video pages are opened from arbitrary local origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string][]*bridgePeer),
	}
}

func (b *SignalBridge) Handler() http.Handler {
	router := gin.New()
	router.Use(ginzap.Ginzap(b.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(b.logger, true))

	router.GET("/ws", b.handle)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": b.roomCount()})
	})
	return router
}

func (b *SignalBridge) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return b.Serve(lis)
}

func (b *SignalBridge) Serve(lis net.Listener) error {
	b.mu.Lock()
	b.srv = &http.Server{Handler: b.Handler()}
	srv := b.srv
	b.mu.Unlock()

	b.logger.Info("Signaling bridge is listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (b *SignalBridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	srv := b.srv
	peers := make([]*bridgePeer, 0)
	for _, room := range b.rooms {
		peers = append(peers, room...)
	}
	b.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	// hijacked websocket connections are not tracked by http.Server
	for _, p := range peers {
		p.conn.Close()
	}
	return err
}

func (b *SignalBridge) handle(c *gin.Context) {
	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Warn("ws.upgrade", zap.Error(err))
		return
	}
	conn.SetReadLimit(bridgeReadLimit)
	peer := &bridgePeer{conn: conn}
	defer func() {
		b.leave(peer)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg bridgeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Debug("ws.decode", zap.Error(err))
			continue
		}

		switch {
		case msg.Action == actionSetUser && msg.Room == "":
			b.logger.Debug("ws.set_user without room")
		case msg.Action == actionSetUser:
			isCaller := b.join(peer, msg.Username, msg.Room)
			if err := peer.writeJSON(setUserAck{Action: actionSetUserAck, IsCaller: isCaller}); err != nil {
				return
			}
		case forwardedActions[msg.Action]:
			b.forward(peer, data)
		default:
			b.logger.Debug("ws.ignored", zap.String("action", msg.Action))
		}
	}
}

// join places the peer in room and reports whether it is the first one there.
func (b *SignalBridge) join(p *bridgePeer, username, room string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.leaveLocked(p)
	p.room = room
	b.rooms[room] = append(b.rooms[room], p)
	isCaller := len(b.rooms[room]) == 1
	b.logger.Info("Bridge peer joined",
		zap.String("user", username), zap.String("room", room), zap.Bool("caller", isCaller))
	return isCaller
}

func (b *SignalBridge) leave(p *bridgePeer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(p)
}

func (b *SignalBridge) leaveLocked(p *bridgePeer) {
	peers, ok := b.rooms[p.room]
	if !ok {
		return
	}
	for i, other := range peers {
		if other == p {
			peers = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(peers) == 0 {
		delete(b.rooms, p.room)
	} else {
		b.rooms[p.room] = peers
	}
	p.room = ""
}

func (b *SignalBridge) forward(from *bridgePeer, data []byte) {
	b.mu.Lock()
	if from.room == "" {
		b.mu.Unlock()
		return
	}
	targets := make([]*bridgePeer, 0, len(b.rooms[from.room]))
	for _, p := range b.rooms[from.room] {
		if p != from {
			targets = append(targets, p)
		}
	}
	b.mu.Unlock()

	for _, p := range targets {
		if err := p.write(data); err != nil {
			b.logger.Debug("ws.forward", zap.Error(err))
			p.conn.Close()
		}
	}
}

func (b *SignalBridge) roomCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms)
}
