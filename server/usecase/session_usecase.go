package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/ponyo877/chatrelay/server/adaptor"
	"github.com/ponyo877/chatrelay/server/domain"
	"go.uber.org/zap"
)

type Options struct {
	QueueSize  int
	BridgeHost string
}

// SessionUsecase runs the per-connection state machine: authentication,
// then chat, commands and signaling.
type SessionUsecase struct {
	registry domain.RoomRegistry
	creds    *CredentialUsecase
	relay    *Relay
	opts     Options
	logger   *zap.Logger
}

func NewUsecase(repo Repository, hasher PasswordHasher, registry domain.RoomRegistry, opts Options, logger *zap.Logger) adaptor.Usecase {
	return NewSessionUsecase(NewCredentialUsecase(repo, hasher), registry, opts, logger)
}

func NewSessionUsecase(creds *CredentialUsecase, registry domain.RoomRegistry, opts Options, logger *zap.Logger) *SessionUsecase {
	return &SessionUsecase{
		registry: registry,
		creds:    creds,
		relay:    NewRelay(registry, creds, opts.BridgeHost, logger),
		opts:     opts,
		logger:   logger,
	}
}

func (u *SessionUsecase) HandleSession(ctx context.Context, conn domain.Conn) error {
	s := domain.NewSession(ulid.Make().String(), conn, u.opts.QueueSize)
	u.registry.Attach(s)
	defer u.registry.Remove(s)

	go s.WritePump(func(err error) {
		u.logger.Debug("write failed", zap.String("session", s.ID), zap.Error(err))
		u.registry.Remove(s)
	})

	u.logger.Info("session started", zap.String("session", s.ID), zap.String("remote", s.Remote))
	u.relay.Reply(s, domain.Promptf("Welcome. Type 1 to Register, 2 to Login."))

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || s.Closed() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read from session %s: %w", s.ID, err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		u.step(ctx, s, line)
	}
}

func (u *SessionUsecase) step(ctx context.Context, s *domain.Session, line string) {
	switch s.State.Mode {
	case domain.ModeAwaitAuthChoice:
		u.onAuthChoice(s, line)
	case domain.ModeAwaitNewUsername:
		u.onNewUsername(s, line)
	case domain.ModeAwaitNewPassword:
		u.onNewPassword(ctx, s, line)
	case domain.ModeAwaitUsername:
		u.onUsername(s, line)
	case domain.ModeAwaitPassword:
		u.onPassword(ctx, s, line)
	case domain.ModeFree:
		u.onFree(ctx, s, line)
	case domain.ModeAwaitRoomChoice:
		u.onRoomChoice(ctx, s, line)
	case domain.ModeAwaitNewRoomName:
		u.onNewRoomName(ctx, s, line)
	}
}

func (u *SessionUsecase) onAuthChoice(s *domain.Session, line string) {
	switch line {
	case "1":
		s.State.To(domain.ModeAwaitNewUsername)
		u.relay.Reply(s, domain.Promptf("Enter desired username:"))
	case "2":
		s.State.To(domain.ModeAwaitUsername)
		u.relay.Reply(s, domain.Promptf("Enter username:"))
	default:
		u.relay.Reply(s, domain.Failuref("Invalid choice. Type 1 or 2:"))
	}
}

func (u *SessionUsecase) onNewUsername(s *domain.Session, line string) {
	if err := domain.ValidateUsername(line); err != nil {
		s.State.To(domain.ModeAwaitAuthChoice)
		u.relay.Reply(s, domain.Failuref("Invalid username. Must be 1-%d characters and contain no spaces. Try again (1/2):", domain.MaxUsernameLength))
		return
	}
	s.State.AwaitUsername(domain.ModeAwaitNewPassword, line)
	u.relay.Reply(s, domain.Promptf("Enter password:"))
}

func (u *SessionUsecase) onNewPassword(ctx context.Context, s *domain.Session, line string) {
	username := s.State.PendingUsername
	s.State.To(domain.ModeAwaitAuthChoice)

	err := u.creds.Register(ctx, username, line)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		u.relay.Reply(s, domain.Failuref("Username taken. Try again (1/2):"))
		return
	case errors.Is(err, domain.ErrInvalidUsername):
		u.relay.Reply(s, domain.Failuref("Invalid username. Must be 1-%d characters and contain no spaces. Try again (1/2):", domain.MaxUsernameLength))
		return
	case err != nil:
		u.logger.Error("registration failed", zap.String("session", s.ID), zap.String("user", username), zap.Error(err))
		u.relay.Reply(s, domain.Errorf("Registration failed. Try again (1/2):"))
		return
	}
	u.logger.Info("user registered", zap.String("session", s.ID), zap.String("user", username))
	u.relay.Reply(s, domain.Successf("Registration successful. Logging in..."))
	if u.claim(s, username) {
		u.enterLobby(s)
	}
}

func (u *SessionUsecase) onUsername(s *domain.Session, line string) {
	s.State.AwaitUsername(domain.ModeAwaitPassword, line)
	u.relay.Reply(s, domain.Promptf("Enter password:"))
}

func (u *SessionUsecase) onPassword(ctx context.Context, s *domain.Session, line string) {
	username := s.State.PendingUsername
	s.State.To(domain.ModeAwaitAuthChoice)

	ok, err := u.creds.Authenticate(ctx, username, line)
	if err != nil {
		u.logger.Error("authentication failed", zap.String("session", s.ID), zap.String("user", username), zap.Error(err))
		u.relay.Reply(s, domain.Errorf("Login failed. Try again (1/2):"))
		return
	}
	if !ok {
		u.relay.Reply(s, domain.Failuref("Invalid credentials. Try again (1/2):"))
		return
	}
	if !u.claim(s, username) {
		return
	}
	u.logger.Info("user logged in", zap.String("session", s.ID), zap.String("user", username))
	u.relay.Reply(s, domain.Successf("Login successful."))
	u.enterLobby(s)
}

// claim marks the username online for this session. It fails when another
// live session already holds it.
func (u *SessionUsecase) claim(s *domain.Session, username string) bool {
	if err := u.registry.Login(s, username); err != nil {
		if errors.Is(err, domain.ErrAlreadyOnline) {
			u.relay.Reply(s, domain.Failuref("User already logged in. Try again (1/2):"))
		}
		return false
	}
	return true
}

func (u *SessionUsecase) enterLobby(s *domain.Session) {
	s.State.To(domain.ModeFree)
	greeting := fmt.Sprintf("Welcome, %s!\nYou can start chatting immediately.\n\n%s", s.Username(), commandHelp)
	u.joinRoom(s, domain.LobbyRoom, greeting)
}

func (u *SessionUsecase) onFree(ctx context.Context, s *domain.Session, line string) {
	switch {
	case domain.IsCommand(line):
		u.dispatch(ctx, s, domain.ParseCommand(line))
	case strings.HasPrefix(line, SignalMarker):
		u.relay.ForwardSignal(s, line)
	default:
		u.relay.BroadcastChat(s, line)
	}
}

func (u *SessionUsecase) onRoomChoice(ctx context.Context, s *domain.Session, line string) {
	if domain.IsCommand(line) {
		s.State.To(domain.ModeFree)
		u.dispatch(ctx, s, domain.ParseCommand(line))
		return
	}
	menu := s.State.Menu
	createChoice := len(menu) + 1
	choice, err := strconv.Atoi(line)
	if err != nil || choice < 1 || choice > createChoice {
		u.relay.Reply(s, domain.Errorf("Invalid choice. Enter number (1-%d) or type /leave:", createChoice))
		return
	}
	if choice == createChoice {
		s.State.To(domain.ModeAwaitNewRoomName)
		u.relay.Reply(s, domain.Menuf("Enter the name for the new room (max %d chars, no spaces):", domain.MaxRoomNameLength))
		return
	}
	s.State.To(domain.ModeFree)
	u.joinRoom(s, menu[choice-1], "")
}

func (u *SessionUsecase) onNewRoomName(ctx context.Context, s *domain.Session, line string) {
	s.State.To(domain.ModeFree)
	if domain.IsCommand(line) {
		u.dispatch(ctx, s, domain.ParseCommand(line))
		return
	}
	if err := domain.ValidateRoomName(line); err != nil {
		u.relay.Reply(s, invalidRoomNameFrame)
		return
	}
	if _, exists := u.registry.GetRoom(line); exists {
		u.relay.Reply(s, domain.Infof("Room '%s' already exists. Connecting now.", line))
	}
	u.joinRoom(s, line, "")
}

func (u *SessionUsecase) joinRoom(s *domain.Session, name, greeting string) {
	result, err := u.registry.Join(s, name, greeting)
	switch {
	case errors.Is(err, domain.ErrAlreadyInRoom):
		u.relay.Reply(s, domain.Infof("You are already in %s", name))
	case errors.Is(err, domain.ErrInvalidRoomName):
		u.relay.Reply(s, invalidRoomNameFrame)
	case err != nil:
		u.logger.Debug("join failed", zap.String("session", s.ID), zap.String("room", name), zap.Error(err))
	default:
		u.logger.Info("joined room",
			zap.String("session", s.ID),
			zap.String("user", s.Username()),
			zap.String("room", result.Room),
			zap.String("previous", result.Previous),
			zap.Bool("created", result.Created),
		)
	}
}

func (u *SessionUsecase) GetStats() domain.RegistryStats {
	return u.registry.GetStats()
}

func (u *SessionUsecase) ListRooms() []domain.RoomInfo {
	return u.registry.GetRooms()
}

func (u *SessionUsecase) ListPrivateHistory(ctx context.Context, userA, userB string) ([]domain.PrivateMessage, error) {
	return u.creds.PrivateHistory(ctx, userA, userB)
}

var invalidRoomNameFrame = domain.Errorf("Invalid room name. Must be 1-%d characters and contain no spaces. Try /join again.", domain.MaxRoomNameLength)
