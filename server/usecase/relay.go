package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ponyo877/chatrelay/server/domain"
	"go.uber.org/zap"
)

// SignalMarker prefixes an inbound line carrying a JSON signaling payload.
const SignalMarker = "WEBRTC|"

type signalEnvelope struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// Relay fans frames out to live sessions. It holds no state of its own.
type Relay struct {
	registry   domain.RoomRegistry
	creds      *CredentialUsecase
	bridgeHost string
	logger     *zap.Logger
}

func NewRelay(registry domain.RoomRegistry, creds *CredentialUsecase, bridgeHost string, logger *zap.Logger) *Relay {
	return &Relay{
		registry:   registry,
		creds:      creds,
		bridgeHost: bridgeHost,
		logger:     logger,
	}
}

// Reply delivers f to s alone. A session that cannot take it is removed.
func (r *Relay) Reply(s *domain.Session, f domain.Frame) {
	if err := s.Send(f); err != nil {
		r.logger.Debug("reply failed", zap.String("session", s.ID), zap.Error(err))
		r.registry.Remove(s)
	}
}

func (r *Relay) BroadcastChat(s *domain.Session, text string) {
	room, ok := r.registry.CurrentRoom(s)
	if !ok {
		r.Reply(s, notInRoomFrame)
		return
	}
	if _, err := r.registry.Broadcast(s, domain.NewChatEvent(room, s.Username(), text).Frame()); err != nil {
		r.Reply(s, notInRoomFrame)
	}
}

func (r *Relay) SendPrivate(ctx context.Context, s *domain.Session, recipient, body string) error {
	sender := s.Username()
	if _, err := r.creds.SavePrivateMessage(ctx, sender, recipient, body); err != nil {
		r.Reply(s, domain.Errorf("Could not save PM to %s. Try again later.", recipient))
		return err
	}

	r.Reply(s, domain.PrivateOutf("PM sent to %s: %s", recipient, body))
	if !r.registry.SendToUser(recipient, domain.PrivateInf("PM from %s: %s", sender, body)) {
		r.Reply(s, domain.Infof("%s is offline. Message saved.", recipient))
	}
	return nil
}

// ForwardSignal relays an opaque signaling payload to the sender's room peers.
// Payloads that are not valid JSON are dropped without telling the sender.
func (r *Relay) ForwardSignal(s *domain.Session, line string) {
	payload := strings.TrimPrefix(line, SignalMarker)
	if !json.Valid([]byte(payload)) {
		r.logger.Debug("dropping malformed signal", zap.String("session", s.ID))
		return
	}
	envelope, err := json.Marshal(signalEnvelope{From: s.Username(), Payload: json.RawMessage(payload)})
	if err != nil {
		r.logger.Debug("dropping signal", zap.String("session", s.ID), zap.Error(err))
		return
	}
	if _, err := r.registry.Broadcast(s, domain.NewFrame(domain.FrameVideo, string(envelope))); err != nil && !errors.Is(err, domain.ErrNotInRoom) {
		r.logger.Warn("forward signal", zap.String("session", s.ID), zap.Error(err))
	}
}

func (r *Relay) CallInvite(s *domain.Session) {
	if _, err := r.registry.Broadcast(s, domain.Menuf("%s wants to start a video call! Type /accept", s.Username())); err != nil {
		r.Reply(s, notInRoomFrame)
		return
	}
	r.Reply(s, domain.Infof("Video call request sent to the users in the room."))
}

// CallOpen tells every member of the room, the acceptor included, where the
// call page lives.
func (r *Relay) CallOpen(s *domain.Session) {
	if _, err := r.registry.BroadcastAll(s, domain.OpenVideoFrame(r.bridgeHost)); err != nil {
		r.Reply(s, notInRoomFrame)
		return
	}
	r.Reply(s, domain.Successf("Call accepted. Opening video chat..."))
}

func (r *Relay) CallReject(s *domain.Session) {
	if _, err := r.registry.Broadcast(s, domain.Menuf("%s rejected the video call.", s.Username())); err != nil {
		r.Reply(s, notInRoomFrame)
		return
	}
	r.Reply(s, domain.Successf("You rejected the video call."))
}

var notInRoomFrame = domain.Errorf("You are not in a room! Use /join first.")
