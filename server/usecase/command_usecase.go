package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ponyo877/chatrelay/server/domain"
	"go.uber.org/zap"
)

const commandHelp = `--- COMMANDS ---
/list
/join <room>
/leave
/pm <user> <msg>
/history <user>
/call`

var unknownCommandFrame = domain.Errorf("Unknown command. Available: /list, /join, /leave, /pm, /history, /who, /call, /accept, /reject, /help")

func (u *SessionUsecase) dispatch(ctx context.Context, s *domain.Session, cmd domain.Command) {
	u.logger.Debug("command", zap.String("session", s.ID), zap.Stringer("command", cmd))

	switch cmd.Type {
	case domain.CommandList:
		u.listRooms(s)
	case domain.CommandJoin:
		if cmd.Target == "" {
			u.showRoomMenu(s)
			return
		}
		u.joinRoom(s, cmd.Target, "")
	case domain.CommandLeave:
		if room, _ := u.registry.CurrentRoom(s); room == domain.LobbyRoom {
			u.relay.Reply(s, domain.Infof("You are already in the lobby."))
			return
		}
		u.joinRoom(s, domain.LobbyRoom, "")
	case domain.CommandPM:
		if !cmd.IsValid() {
			u.relay.Reply(s, domain.Errorf("USAGE: /pm <recipient_username> <message>"))
			return
		}
		if err := u.relay.SendPrivate(ctx, s, cmd.Target, cmd.Text); err != nil {
			u.logger.Error("private message failed", zap.String("session", s.ID), zap.String("recipient", cmd.Target), zap.Error(err))
		}
	case domain.CommandHistory:
		if !cmd.IsValid() {
			u.relay.Reply(s, domain.Errorf("USAGE: /history <username>"))
			return
		}
		u.showHistory(ctx, s, cmd.Target)
	case domain.CommandWho:
		u.showMembers(s)
	case domain.CommandCall:
		u.relay.CallInvite(s)
	case domain.CommandAccept:
		u.relay.CallOpen(s)
	case domain.CommandReject:
		u.relay.CallReject(s)
	case domain.CommandHelp:
		u.relay.Reply(s, domain.NewFrame(domain.FrameInfo, commandHelp+"\n/who\n/accept\n/reject"))
	default:
		u.relay.Reply(s, unknownCommandFrame)
	}
}

// otherRooms returns every room but the lobby, in creation order.
func (u *SessionUsecase) otherRooms() []domain.RoomInfo {
	var rooms []domain.RoomInfo
	for _, info := range u.registry.GetRooms() {
		if info.Name != domain.LobbyRoom {
			rooms = append(rooms, info)
		}
	}
	return rooms
}

func (u *SessionUsecase) listRooms(s *domain.Session) {
	rooms := u.otherRooms()
	if len(rooms) == 0 {
		u.relay.Reply(s, domain.Infof("No active rooms (other than lobby)."))
		return
	}
	lines := []string{"Active Rooms:"}
	for _, info := range rooms {
		lines = append(lines, fmt.Sprintf("- %s (%d users)", info.Name, info.Count()))
	}
	u.relay.Reply(s, domain.NewFrame(domain.FrameInfo, strings.Join(lines, "\n")))
}

func (u *SessionUsecase) showRoomMenu(s *domain.Session) {
	rooms := u.otherRooms()
	menu := make([]string, 0, len(rooms))
	lines := []string{"Available Rooms:"}
	for i, info := range rooms {
		menu = append(menu, info.Name)
		lines = append(lines, fmt.Sprintf("%d. %s (%d users)", i+1, info.Name, info.Count()))
	}
	lines = append(lines,
		fmt.Sprintf("%d. Create New Room", len(rooms)+1),
		"Enter number or type /leave:",
	)
	s.State.AwaitRoomChoice(menu)
	u.relay.Reply(s, domain.NewFrame(domain.FrameMenu, strings.Join(lines, "\n")))
}

func (u *SessionUsecase) showMembers(s *domain.Session) {
	room, ok := u.registry.CurrentRoom(s)
	if !ok {
		u.relay.Reply(s, notInRoomFrame)
		return
	}
	info, ok := u.registry.GetRoom(room)
	if !ok {
		u.relay.Reply(s, notInRoomFrame)
		return
	}
	u.relay.Reply(s, domain.Infof("Members in %s (%d): %s", info.Name, info.Count(), strings.Join(info.Members, ", ")))
}

func (u *SessionUsecase) showHistory(ctx context.Context, s *domain.Session, peer string) {
	me := s.Username()
	messages, err := u.creds.PrivateHistory(ctx, me, peer)
	if err != nil {
		u.logger.Error("history failed", zap.String("session", s.ID), zap.String("peer", peer), zap.Error(err))
		u.relay.Reply(s, domain.Errorf("Could not load history with %s. Try again later.", peer))
		return
	}
	if len(messages) == 0 {
		u.relay.Reply(s, domain.Infof("No private message history with %s.", peer))
		return
	}
	lines := []string{fmt.Sprintf("PM History with %s:", peer)}
	for _, m := range messages {
		arrow := "<-"
		if m.Sender == me {
			arrow = "->"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s %s: %s", m.CreatedAt.Local().Format("15:04"), arrow, m.Sender, m.Body))
	}
	u.relay.Reply(s, domain.NewFrame(domain.FrameInfo, strings.Join(lines, "\n")))
}
