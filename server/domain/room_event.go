package domain

import (
	"fmt"
	"strings"
)

type RoomEventType int

const (
	EventJoin RoomEventType = iota
	EventLeave
	EventDisconnect
	EventChat
)

func (t RoomEventType) String() string {
	switch t {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventDisconnect:
		return "disconnect"
	case EventChat:
		return "chat"
	default:
		return "unknown"
	}
}

type RoomEvent struct {
	Type    RoomEventType
	Room    string
	Sender  string
	Message string
}

func NewJoinEvent(room, sender string) RoomEvent {
	return RoomEvent{Type: EventJoin, Room: room, Sender: sender}
}

func NewLeaveEvent(room, sender string) RoomEvent {
	return RoomEvent{Type: EventLeave, Room: room, Sender: sender}
}

func NewDisconnectEvent(room, sender string) RoomEvent {
	return RoomEvent{Type: EventDisconnect, Room: room, Sender: sender}
}

func NewChatEvent(room, sender, message string) RoomEvent {
	return RoomEvent{Type: EventChat, Room: room, Sender: sender, Message: message}
}

func (e RoomEvent) IsValid() bool {
	switch e.Type {
	case EventJoin, EventLeave, EventDisconnect:
		return e.Room != "" && e.Sender != ""
	case EventChat:
		return e.Room != "" && e.Sender != "" && e.Message != ""
	default:
		return false
	}
}

// Frame renders the event as the room line other members see.
func (e RoomEvent) Frame() Frame {
	switch e.Type {
	case EventJoin:
		return Roomf("%s joined %s", e.Sender, e.Room)
	case EventLeave:
		return Roomf("%s left %s", e.Sender, e.Room)
	case EventDisconnect:
		return Roomf("%s disconnected.", e.Sender)
	default:
		return Roomf("%s: %s", e.Sender, e.Message)
	}
}

func (e RoomEvent) String() string {
	return e.Type.String() + ": " + e.Sender + "@" + e.Room
}

// JoinSummary is the block a session receives after entering a room.
func JoinSummary(room string, members []string) string {
	return fmt.Sprintf("\nYou joined: %s\nMembers in %s (%d): %s\n",
		room, room, len(members), strings.Join(members, ", "))
}
