package domain

import "time"

// RoomRegistry owns room membership and the online directory. Every method is
// atomic with respect to every other; callers never see raw maps.
type RoomRegistry interface {
	SessionDirectory
	RoomService
	MessageBroadcaster

	GetStats() RegistryStats
}

type SessionDirectory interface {
	Attach(session *Session)
	Login(session *Session, username string) error
	IsOnline(username string) bool
	Remove(session *Session) bool
}

type RoomService interface {
	// Join moves the session into the named room, creating it on first join.
	// greeting is appended to the join summary sent to the session.
	Join(session *Session, name, greeting string) (JoinResult, error)
	CurrentRoom(session *Session) (string, bool)
	GetRoom(name string) (RoomInfo, bool)
	// GetRooms lists rooms in creation order.
	GetRooms() []RoomInfo
}

type MessageBroadcaster interface {
	// Broadcast delivers to every member of the session's room but the session.
	Broadcast(from *Session, f Frame) (string, error)
	// BroadcastAll delivers to every member of the session's room.
	BroadcastAll(from *Session, f Frame) (string, error)
	// SendToUser reports whether the user was online and the frame was queued.
	SendToUser(username string, f Frame) bool
}

type JoinResult struct {
	Room     string
	Previous string
	Created  bool
	Members  []string
}

type RegistryStats struct {
	ActiveRooms    int
	ActiveSessions int
	OnlineUsers    int
	TotalMessages  int64
	Uptime         time.Duration
}
