package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	LobbyRoom         = "lobby"
	MaxRoomNameLength = 15
	MaxUsernameLength = 32
)

// ProtectedRooms exist from startup and are never deleted.
var ProtectedRooms = []string{LobbyRoom, "room1", "room2"}

func IsProtectedRoom(name string) bool {
	for _, p := range ProtectedRooms {
		if p == name {
			return true
		}
	}
	return false
}

func ValidateRoomName(name string) error {
	if !validToken(name, MaxRoomNameLength) {
		return ErrInvalidRoomName
	}
	return nil
}

func ValidateUsername(name string) error {
	if !validToken(name, MaxUsernameLength) {
		return ErrInvalidUsername
	}
	return nil
}

func validToken(s string, max int) bool {
	n := utf8.RuneCountInString(s)
	if n == 0 || n > max {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsSpace)
}

type room struct {
	name      string
	protected bool
	members   []*Session
}

func newRoom(name string) *room {
	return &room{
		name:      name,
		protected: IsProtectedRoom(name),
	}
}

func (r *room) add(s *Session) {
	r.members = append(r.members, s)
}

func (r *room) remove(s *Session) bool {
	for i, m := range r.members {
		if m == s {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *room) usernames() []string {
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.username)
	}
	return names
}

type RoomInfo struct {
	Name      string
	Protected bool
	Members   []string
}

func (i RoomInfo) Count() int {
	return len(i.Members)
}

func (r *room) info() RoomInfo {
	return RoomInfo{
		Name:      r.name,
		Protected: r.protected,
		Members:   r.usernames(),
	}
}
