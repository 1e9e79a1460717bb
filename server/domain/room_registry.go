package domain

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// roomRegistryImpl serializes membership changes and deliveries under one
// lock, so a broadcast never races a join or leave of the same room.
type roomRegistryImpl struct {
	mu        sync.Mutex
	rooms     map[string]*room
	order     []string
	online    map[string]*Session
	sessions  map[string]*Session
	messages  int64
	startTime time.Time
	logger    *zap.Logger
}

func NewRoomRegistry(logger *zap.Logger) RoomRegistry {
	r := &roomRegistryImpl{
		rooms:     make(map[string]*room),
		online:    make(map[string]*Session),
		sessions:  make(map[string]*Session),
		startTime: time.Now(),
		logger:    logger,
	}
	for _, name := range ProtectedRooms {
		r.rooms[name] = newRoom(name)
		r.order = append(r.order, name)
	}
	return r
}

func (r *roomRegistryImpl) Attach(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.registered = true
	r.sessions[s.ID] = s
}

func (r *roomRegistryImpl) Login(s *Session, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.registered {
		return ErrNotRegistered
	}
	if _, exists := r.online[username]; exists {
		return ErrAlreadyOnline
	}
	r.online[username] = s
	s.username = username
	return nil
}

func (r *roomRegistryImpl) IsOnline(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.online[username]
	return exists
}

func (r *roomRegistryImpl) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(s)
}

func (r *roomRegistryImpl) removeLocked(s *Session) bool {
	if !s.registered {
		return false
	}
	s.registered = false
	delete(r.sessions, s.ID)
	if s.username != "" && r.online[s.username] == s {
		delete(r.online, s.username)
	}
	if s.room != "" {
		rm := r.rooms[s.room]
		s.room = ""
		if rm != nil {
			rm.remove(s)
			r.deliverLocked(rm.members, NewDisconnectEvent(rm.name, s.username).Frame())
			r.dropIfEmptyLocked(rm)
		}
	}
	if err := s.Close(); err != nil {
		r.logger.Debug("close session", zap.String("session", s.ID), zap.Error(err))
	}
	r.logger.Info("session removed", zap.String("session", s.ID), zap.String("user", s.username))
	return true
}

func (r *roomRegistryImpl) Join(s *Session, name, greeting string) (JoinResult, error) {
	if err := ValidateRoomName(name); err != nil {
		return JoinResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.registered {
		return JoinResult{}, ErrNotRegistered
	}
	if s.room == name {
		return JoinResult{Room: name}, ErrAlreadyInRoom
	}

	result := JoinResult{Room: name, Previous: s.room}
	if old := r.rooms[s.room]; old != nil {
		old.remove(s)
		s.room = ""
		r.deliverLocked(old.members, NewLeaveEvent(old.name, s.username).Frame())
		r.dropIfEmptyLocked(old)
	}

	rm, exists := r.rooms[name]
	if !exists {
		rm = newRoom(name)
		r.rooms[name] = rm
		r.order = append(r.order, name)
		result.Created = true
	}
	others := append([]*Session(nil), rm.members...)
	rm.add(s)
	s.room = name
	result.Members = rm.usernames()

	r.deliverLocked([]*Session{s}, NewFrame(FrameInfo, JoinSummary(name, result.Members)+greeting))
	if s.registered {
		r.deliverLocked(others, NewJoinEvent(name, s.username).Frame())
	}
	return result, nil
}

func (r *roomRegistryImpl) CurrentRoom(s *Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return s.room, s.room != ""
}

func (r *roomRegistryImpl) GetRoom(name string) (RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[name]
	if !exists {
		return RoomInfo{}, false
	}
	return rm.info(), true
}

func (r *roomRegistryImpl) GetRooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]RoomInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.rooms[name].info())
	}
	return infos
}

func (r *roomRegistryImpl) Broadcast(from *Session, f Frame) (string, error) {
	return r.broadcast(from, f, false)
}

func (r *roomRegistryImpl) BroadcastAll(from *Session, f Frame) (string, error) {
	return r.broadcast(from, f, true)
}

func (r *roomRegistryImpl) broadcast(from *Session, f Frame, includeSender bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[from.room]
	if rm == nil {
		return "", ErrNotInRoom
	}
	targets := make([]*Session, 0, len(rm.members))
	for _, m := range rm.members {
		if m != from || includeSender {
			targets = append(targets, m)
		}
	}
	r.messages++
	r.deliverLocked(targets, f)
	return rm.name, nil
}

func (r *roomRegistryImpl) SendToUser(username string, f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, exists := r.online[username]
	if !exists {
		return false
	}
	r.messages++
	r.deliverLocked([]*Session{target}, f)
	return target.registered
}

func (r *roomRegistryImpl) GetStats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RegistryStats{
		ActiveRooms:    len(r.rooms),
		ActiveSessions: len(r.sessions),
		OnlineUsers:    len(r.online),
		TotalMessages:  r.messages,
		Uptime:         time.Since(r.startTime),
	}
}

// deliverLocked queues f for every target. Targets that cannot take it are
// removed exactly like a disconnect, after the rest have been served.
func (r *roomRegistryImpl) deliverLocked(targets []*Session, f Frame) {
	var failed []*Session
	for _, t := range append([]*Session(nil), targets...) {
		if err := t.Send(f); err != nil {
			r.logger.Debug("delivery failed", zap.String("session", t.ID), zap.Error(err))
			failed = append(failed, t)
		}
	}
	for _, t := range failed {
		r.removeLocked(t)
	}
}

func (r *roomRegistryImpl) dropIfEmptyLocked(rm *room) {
	if rm.protected || len(rm.members) > 0 {
		return
	}
	delete(r.rooms, rm.name)
	for i, name := range r.order {
		if name == rm.name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
