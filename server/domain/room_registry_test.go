package domain

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedTime = time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC)

type stubConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *stubConn) ReadLine() (string, error) { return "", fmt.Errorf("not readable") }
func (c *stubConn) WriteFrame(Frame) error { return nil }
func (c *stubConn) RemoteAddr() string { return "stub" }
func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newTestRegistry() *roomRegistryImpl {
	return NewRoomRegistry(zap.NewNop()).(*roomRegistryImpl)
}

func newLoggedIn(t *testing.T, r *roomRegistryImpl, name string, queueSize int) *Session {
	t.Helper()
	s := NewSession("id-"+name, &stubConn{}, queueSize)
	r.Attach(s)
	require.NoError(t, r.Login(s, name))
	return s
}

// drain returns the frames queued for s so far.
func drain(s *Session) []Frame {
	var frames []Frame
	for {
		select {
		case f := <-s.out:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func payloads(frames []Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.String())
	}
	return out
}

// checkMirror asserts that room membership and session.room agree both ways.
func checkMirror(t *testing.T, r *roomRegistryImpl) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, rm := range r.rooms {
		if !rm.protected {
			assert.NotEmpty(t, rm.members, "unprotected room %s is empty", name)
		}
		for _, m := range rm.members {
			assert.Equal(t, name, m.room, "member %s of %s", m.username, name)
		}
	}
	for _, s := range r.sessions {
		if s.room == "" {
			continue
		}
		rm, ok := r.rooms[s.room]
		require.True(t, ok, "session %s points at missing room %s", s.username, s.room)
		assert.Contains(t, rm.members, s)
	}
	assert.Len(t, r.order, len(r.rooms))
}

func TestNewRoomRegistryHasProtectedRooms(t *testing.T) {
	r := newTestRegistry()
	rooms := r.GetRooms()
	require.Len(t, rooms, 3)
	for i, name := range ProtectedRooms {
		assert.Equal(t, name, rooms[i].Name)
		assert.True(t, rooms[i].Protected)
		assert.Zero(t, rooms[i].Count())
	}
}

func TestRoomRegistryJoin(t *testing.T) {
	r := newTestRegistry()
	alice := newLoggedIn(t, r, "alice", 16)
	bob := newLoggedIn(t, r, "bob", 16)

	res, err := r.Join(alice, "lobby", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.Members)
	assert.False(t, res.Created)
	assert.Equal(t, []string{"I|\nYou joined: lobby\nMembers in lobby (1): alice\n"}, payloads(drain(alice)))

	_, err = r.Join(bob, "lobby", "Welcome!")
	require.NoError(t, err)
	assert.Equal(t, []string{"I|\nYou joined: lobby\nMembers in lobby (2): alice, bob\nWelcome!"}, payloads(drain(bob)))
	assert.Equal(t, []string{"R|bob joined lobby"}, payloads(drain(alice)))

	res, err = r.Join(alice, "chess", "")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "lobby", res.Previous)
	assert.Equal(t, []string{"R|alice left lobby"}, payloads(drain(bob)))
	_, ok := r.GetRoom("chess")
	assert.True(t, ok)

	_, err = r.Join(alice, "chess", "")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	_, err = r.Join(alice, "lobby", "")
	require.NoError(t, err)
	_, ok = r.GetRoom("chess")
	assert.False(t, ok, "empty unprotected room must be deleted")

	_, err = r.Join(bob, "room1", "")
	require.NoError(t, err)
	_, err = r.Join(bob, "lobby", "")
	require.NoError(t, err)
	_, ok = r.GetRoom("room1")
	assert.True(t, ok, "protected room survives being emptied")

	_, err = r.Join(alice, "way-too-long-room-name", "")
	assert.ErrorIs(t, err, ErrInvalidRoomName)
	checkMirror(t, r)
}

func TestRoomRegistryRoomOrder(t *testing.T) {
	r := newTestRegistry()
	a := newLoggedIn(t, r, "a", 16)
	b := newLoggedIn(t, r, "b", 16)
	_, err := r.Join(a, "zeta", "")
	require.NoError(t, err)
	_, err = r.Join(b, "alpha", "")
	require.NoError(t, err)

	var names []string
	for _, info := range r.GetRooms() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"lobby", "room1", "room2", "zeta", "alpha"}, names)
}

func TestRoomRegistryLogin(t *testing.T) {
	r := newTestRegistry()
	newLoggedIn(t, r, "alice", 4)
	assert.True(t, r.IsOnline("alice"))

	dup := NewSession("dup", &stubConn{}, 4)
	r.Attach(dup)
	assert.ErrorIs(t, r.Login(dup, "alice"), ErrAlreadyOnline)

	detached := NewSession("detached", &stubConn{}, 4)
	assert.ErrorIs(t, r.Login(detached, "carol"), ErrNotRegistered)
}

func TestRoomRegistryConcurrentLoginSameName(t *testing.T) {
	r := newTestRegistry()
	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewSession(fmt.Sprintf("s%d", i), &stubConn{}, 4)
			r.Attach(s)
			if r.Login(s, "alice") == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRoomRegistryBroadcast(t *testing.T) {
	r := newTestRegistry()
	alice := newLoggedIn(t, r, "alice", 16)
	bob := newLoggedIn(t, r, "bob", 16)
	carol := newLoggedIn(t, r, "carol", 16)
	for _, s := range []*Session{alice, bob, carol} {
		_, err := r.Join(s, "room1", "")
		require.NoError(t, err)
	}
	outsider := newLoggedIn(t, r, "dave", 16)
	_, err := r.Join(outsider, "room2", "")
	require.NoError(t, err)
	for _, s := range []*Session{alice, bob, carol, outsider} {
		drain(s)
	}

	room, err := r.Broadcast(alice, NewChatEvent("room1", "alice", "hello").Frame())
	require.NoError(t, err)
	assert.Equal(t, "room1", room)
	assert.Empty(t, drain(alice))
	assert.Equal(t, []string{"R|alice: hello"}, payloads(drain(bob)))
	assert.Equal(t, []string{"R|alice: hello"}, payloads(drain(carol)))
	assert.Empty(t, drain(outsider))

	_, err = r.BroadcastAll(alice, OpenVideoFrame("host"))
	require.NoError(t, err)
	assert.Len(t, drain(alice), 1)
	assert.Len(t, drain(bob), 1)

	loner := newLoggedIn(t, r, "erin", 4)
	_, err = r.Broadcast(loner, Roomf("nobody hears this"))
	assert.ErrorIs(t, err, ErrNotInRoom)

	assert.Equal(t, int64(2), r.GetStats().TotalMessages)
}

func TestRoomRegistrySendToUser(t *testing.T) {
	r := newTestRegistry()
	bob := newLoggedIn(t, r, "bob", 4)

	assert.True(t, r.SendToUser("bob", PrivateInf("PM from %s: %s", "alice", "hi")))
	assert.Equal(t, []string{"P|PM from alice: hi"}, payloads(drain(bob)))
	assert.False(t, r.SendToUser("nobody", Roomf("x")))
}

func TestRoomRegistryRemoveIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	alice := newLoggedIn(t, r, "alice", 16)
	bob := newLoggedIn(t, r, "bob", 16)
	_, err := r.Join(alice, "chess", "")
	require.NoError(t, err)
	_, err = r.Join(bob, "chess", "")
	require.NoError(t, err)
	drain(alice)

	assert.True(t, r.Remove(bob))
	assert.False(t, r.Remove(bob))
	assert.True(t, bob.Closed())
	assert.True(t, bob.conn.(*stubConn).closed)
	assert.False(t, r.IsOnline("bob"))
	assert.Equal(t, []string{"R|bob disconnected."}, payloads(drain(alice)))

	assert.True(t, r.Remove(alice))
	_, ok := r.GetRoom("chess")
	assert.False(t, ok)
	assert.Zero(t, r.GetStats().ActiveSessions)
	assert.Zero(t, r.GetStats().OnlineUsers)
}

func TestRoomRegistryConcurrentRemove(t *testing.T) {
	r := newTestRegistry()
	alice := newLoggedIn(t, r, "alice", 64)
	bob := newLoggedIn(t, r, "bob", 64)
	_, err := r.Join(alice, "room1", "")
	require.NoError(t, err)
	_, err = r.Join(bob, "room1", "")
	require.NoError(t, err)
	drain(alice)

	var wg sync.WaitGroup
	removed := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			removed <- r.Remove(bob)
		}()
	}
	wg.Wait()
	close(removed)

	count := 0
	for ok := range removed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"R|bob disconnected."}, payloads(drain(alice)))
}

func TestRoomRegistryDeliveryFailureRemovesPeer(t *testing.T) {
	r := newTestRegistry()
	alice := newLoggedIn(t, r, "alice", 64)
	carol := newLoggedIn(t, r, "carol", 64)
	// bob never reads: his queue holds a single frame.
	bob := newLoggedIn(t, r, "bob", 1)
	for _, s := range []*Session{alice, carol, bob} {
		_, err := r.Join(s, "chess", "")
		require.NoError(t, err)
	}
	drain(alice)
	drain(carol)
	drain(bob)

	_, err := r.Broadcast(alice, Roomf("alice: one"))
	require.NoError(t, err)
	_, err = r.Broadcast(alice, Roomf("alice: two"))
	require.NoError(t, err)

	assert.True(t, bob.Closed())
	assert.False(t, r.IsOnline("bob"))
	assert.Equal(t, []string{"R|alice: one", "R|alice: two", "R|bob disconnected."}, payloads(drain(carol)))
	assert.Equal(t, []string{"R|bob disconnected."}, payloads(drain(alice)))
	info, ok := r.GetRoom("chess")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "carol"}, info.Members)
	checkMirror(t, r)
}

func TestRoomRegistryMirrorUnderConcurrency(t *testing.T) {
	r := newTestRegistry()
	rooms := []string{"lobby", "room1", "room2", "a", "b", "c", "d"}
	const workers = 24
	const steps = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		s := newLoggedIn(t, r, fmt.Sprintf("user%02d", w), 1024)
		wg.Add(1)
		go func(s *Session, seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < steps; i++ {
				switch rng.Intn(10) {
				case 0:
					if rng.Intn(20) == 0 {
						r.Remove(s)
						return
					}
				case 1, 2:
					_, _ = r.Broadcast(s, Roomf("%s: %d", s.username, i))
				default:
					_, _ = r.Join(s, rooms[rng.Intn(len(rooms))], "")
				}
				drain(s)
			}
		}(s, int64(w))
	}
	wg.Wait()
	checkMirror(t, r)
}
