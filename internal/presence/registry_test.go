package presence_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"rtchat/internal/presence"
)

type fakeHandle struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHandle) Send(event string, data any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return true
}

func (h *fakeHandle) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestRegisterJoinsDefaultRooms(t *testing.T) {
	reg := presence.NewRegistry()
	reg.Register("alice", &fakeHandle{}, presence.Meta{Nickname: "Alice"})

	assert.True(t, reg.IsOnline("alice"))
	assert.ElementsMatch(t, []string{"alice", "global"}, reg.Rooms("alice"))
}

func TestReconnectReplacesOldConnection(t *testing.T) {
	reg := presence.NewRegistry()
	first := &fakeHandle{}
	second := &fakeHandle{}

	reg.Register("alice", first, presence.Meta{Nickname: "Alice"})
	reg.Register("alice", second, presence.Meta{Nickname: "Alice"})

	assert.Equal(t, 1, reg.OnlineCount())

	reg.SendToUsers([]string{"alice"}, "ping", nil)
	assert.Equal(t, 0, first.count())
	assert.Equal(t, 1, second.count())
}

func TestStaleDeregisterIsNoOp(t *testing.T) {
	reg := presence.NewRegistry()
	old := &fakeHandle{}
	current := &fakeHandle{}

	reg.Register("alice", old, presence.Meta{})
	reg.Register("alice", current, presence.Meta{})

	// The old connection's teardown runs after the reconnect.
	assert.False(t, reg.Deregister("alice", old))
	assert.True(t, reg.IsOnline("alice"))

	assert.True(t, reg.Deregister("alice", current))
	assert.False(t, reg.IsOnline("alice"))
}

func TestRoomMembership(t *testing.T) {
	reg := presence.NewRegistry()
	reg.Register("alice", &fakeHandle{}, presence.Meta{})
	reg.Register("bob", &fakeHandle{}, presence.Meta{})

	reg.Join("alice", "games")
	reg.Join("bob", "games")
	assert.ElementsMatch(t, []string{"alice", "bob"}, reg.UsersInRoom("games"))

	reg.Leave("bob", "games")
	assert.ElementsMatch(t, []string{"alice"}, reg.UsersInRoom("games"))

	// Personal and global rooms cannot be left.
	reg.Leave("alice", "global")
	reg.Leave("alice", "alice")
	assert.ElementsMatch(t, []string{"alice", "bob"}, reg.UsersInRoom("global"))
	assert.ElementsMatch(t, []string{"alice"}, reg.UsersInRoom("alice"))
}

func TestListOnlineSnapshot(t *testing.T) {
	reg := presence.NewRegistry()
	reg.Register("alice", &fakeHandle{}, presence.Meta{Nickname: "Alice"})
	reg.Register("bob", &fakeHandle{}, presence.Meta{Nickname: "Bob"})
	reg.Deregister("bob", nil) // wrong handle, stays online

	online := reg.ListOnline()
	assert.Len(t, online, 2)
	assert.Equal(t, "Alice", online["alice"].Nickname)
}

func TestConcurrentRegisterDeregister(t *testing.T) {
	reg := presence.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &fakeHandle{}
			reg.Register("alice", h, presence.Meta{})
			reg.Join("alice", "games")
			reg.UsersInRoom("games")
			reg.Deregister("alice", h)
		}()
	}
	wg.Wait()
}
