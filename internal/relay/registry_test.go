package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSink is an in-memory Sink recording every delivered payload.
type stubSink struct {
	mu       sync.Mutex
	payloads [][]byte
	full     bool
	closed   bool
}

func (s *stubSink) TrySend(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full || s.closed {
		return false
	}
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return true
}

func (s *stubSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func (s *stubSink) last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.payloads) == 0 {
		return nil
	}
	return s.payloads[len(s.payloads)-1]
}

func testSession(connID, orderID, userID string) Session {
	return Session{
		ConnID:      connID,
		OrderID:     orderID,
		RoomID:      RoomID(orderID),
		UserID:      userID,
		Platform:    DefaultPlatform,
		MessageType: DefaultMessageType,
	}
}

// TestRegistryRegisterAndLookup verifies that a registered connection is a
// member of its room and that lookup returns the stored tuple unchanged.
func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c1", &stubSink{}, testSession("c1", "42", "u1"))

	sess, ok := reg.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "order_42", sess.RoomID)
	assert.Equal(t, "42", sess.OrderID)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, DefaultPlatform, sess.Platform)
	assert.Equal(t, DefaultMessageType, sess.MessageType)

	assert.ElementsMatch(t, []string{"c1"}, reg.Members("order_42"))
}

// TestRegistryLastJoinWins verifies the overwrite semantics of a repeated
// register: the session tuple is replaced and, when the room differs,
// membership transfers out of the old room.
func TestRegistryLastJoinWins(t *testing.T) {
	reg := NewRegistry()
	sink := &stubSink{}

	reg.Register("c1", sink, testSession("c1", "42", "u1"))
	reg.Register("c1", sink, testSession("c1", "43", "u1"))

	assert.Empty(t, reg.Members("order_42"))
	assert.ElementsMatch(t, []string{"c1"}, reg.Members("order_43"))

	sess, ok := reg.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "order_43", sess.RoomID)
}

// TestRegistryRejoinSameRoom verifies that re-registering in the same room
// keeps exactly one membership entry and overwrites the metadata.
func TestRegistryRejoinSameRoom(t *testing.T) {
	reg := NewRegistry()
	sink := &stubSink{}

	reg.Register("c1", sink, testSession("c1", "42", "u1"))
	updated := testSession("c1", "42", "u1")
	updated.Platform = "ios"
	reg.Register("c1", sink, updated)

	assert.ElementsMatch(t, []string{"c1"}, reg.Members("order_42"))
	sess, _ := reg.Lookup("c1")
	assert.Equal(t, "ios", sess.Platform)
}

// TestRegistryDeregister verifies removal of the session and membership,
// and that a duplicate deregister is a no-op rather than an error.
func TestRegistryDeregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c1", &stubSink{}, testSession("c1", "42", "u1"))

	sess, ok := reg.Deregister("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", sess.UserID)
	assert.Empty(t, reg.Members("order_42"))

	_, ok = reg.Lookup("c1")
	assert.False(t, ok)

	_, ok = reg.Deregister("c1")
	assert.False(t, ok)
}

// TestRegistryMembersUnknownRoom verifies that an unknown room yields an
// empty member set, never an error.
func TestRegistryMembersUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Members("order_missing"))
	assert.Zero(t, reg.Broadcast("order_missing", []byte("x")))
}

// TestRegistryBroadcast verifies that every current member receives the
// payload, a saturated recipient is skipped without affecting the others,
// and members of other rooms receive nothing.
func TestRegistryBroadcast(t *testing.T) {
	reg := NewRegistry()
	a := &stubSink{}
	b := &stubSink{}
	slow := &stubSink{full: true}
	other := &stubSink{}

	reg.Register("a", a, testSession("a", "42", "u1"))
	reg.Register("b", b, testSession("b", "42", "u2"))
	reg.Register("slow", slow, testSession("slow", "42", "u3"))
	reg.Register("other", other, testSession("other", "99", "u4"))

	delivered := reg.Broadcast("order_42", []byte("hello"))

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Zero(t, slow.count())
	assert.Zero(t, other.count())
	assert.Equal(t, []byte("hello"), a.last())
}

// TestRegistryCloseAll verifies that shutdown closes every sink and clears
// all membership state.
func TestRegistryCloseAll(t *testing.T) {
	reg := NewRegistry()
	a := &stubSink{}
	b := &stubSink{}
	reg.Register("a", a, testSession("a", "42", "u1"))
	reg.Register("b", b, testSession("b", "43", "u2"))

	assert.Equal(t, 2, reg.CloseAll())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Empty(t, reg.Members("order_42"))
	_, ok := reg.Lookup("a")
	assert.False(t, ok)
}

// TestRegistryConcurrentAccess hammers register/deregister/broadcast on
// the same rooms from many goroutines. The race detector covers data
// safety; afterwards every remaining session must have a matching
// membership entry and vice versa.
func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", n)
			orderID := fmt.Sprintf("%d", n%4)
			for j := 0; j < 100; j++ {
				reg.Register(connID, &stubSink{}, testSession(connID, orderID, "u"))
				reg.Broadcast(RoomID(orderID), []byte("m"))
				if j%2 == 0 {
					reg.Deregister(connID)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		roomID := RoomID(fmt.Sprintf("%d", i))
		for _, connID := range reg.Members(roomID) {
			sess, ok := reg.Lookup(connID)
			require.True(t, ok, "member %s has no backing session", connID)
			assert.Equal(t, roomID, sess.RoomID)
		}
	}
}
