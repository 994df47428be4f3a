package websocket

import (
	"encoding/json"
	"testing"

	"lifeline/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: "error", Format: "text"})
	require.NoError(t, err)
	return NewHub(log)
}

func testClient(hub *Hub, username, role string) *Client {
	return NewClient(hub, nil, primitive.NewObjectID(), username, role)
}

func TestRegisterJoinsIdentityRooms(t *testing.T) {
	hub := testHub(t)
	user := testClient(hub, "alice", "user")

	hub.registerClient(user)

	assert.Equal(t, 1, hub.RoomSize(UserRoom("alice")))
	assert.Equal(t, 1, hub.RoomSize(UserIDRoom(user.UserID.Hex())))
	assert.Equal(t, 0, hub.RoomSize(AdminsRoom))
}

func TestRegisterAdminJoinsOperatorRooms(t *testing.T) {
	hub := testHub(t)
	admin := testClient(hub, "op", "admin")

	hub.registerClient(admin)

	assert.Equal(t, 1, hub.RoomSize(AdminsRoom))
	assert.Equal(t, 1, hub.RoomSize(AdminRoom(admin.UserID.Hex())))
}

func TestUserCannotJoinAnotherUsersRoom(t *testing.T) {
	hub := testHub(t)
	user := testClient(hub, "alice", "user")
	hub.registerClient(user)

	hub.HandleJoin(user, JoinSelfIdentity, "bob")
	assert.Equal(t, 0, hub.RoomSize(UserRoom("bob")))

	otherID := primitive.NewObjectID().Hex()
	hub.HandleJoin(user, JoinSelfID, otherID)
	assert.Equal(t, 0, hub.RoomSize(UserIDRoom(otherID)))

	// Joining your own room again is allowed and idempotent.
	hub.HandleJoin(user, JoinSelfIdentity, "alice")
	assert.Equal(t, 1, hub.RoomSize(UserRoom("alice")))
}

func TestAdminMayWatchAnyUser(t *testing.T) {
	hub := testHub(t)
	admin := testClient(hub, "op", "admin")
	hub.registerClient(admin)

	hub.HandleJoin(admin, JoinSelfIdentity, "alice")
	assert.Equal(t, 1, hub.RoomSize(UserRoom("alice")))

	targetID := primitive.NewObjectID().Hex()
	hub.HandleJoin(admin, JoinSelfID, targetID)
	assert.Equal(t, 1, hub.RoomSize(UserIDRoom(targetID)))
}

func TestOperatorBroadcastIsAdminOnly(t *testing.T) {
	hub := testHub(t)
	user := testClient(hub, "alice", "user")
	hub.registerClient(user)

	hub.HandleJoin(user, JoinOperatorBroadcast, "")
	assert.Equal(t, 0, hub.RoomSize(AdminsRoom))
	assert.False(t, user.rooms[AdminsRoom])
}

func TestOperatorPersonalRoomOwnership(t *testing.T) {
	hub := testHub(t)
	admin := testClient(hub, "op", "admin")
	hub.registerClient(admin)

	other := primitive.NewObjectID().Hex()
	hub.HandleJoin(admin, JoinOperatorPersonal, other)
	assert.Equal(t, 0, hub.RoomSize(AdminRoom(other)))
}

func TestPublishReachesRoomMembersOnly(t *testing.T) {
	hub := testHub(t)
	alice := testClient(hub, "alice", "user")
	bob := testClient(hub, "bob", "user")
	hub.registerClient(alice)
	hub.registerClient(bob)

	hub.Publish(UserRoom("alice"), "alert-raised", map[string]string{"id": "a1"})

	require.Len(t, alice.send, 1)
	assert.Len(t, bob.send, 0)

	var event Event
	require.NoError(t, json.Unmarshal(<-alice.send, &event))
	assert.Equal(t, "alert-raised", event.Event)
	assert.Equal(t, UserRoom("alice"), event.Room)
	assert.NotZero(t, event.Timestamp)
}

func TestPublishToEmptyRoomIsNoop(t *testing.T) {
	hub := testHub(t)
	hub.Publish(UserRoom("nobody"), "alert-raised", nil)
	assert.Equal(t, 0, hub.RoomSize(UserRoom("nobody")))
}

func TestUnregisterDrainsRooms(t *testing.T) {
	hub := testHub(t)
	user := testClient(hub, "alice", "user")
	hub.registerClient(user)
	require.Equal(t, 1, hub.RoomSize(UserRoom("alice")))

	hub.unregisterClient(user)

	assert.Equal(t, 0, hub.RoomSize(UserRoom("alice")))
	assert.Equal(t, 0, hub.RoomSize(UserIDRoom(user.UserID.Hex())))

	_, open := <-user.send
	assert.False(t, open)
}
