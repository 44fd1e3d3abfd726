package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, userID, username string) *User {
	t.Helper()
	u := &User{UserID: userID, Username: username, DisplayName: username, PublicKey: "pk-" + userID}
	require.NoError(t, s.CreateUser(u))
	return u
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)

	pic := "https://cdn.example/alice.png"
	u := &User{
		UserID:         "a1",
		Username:       "alice",
		DisplayName:    "Alice",
		PublicKey:      "pk-a1",
		ProfilePicture: &pic,
	}
	require.NoError(t, s.CreateUser(u))
	assert.NotZero(t, u.CreatedAt)

	got, err := s.GetUser("a1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "Alice", got.DisplayName)
	require.NotNil(t, got.ProfilePicture)
	assert.Equal(t, pic, *got.ProfilePicture)

	_, err = s.GetUser("nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUsernameCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "a1", "Alice")

	got, err := s.GetUserByUsername("aLiCe")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.UserID)

	// Case-insensitive collision on insert
	err = s.CreateUser(&User{UserID: "a2", Username: "ALICE"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	// ...and on rename
	seedUser(t, s, "b1", "bob")
	assert.ErrorIs(t, s.UpdateUsername("b1", "alice"), ErrUsernameTaken)
}

func TestUpdateUsernameUnknownUser(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.UpdateUsername("ghost", "casper"), ErrUserNotFound)
}

func TestUpdateIdentityKeepsPicture(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "a1", "alice")

	require.NoError(t, s.UpdateProfilePicture("a1", "pic-v1"))

	// Repeat identify without a picture must not null out the stored one.
	require.NoError(t, s.UpdateIdentity("a1", "Alice Prime", "pk-v2", nil))
	got, err := s.GetUser("a1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Prime", got.DisplayName)
	assert.Equal(t, "pk-v2", got.PublicKey)
	require.NotNil(t, got.ProfilePicture)
	assert.Equal(t, "pic-v1", *got.ProfilePicture)

	// Explicitly supplied picture does overwrite.
	newPic := "pic-v2"
	require.NoError(t, s.UpdateIdentity("a1", "Alice Prime", "pk-v2", &newPic))
	got, err = s.GetUser("a1")
	require.NoError(t, err)
	assert.Equal(t, "pic-v2", *got.ProfilePicture)
}

func TestListNamedUsers(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "a1", "alice")
	seedUser(t, s, "b1", "bob")
	// Identity that never claimed a username stays off the roster.
	require.NoError(t, s.CreateUser(&User{UserID: "anon"}))

	users, err := s.ListNamedUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
}

func TestOfflineQueue(t *testing.T) {
	s := newTestStore(t)

	msgs := []*Message{
		{MessageID: "a1-b1-3", SenderID: "a1", RecipientID: "b1", Payload: []byte(`{"ct":"three"}`), Timestamp: 3},
		{MessageID: "a1-b1-1", SenderID: "a1", RecipientID: "b1", Payload: []byte(`{"ct":"one"}`), Timestamp: 1},
		{MessageID: "c1-b1-2", SenderID: "c1", RecipientID: "b1", Payload: []byte(`{"ct":"two"}`), Timestamp: 2},
		{MessageID: "a1-x1-4", SenderID: "a1", RecipientID: "x1", Payload: []byte(`{"ct":"other"}`), Timestamp: 4},
	}
	for _, m := range msgs {
		require.NoError(t, s.InsertMessage(m))
	}

	queued, err := s.UndeliveredFor("b1")
	require.NoError(t, err)
	require.Len(t, queued, 3)
	assert.Equal(t, "a1-b1-1", queued[0].MessageID)
	assert.Equal(t, "c1-b1-2", queued[1].MessageID)
	assert.Equal(t, "a1-b1-3", queued[2].MessageID)

	ids := []string{"a1-b1-1", "c1-b1-2", "a1-b1-3"}
	require.NoError(t, s.MarkDeliveredBatch(ids))

	queued, err = s.UndeliveredFor("b1")
	require.NoError(t, err)
	assert.Empty(t, queued)

	m, err := s.GetMessage("a1-b1-1")
	require.NoError(t, err)
	assert.True(t, m.Delivered)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertMessage(&Message{MessageID: "a1-b1-1", SenderID: "a1", RecipientID: "b1", Payload: []byte(`{}`), Timestamp: 1}))

	require.NoError(t, s.MarkDelivered("a1-b1-1"))
	require.NoError(t, s.MarkDelivered("a1-b1-1"))

	m, err := s.GetMessage("a1-b1-1")
	require.NoError(t, err)
	assert.True(t, m.Delivered)

	// Unknown ids are a no-op, not an error.
	require.NoError(t, s.MarkDelivered("nope"))
}

func TestMarkReadImpliesDelivered(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertMessage(&Message{MessageID: "a1-b1-1", SenderID: "a1", RecipientID: "b1", Payload: []byte(`{}`), Timestamp: 1}))

	require.NoError(t, s.MarkRead("a1-b1-1"))

	m, err := s.GetMessage("a1-b1-1")
	require.NoError(t, err)
	assert.True(t, m.Read)
	assert.True(t, m.Delivered)
}

func TestHistoryBothDirections(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.InsertMessage(&Message{MessageID: "a1-b1-1", SenderID: "a1", RecipientID: "b1", Payload: []byte(`{"ct":"hi"}`), Timestamp: 1}))
	require.NoError(t, s.InsertMessage(&Message{MessageID: "b1-a1-2", SenderID: "b1", RecipientID: "a1", Payload: []byte(`{"ct":"yo"}`), Timestamp: 2}))
	require.NoError(t, s.InsertMessage(&Message{MessageID: "a1-c1-3", SenderID: "a1", RecipientID: "c1", Payload: []byte(`{"ct":"x"}`), Timestamp: 3}))

	history, err := s.History("a1", "b1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a1-b1-1", history[0].MessageID)
	assert.Equal(t, "b1-a1-2", history[1].MessageID)
}

func TestFriendRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "a1", "alice")
	seedUser(t, s, "b1", "bob")

	require.NoError(t, s.UpsertFriendRequest("a1", "b1"))

	fr, err := s.GetFriendRequest("a1", "b1")
	require.NoError(t, err)
	assert.Equal(t, RequestPending, fr.Status)

	require.NoError(t, s.ResolveFriendRequest("a1", "b1", RequestDeclined))
	fr, err = s.GetFriendRequest("a1", "b1")
	require.NoError(t, err)
	assert.Equal(t, RequestDeclined, fr.Status)

	// Re-request after decline resets the same row to pending.
	require.NoError(t, s.UpsertFriendRequest("a1", "b1"))
	fr, err = s.GetFriendRequest("a1", "b1")
	require.NoError(t, err)
	assert.Equal(t, RequestPending, fr.Status)

	require.NoError(t, s.ResolveFriendRequest("a1", "b1", RequestAccepted))

	// Resolving a non-pending row fails; a stale decline cannot clobber it.
	assert.ErrorIs(t, s.ResolveFriendRequest("a1", "b1", RequestDeclined), ErrRequestNotFound)
	assert.ErrorIs(t, s.ResolveFriendRequest("x", "y", RequestAccepted), ErrRequestNotFound)
}

func TestFriendshipSymmetry(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "a1", "alice")
	seedUser(t, s, "b1", "bob")

	require.NoError(t, s.CreateFriendship("a1", "b1"))
	// Idempotent: duplicate insert is a no-op.
	require.NoError(t, s.CreateFriendship("b1", "a1"))

	aFriends, err := s.ListFriendIDs("a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, aFriends)

	bFriends, err := s.ListFriendIDs("b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, bFriends)

	enriched, err := s.ListFriends("a1")
	require.NoError(t, err)
	require.Len(t, enriched, 1)
	assert.Equal(t, "bob", enriched[0].Username)
}

func TestPendingLists(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "a1", "alice")
	seedUser(t, s, "b1", "bob")
	seedUser(t, s, "c1", "carol")

	require.NoError(t, s.UpsertFriendRequest("a1", "b1"))
	require.NoError(t, s.UpsertFriendRequest("c1", "b1"))

	received, err := s.PendingReceived("b1")
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, "a1", received[0].UserID)
	assert.Equal(t, "c1", received[1].UserID)

	sent, err := s.PendingSent("a1")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "bob", sent[0].Username)

	// Accepted requests drop out of both pending views.
	require.NoError(t, s.ResolveFriendRequest("a1", "b1", RequestAccepted))
	received, err = s.PendingReceived("b1")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "c1", received[0].UserID)
}
