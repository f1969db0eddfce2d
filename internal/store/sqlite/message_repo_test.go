package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtchat/internal/domain"
)

func newTestDB(t *testing.T) *MessageRepo {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })

	// messages.sender_id references users(id) and foreign keys are on.
	users := NewUserRepo(db)
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, users.Create(context.Background(), &domain.User{
			ID:             id,
			Username:       id,
			Nickname:       id,
			HashedPassword: "x",
		}))
	}
	return NewMessageRepo(db)
}

func seedMessage(t *testing.T, repo *MessageRepo, roomID, senderID string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		RoomID:    roomID,
		Content:   "hello",
		Kind:      domain.KindText,
		CreatedAt: at,
		UpdatedAt: at,
	}
	require.NoError(t, repo.Create(context.Background(), m))
	return m
}

func TestGetByIDMissing(t *testing.T) {
	repo := newTestDB(t)

	m, err := repo.GetByID(context.Background(), uuid.NewString())
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	repo := newTestDB(t)
	m := seedMessage(t, repo, "global", "alice", time.Now().UTC())
	ctx := context.Background()

	added, err := repo.MarkDelivered(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.MarkDelivered(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.False(t, added)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.DeliveredTo)
}

func TestMarkSeenIndependentOfDelivered(t *testing.T) {
	repo := newTestDB(t)
	m := seedMessage(t, repo, "global", "alice", time.Now().UTC())
	ctx := context.Background()

	_, err := repo.MarkDelivered(ctx, m.ID, "bob")
	require.NoError(t, err)
	added, err := repo.MarkSeen(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.True(t, added)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.DeliveredTo)
	assert.Equal(t, []string{"bob"}, got.SeenBy)
}

func TestToggleReaction(t *testing.T) {
	repo := newTestDB(t)
	m := seedMessage(t, repo, "global", "alice", time.Now().UTC())
	ctx := context.Background()

	present, err := repo.ToggleReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.True(t, present)

	present, err = repo.ToggleReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.False(t, present)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reactions)
}

func TestToggleReactionPerEmoji(t *testing.T) {
	repo := newTestDB(t)
	m := seedMessage(t, repo, "global", "alice", time.Now().UTC())
	ctx := context.Background()

	_, err := repo.ToggleReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	_, err = repo.ToggleReaction(ctx, m.ID, "bob", "❤️")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 2)
	assert.Equal(t, map[string]int{"👍": 1, "❤️": 1}, got.ReactionCounts())
}

func TestListForRoomHidesDeletedForViewer(t *testing.T) {
	repo := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	m1 := seedMessage(t, repo, "global", "alice", base)
	m2 := seedMessage(t, repo, "global", "alice", base.Add(time.Minute))

	_, err := repo.MarkDeletedFor(ctx, m1.ID, "bob")
	require.NoError(t, err)

	forBob, err := repo.ListForRoom(ctx, "global", "bob", 50, time.Time{})
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, m2.ID, forBob[0].ID)

	forAlice, err := repo.ListForRoom(ctx, "global", "alice", 50, time.Time{})
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)
}

func TestListForRoomBeforeCursor(t *testing.T) {
	repo := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		seedMessage(t, repo, "global", "alice", base.Add(time.Duration(i)*time.Minute))
	}

	page, err := repo.ListForRoom(ctx, "global", "alice", 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Reverse-chronological: newest first.
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	older, err := repo.ListForRoom(ctx, "global", "alice", 10, page[1].CreatedAt)
	require.NoError(t, err)
	assert.Len(t, older, 3)
}

func TestSetDeletedForEveryoneBlanksContent(t *testing.T) {
	repo := newTestDB(t)
	ctx := context.Background()
	m := seedMessage(t, repo, "global", "alice", time.Now().UTC())

	require.NoError(t, repo.SetDeletedForEveryone(ctx, m.ID))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.DeletedForEveryone)
	assert.Empty(t, got.Content)
	assert.Nil(t, got.FileURL)
}

func TestUpdateContentSetsEdited(t *testing.T) {
	repo := newTestDB(t)
	ctx := context.Background()
	m := seedMessage(t, repo, "global", "alice", time.Now().UTC())

	require.NoError(t, repo.UpdateContent(ctx, m.ID, "edited text"))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Edited)
	assert.Equal(t, "edited text", got.Content)
}
