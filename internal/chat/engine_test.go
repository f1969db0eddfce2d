package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rtchat/internal/domain"
	"rtchat/internal/presence"
)

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListForRoom(ctx context.Context, roomID, viewerID string, limit int, before time.Time) ([]*domain.Message, error) {
	args := m.Called(ctx, roomID, viewerID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkDelivered(ctx context.Context, messageID, userID string) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) MarkSeen(ctx context.Context, messageID, userID string) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) MarkDeletedFor(ctx context.Context, messageID, userID string) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) SetDeletedForEveryone(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MockMessageRepo) UpdateContent(ctx context.Context, messageID, content string) error {
	args := m.Called(ctx, messageID, content)
	return args.Error(0)
}

func (m *MockMessageRepo) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

// recordingHandle captures frames sent to a connection; safe for the
// engine's async delivery goroutine.
type recordingHandle struct {
	mu     sync.Mutex
	frames []frame
}

type frame struct {
	event string
	data  any
}

func (h *recordingHandle) Send(event string, data any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame{event: event, data: data})
	return true
}

func (h *recordingHandle) received(event string) []frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []frame
	for _, f := range h.frames {
		if f.event == event {
			out = append(out, f)
		}
	}
	return out
}

type fixture struct {
	messages *MockMessageRepo
	users    *stubUserRepo
	registry *presence.Registry
	engine   *Engine
	alice    *recordingHandle
	bob      *recordingHandle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	messages := new(MockMessageRepo)
	users := &stubUserRepo{users: map[string]*domain.User{
		"alice": {ID: "alice", Nickname: "Alice"},
		"bob":   {ID: "bob", Nickname: "Bob"},
	}}
	registry := presence.NewRegistry()
	router := NewRouter(users, registry)
	engine := NewEngine(messages, users, registry, router, zap.NewNop(), 50, 200)

	alice := &recordingHandle{}
	bob := &recordingHandle{}
	registry.Register("alice", alice, presence.Meta{Nickname: "Alice"})
	registry.Register("bob", bob, presence.Meta{Nickname: "Bob"})

	return &fixture{messages: messages, users: users, registry: registry, engine: engine, alice: alice, bob: bob}
}

func textMessage(id, sender, room string) *domain.Message {
	now := time.Now().UTC()
	return &domain.Message{
		ID:        id,
		SenderID:  sender,
		RoomID:    room,
		Content:   "hello",
		Kind:      domain.KindText,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateFansOutToRoom(t *testing.T) {
	f := newFixture(t)

	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.SenderID == "alice" && m.RoomID == GlobalRoom && m.ID != ""
	})).Return(nil)
	f.messages.On("MarkDelivered", mock.Anything, mock.Anything, "bob").Return(true, nil).Maybe()

	dto, err := f.engine.Create(context.Background(), CreateInput{SenderID: "alice", Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", dto.Content)
	assert.Equal(t, "Alice", dto.SenderName)
	assert.Equal(t, domain.KindText, dto.Kind)

	require.Len(t, f.bob.received(EventReceiveMessage), 1)
	require.Len(t, f.alice.received(EventReceiveMessage), 1)
}

func TestCreateEmptyMessageRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), CreateInput{SenderID: "alice", Content: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateFileOnlyMessageAllowed(t *testing.T) {
	f := newFixture(t)

	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.Kind == domain.KindFile && m.FileURL != nil
	})).Return(nil)
	f.messages.On("MarkDelivered", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()

	dto, err := f.engine.Create(context.Background(), CreateInput{
		SenderID: "alice",
		FileURL:  "/api/uploads/cat.png",
		FileName: "cat.png",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.KindFile, dto.Kind)
}

func TestCreateDerivesDMRoom(t *testing.T) {
	f := newFixture(t)

	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.RoomID == DMRoomID("alice", "bob")
	})).Return(nil)
	f.messages.On("MarkDelivered", mock.Anything, mock.Anything, "bob").Return(true, nil).Maybe()

	dto, err := f.engine.Create(context.Background(), CreateInput{
		SenderID:   "alice",
		Content:    "hi bob",
		ReceiverID: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, DMRoomID("alice", "bob"), dto.RoomID)
	require.Len(t, f.bob.received(EventReceiveMessage), 1)
}

func TestDeliverBroadcastsToSenderAndAckers(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)
	f.messages.On("MarkDelivered", mock.Anything, "m1", "bob").Return(true, nil)

	require.NoError(t, f.engine.Deliver(context.Background(), "m1", "bob"))

	got := f.alice.received(EventMessageDelivered)
	require.Len(t, got, 1)
	payload := got[0].data.(deliveredPayload)
	assert.Equal(t, "m1", payload.MessageID)
	assert.Equal(t, []string{"bob"}, payload.DeliveredTo)
}

func TestSeenRepeatAckDoesNotDuplicate(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)
	msg.SeenBy = []string{"bob"}

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)
	f.messages.On("MarkSeen", mock.Anything, "m1", "bob").Return(false, nil)

	require.NoError(t, f.engine.See(context.Background(), "m1", "bob"))

	got := f.alice.received(EventMessageSeen)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"bob"}, got[0].data.(seenPayload).SeenBy)
}

func TestDeliverMissingMessageIsNoOp(t *testing.T) {
	f := newFixture(t)

	f.messages.On("GetByID", mock.Anything, "ghost").Return(nil, nil)

	require.NoError(t, f.engine.Deliver(context.Background(), "ghost", "bob"))
	f.messages.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.alice.received(EventMessageDelivered))
}

func TestSeenOnTombstonePersistsWithoutBroadcast(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)
	msg.DeletedForEveryone = true

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)
	f.messages.On("MarkSeen", mock.Anything, "m1", "bob").Return(true, nil)

	require.NoError(t, f.engine.See(context.Background(), "m1", "bob"))

	f.messages.AssertExpectations(t)
	assert.Empty(t, f.alice.received(EventMessageSeen))
	assert.Empty(t, f.bob.received(EventMessageSeen))
}

func TestEditByNonSenderForbidden(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)

	_, err := f.engine.Edit(context.Background(), "m1", "bob", "hijack")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	f.messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMissingMessageForbidden(t *testing.T) {
	f := newFixture(t)

	f.messages.On("GetByID", mock.Anything, "ghost").Return(nil, nil)

	// Same error as the wrong-sender case, so existence cannot be probed.
	_, err := f.engine.Edit(context.Background(), "ghost", "bob", "hijack")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEditBroadcastsUpdatedMessage(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)
	f.messages.On("UpdateContent", mock.Anything, "m1", "revised").Return(nil)

	dto, err := f.engine.Edit(context.Background(), "m1", "alice", "revised")
	require.NoError(t, err)
	assert.True(t, dto.Edited)
	assert.Equal(t, "revised", dto.Content)

	got := f.bob.received(EventMessageEdited)
	require.Len(t, got, 1)
	assert.Equal(t, "revised", got[0].data.(*MessageDTO).Content)
}

func TestEditTombstoneIsInert(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)
	msg.DeletedForEveryone = true

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)

	dto, err := f.engine.Edit(context.Background(), "m1", "alice", "revised")
	require.NoError(t, err)
	assert.True(t, dto.DeletedForEveryone)
	assert.Empty(t, dto.Content)
	f.messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.bob.received(EventMessageEdited))
}

func TestDeleteForEveryone(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)
	f.messages.On("SetDeletedForEveryone", mock.Anything, "m1").Return(nil)

	require.NoError(t, f.engine.Delete(context.Background(), "m1", "alice", true))

	got := f.bob.received(EventMessageDeleted)
	require.Len(t, got, 1)
	payload := got[0].data.(deletedPayload)
	assert.True(t, payload.ForEveryone)
}

func TestDeleteForEveryoneByNonSenderForbidden(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)

	err := f.engine.Delete(context.Background(), "m1", "bob", true)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	f.messages.AssertNotCalled(t, "SetDeletedForEveryone", mock.Anything, mock.Anything)
}

func TestDeleteForEveryoneIdempotent(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)
	msg.DeletedForEveryone = true

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)

	require.NoError(t, f.engine.Delete(context.Background(), "m1", "alice", true))
	f.messages.AssertNotCalled(t, "SetDeletedForEveryone", mock.Anything, mock.Anything)
	assert.Empty(t, f.bob.received(EventMessageDeleted))
}

func TestDeleteForMeNotifiesRequesterOnly(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)
	f.messages.On("MarkDeletedFor", mock.Anything, "m1", "bob").Return(true, nil)

	require.NoError(t, f.engine.Delete(context.Background(), "m1", "bob", false))

	require.Len(t, f.bob.received(EventMessageDeleted), 1)
	assert.Empty(t, f.alice.received(EventMessageDeleted))
}

func TestToggleReactionBroadcastsCounts(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)
	f.messages.On("ToggleReaction", mock.Anything, "m1", "bob", "👍").Return(true, nil)

	require.NoError(t, f.engine.ToggleReaction(context.Background(), "m1", "bob", "👍"))

	got := f.alice.received(EventReactionUpdated)
	require.Len(t, got, 1)
	payload := got[0].data.(reactionPayload)
	assert.Equal(t, map[string]int{"👍": 1}, payload.Reactions)
}

func TestToggleReactionOnTombstoneIsNoOp(t *testing.T) {
	f := newFixture(t)
	msg := textMessage("m1", "alice", GlobalRoom)
	msg.DeletedForEveryone = true

	f.messages.On("GetByID", mock.Anything, "m1").Return(msg, nil)

	require.NoError(t, f.engine.ToggleReaction(context.Background(), "m1", "bob", "👍"))
	f.messages.AssertNotCalled(t, "ToggleReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryReturnsChronologicalOrder(t *testing.T) {
	f := newFixture(t)
	newer := textMessage("m2", "alice", GlobalRoom)
	older := textMessage("m1", "alice", GlobalRoom)
	older.CreatedAt = newer.CreatedAt.Add(-time.Minute)

	f.messages.On("ListForRoom", mock.Anything, GlobalRoom, "bob", 50, time.Time{}).
		Return([]*domain.Message{newer, older}, nil)

	dtos, err := f.engine.History(context.Background(), "", "bob", 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, dtos, 2)
	assert.Equal(t, "m1", dtos[0].ID)
	assert.Equal(t, "m2", dtos[1].ID)
}

func TestHistoryClampsLimit(t *testing.T) {
	f := newFixture(t)

	f.messages.On("ListForRoom", mock.Anything, GlobalRoom, "bob", 200, time.Time{}).
		Return([]*domain.Message{}, nil)

	_, err := f.engine.History(context.Background(), GlobalRoom, "bob", 5000, time.Time{})
	require.NoError(t, err)
	f.messages.AssertExpectations(t)
}

func TestBroadcastPresence(t *testing.T) {
	f := newFixture(t)

	f.engine.BroadcastPresence()

	got := f.alice.received(EventOnlineUsers)
	require.Len(t, got, 1)
	payload := got[0].data.(presencePayload)
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, "Bob", payload.Users["bob"].Nickname)
}
