// Package chat implements the message lifecycle engine: the state machine
// governing create, deliver, seen, edit, react, and delete transitions, and
// the room routing that decides which connected users observe each one.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rtchat/internal/domain"
	"rtchat/internal/metrics"
	"rtchat/internal/presence"
)

// Server-to-client event names.
const (
	EventReceiveMessage   = "receiveMessage"
	EventMessageDelivered = "messageDelivered"
	EventMessageSeen      = "messageSeen"
	EventMessageEdited    = "messageEdited"
	EventMessageDeleted   = "messageDeleted"
	EventReactionUpdated  = "reactionUpdated"
	EventTyping           = "typing"
	EventOnlineUsers      = "onlineUsers"
)

const (
	maxContentRunes = 5000
	deliverTimeout  = 10 * time.Second
)

// Engine orchestrates message state transitions: it validates input, writes
// through the message store, and fans results out to the recipients the
// router resolves. A storage failure aborts the operation before any fan-out
// so clients never observe state that was not durably committed.
type Engine struct {
	messages domain.MessageRepository
	users    domain.UserRepository
	registry *presence.Registry
	router   *Router
	logger   *zap.Logger

	// locks serializes read-modify-write operations per message id so that
	// concurrent acks or reaction toggles cannot interleave.
	locks keyedMutex

	historyPageSize    int
	historyPageMaxSize int
}

func NewEngine(
	messages domain.MessageRepository,
	users domain.UserRepository,
	registry *presence.Registry,
	router *Router,
	logger *zap.Logger,
	historyPageSize, historyPageMaxSize int,
) *Engine {
	if historyPageSize <= 0 {
		historyPageSize = 50
	}
	if historyPageMaxSize <= 0 {
		historyPageMaxSize = 200
	}
	return &Engine{
		messages:           messages,
		users:              users,
		registry:           registry,
		router:             router,
		logger:             logger,
		historyPageSize:    historyPageSize,
		historyPageMaxSize: historyPageMaxSize,
	}
}

// Router exposes the engine's room router for callers that only need
// recipient resolution (e.g. typing indicators).
func (e *Engine) Router() *Router {
	return e.router
}

type CreateInput struct {
	SenderID   string
	Content    string
	RoomID     string
	Kind       domain.MessageKind
	ReceiverID string
	ReplyToID  string
	FileURL    string
	FileName   string
}

// Create persists a new message, fans out receiveMessage to the sender and
// the resolved recipients, then asynchronously records delivery for every
// recipient that is currently connected. The delivery step never blocks the
// fan-out and survives the sender disconnecting.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*MessageDTO, error) {
	kind := in.Kind
	if kind == "" {
		if in.FileURL != "" {
			kind = domain.KindFile
		} else {
			kind = domain.KindText
		}
	}
	if !domain.ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown message type %q", domain.ErrInvalidRequest, in.Kind)
	}
	content := strings.TrimSpace(in.Content)
	if kind != domain.KindSystem && content == "" && in.FileURL == "" {
		return nil, domain.ErrEmptyMessage
	}
	if len([]rune(content)) > maxContentRunes {
		return nil, fmt.Errorf("%w: content too long", domain.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:          uuid.NewString(),
		SenderID:    in.SenderID,
		RoomID:      e.router.DeriveRoomID(in.SenderID, in.RoomID, in.ReceiverID),
		Content:     content,
		Kind:        kind,
		Reactions:   []domain.Reaction{},
		DeliveredTo: []string{},
		SeenBy:      []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.ReceiverID != "" {
		msg.ReceiverID = &in.ReceiverID
	}
	if in.ReplyToID != "" {
		msg.ReplyToID = &in.ReplyToID
	}
	if in.FileURL != "" {
		msg.FileURL = &in.FileURL
	}
	if in.FileName != "" {
		msg.FileName = &in.FileName
	}

	if err := e.messages.Create(ctx, msg); err != nil {
		e.logger.Error("create message", zap.Error(err), zap.String("room", msg.RoomID))
		return nil, fmt.Errorf("create message: %w", domain.ErrStorage)
	}
	metrics.MessagesCreated.Inc()

	recipients, err := e.router.Recipients(ctx, msg.RoomID, msg.SenderID)
	if err != nil {
		// The message is durable; history will reconcile. Skip live fan-out.
		e.logger.Warn("resolve recipients", zap.Error(err), zap.String("room", msg.RoomID))
		recipients = nil
	}

	dto := e.ToDTO(ctx, msg)
	e.registry.SendToUsers(append(recipients, msg.SenderID), EventReceiveMessage, dto)

	go e.recordInitialDelivery(msg.ID, msg.SenderID, recipients)

	return dto, nil
}

// recordInitialDelivery marks the message delivered for every recipient that
// is connected right now, then notifies sender and recipients. Runs on a
// detached context: the originating connection going away must not cancel it.
func (e *Engine) recordInitialDelivery(messageID, senderID string, recipients []string) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	var delivered []string
	for _, id := range recipients {
		if !e.registry.IsOnline(id) {
			continue
		}
		if _, err := e.messages.MarkDelivered(ctx, messageID, id); err != nil {
			e.logger.Warn("mark delivered", zap.Error(err), zap.String("message_id", messageID))
			continue
		}
		delivered = append(delivered, id)
	}
	if len(delivered) == 0 {
		return
	}

	payload := deliveredPayload{MessageID: messageID, DeliveredTo: delivered}
	e.registry.SendToUsers(append(delivered, senderID), EventMessageDelivered, payload)
}

type deliveredPayload struct {
	MessageID   string   `json:"messageId"`
	DeliveredTo []string `json:"deliveredTo"`
}

type seenPayload struct {
	MessageID string   `json:"messageId"`
	SeenBy    []string `json:"seenBy"`
}

type deletedPayload struct {
	MessageID   string `json:"messageId"`
	ForEveryone bool   `json:"forEveryone"`
}

type reactionPayload struct {
	MessageID string         `json:"messageId"`
	Reactions map[string]int `json:"reactions"`
}

// TypingPayload is the server-side typing indicator frame.
type TypingPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
}

// Deliver records a delivery ack from a recipient. Idempotent; a missing
// message is a silent no-op since it may have been deleted for everyone from
// this viewer's perspective.
func (e *Engine) Deliver(ctx context.Context, messageID, userID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: messageId is required", domain.ErrInvalidRequest)
	}
	unlock := e.locks.lock(messageID)
	defer unlock()

	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", domain.ErrStorage)
	}
	if msg == nil {
		return nil
	}

	added, err := e.messages.MarkDelivered(ctx, messageID, userID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", domain.ErrStorage)
	}
	if msg.DeletedForEveryone {
		// Accepted idempotently, never re-broadcast after the tombstone.
		return nil
	}

	deliveredTo := msg.DeliveredTo
	if added {
		deliveredTo = append(deliveredTo, userID)
	}
	payload := deliveredPayload{MessageID: messageID, DeliveredTo: deliveredTo}
	e.registry.SendToUsers(uniqueWith(deliveredTo, msg.SenderID), EventMessageDelivered, payload)
	return nil
}

// See records a read ack. Delivery need not have been recorded first: a
// client reconciling from history may report seen directly.
func (e *Engine) See(ctx context.Context, messageID, userID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: messageId is required", domain.ErrInvalidRequest)
	}
	unlock := e.locks.lock(messageID)
	defer unlock()

	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", domain.ErrStorage)
	}
	if msg == nil {
		return nil
	}

	added, err := e.messages.MarkSeen(ctx, messageID, userID)
	if err != nil {
		return fmt.Errorf("mark seen: %w", domain.ErrStorage)
	}
	if msg.DeletedForEveryone {
		return nil
	}

	seenBy := msg.SeenBy
	if added {
		seenBy = append(seenBy, userID)
	}
	payload := seenPayload{MessageID: messageID, SeenBy: seenBy}
	e.registry.SendToUsers(uniqueWith(seenBy, msg.SenderID), EventMessageSeen, payload)
	return nil
}

// Edit replaces message content. Only the sender may edit; the same
// Forbidden is returned whether the message is missing or owned by someone
// else, so callers cannot probe for existence.
func (e *Engine) Edit(ctx context.Context, messageID, editorID, content string) (*MessageDTO, error) {
	content = strings.TrimSpace(content)
	if messageID == "" || content == "" {
		return nil, fmt.Errorf("%w: messageId and content are required", domain.ErrInvalidRequest)
	}
	if len([]rune(content)) > maxContentRunes {
		return nil, fmt.Errorf("%w: content too long", domain.ErrInvalidRequest)
	}
	unlock := e.locks.lock(messageID)
	defer unlock()

	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", domain.ErrStorage)
	}
	if msg == nil || msg.SenderID != editorID {
		return nil, domain.ErrForbidden
	}
	if msg.DeletedForEveryone {
		// Accepted but inert: the tombstone absorbs all later transitions.
		return e.ToDTO(ctx, msg), nil
	}

	if err := e.messages.UpdateContent(ctx, messageID, content); err != nil {
		return nil, fmt.Errorf("update content: %w", domain.ErrStorage)
	}
	msg.Content = content
	msg.Edited = true
	msg.UpdatedAt = time.Now().UTC()

	dto := e.ToDTO(ctx, msg)
	recipients, err := e.router.Recipients(ctx, msg.RoomID, editorID)
	if err != nil {
		e.logger.Warn("resolve recipients", zap.Error(err), zap.String("room", msg.RoomID))
		recipients = nil
	}
	e.registry.SendToUsers(append(recipients, editorID), EventMessageEdited, dto)
	return dto, nil
}

// Delete handles both per-viewer soft deletes and the terminal
// delete-for-everyone tombstone.
func (e *Engine) Delete(ctx context.Context, messageID, requesterID string, forEveryone bool) error {
	if messageID == "" {
		return fmt.Errorf("%w: messageId is required", domain.ErrInvalidRequest)
	}
	unlock := e.locks.lock(messageID)
	defer unlock()

	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", domain.ErrStorage)
	}

	if forEveryone {
		if msg == nil || msg.SenderID != requesterID {
			return domain.ErrForbidden
		}
		if msg.DeletedForEveryone {
			return nil
		}
		if err := e.messages.SetDeletedForEveryone(ctx, messageID); err != nil {
			return fmt.Errorf("delete for everyone: %w", domain.ErrStorage)
		}
		recipients, err := e.router.Recipients(ctx, msg.RoomID, requesterID)
		if err != nil {
			e.logger.Warn("resolve recipients", zap.Error(err), zap.String("room", msg.RoomID))
			recipients = nil
		}
		payload := deletedPayload{MessageID: messageID, ForEveryone: true}
		e.registry.SendToUsers(append(recipients, requesterID), EventMessageDeleted, payload)
		return nil
	}

	if msg == nil {
		return nil
	}
	if _, err := e.messages.MarkDeletedFor(ctx, messageID, requesterID); err != nil {
		return fmt.Errorf("delete for me: %w", domain.ErrStorage)
	}
	// A local visibility change: only the requester's own connection hears it.
	e.registry.SendToUsers([]string{requesterID}, EventMessageDeleted,
		deletedPayload{MessageID: messageID, ForEveryone: false})
	return nil
}

// ToggleReaction adds the (emoji, user) pair if absent, removes it if
// present, and broadcasts the aggregated counts to the room. Repeating the
// same call alternates the state.
func (e *Engine) ToggleReaction(ctx context.Context, messageID, userID, emoji string) error {
	if messageID == "" || emoji == "" {
		return fmt.Errorf("%w: messageId and emoji are required", domain.ErrInvalidRequest)
	}
	unlock := e.locks.lock(messageID)
	defer unlock()

	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", domain.ErrStorage)
	}
	if msg == nil || msg.DeletedForEveryone {
		return nil
	}

	added, err := e.messages.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("toggle reaction: %w", domain.ErrStorage)
	}
	if added {
		msg.Reactions = append(msg.Reactions, domain.Reaction{Emoji: emoji, UserID: userID})
	} else {
		kept := msg.Reactions[:0]
		for _, r := range msg.Reactions {
			if !(r.Emoji == emoji && r.UserID == userID) {
				kept = append(kept, r)
			}
		}
		msg.Reactions = kept
	}

	recipients, err := e.router.Recipients(ctx, msg.RoomID, userID)
	if err != nil {
		e.logger.Warn("resolve recipients", zap.Error(err), zap.String("room", msg.RoomID))
		recipients = nil
	}
	payload := reactionPayload{MessageID: messageID, Reactions: msg.ReactionCounts()}
	e.registry.SendToUsers(append(recipients, userID), EventReactionUpdated, payload)
	return nil
}

// Typing forwards a typing indicator to the receiver (DM) or the sender's
// current room, excluding the sender.
func (e *Engine) Typing(ctx context.Context, userID, displayName, roomID, receiverID string, isTyping bool) {
	payload := TypingPayload{UserID: userID, DisplayName: displayName, IsTyping: isTyping}
	if receiverID != "" {
		e.registry.SendToUsers([]string{receiverID}, EventTyping, payload)
		return
	}
	if roomID == "" {
		roomID = GlobalRoom
	}
	recipients, err := e.router.Recipients(ctx, roomID, userID)
	if err != nil {
		e.logger.Warn("resolve recipients", zap.Error(err), zap.String("room", roomID))
		return
	}
	e.registry.SendToUsers(recipients, EventTyping, payload)
}

// History returns the room's messages for a viewer in chronological order,
// applying the same visibility rules and DTO projection as the live path.
func (e *Engine) History(ctx context.Context, roomID, viewerID string, limit int, before time.Time) ([]*MessageDTO, error) {
	if roomID == "" {
		roomID = GlobalRoom
	}
	if limit <= 0 {
		limit = e.historyPageSize
	}
	if limit > e.historyPageMaxSize {
		limit = e.historyPageMaxSize
	}

	msgs, err := e.messages.ListForRoom(ctx, roomID, viewerID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", domain.ErrStorage)
	}

	// Store returns newest-first; clients want chronological order.
	dtos := make([]*MessageDTO, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		dtos = append(dtos, e.ToDTO(ctx, msgs[i]))
	}
	return dtos, nil
}

// BroadcastPresence pushes the complete online set to every connection.
// Called by the gateway after each connect and disconnect.
func (e *Engine) BroadcastPresence() {
	online := e.registry.ListOnline()
	users := make(map[string]presenceUser, len(online))
	for id, meta := range online {
		users[id] = presenceUser{Nickname: meta.Nickname, Avatar: meta.Avatar, IsOnline: true}
	}
	e.registry.Broadcast(EventOnlineUsers, presencePayload{Count: len(users), Users: users})
}

type presencePayload struct {
	Count int                     `json:"count"`
	Users map[string]presenceUser `json:"users"`
}

type presenceUser struct {
	Nickname string  `json:"displayName"`
	Avatar   *string `json:"avatarRef,omitempty"`
	IsOnline bool    `json:"isOnline"`
}

// uniqueWith returns ids plus extra with duplicates removed.
func uniqueWith(ids []string, extra string) []string {
	seen := make(map[string]struct{}, len(ids)+1)
	out := make([]string, 0, len(ids)+1)
	for _, id := range append(append([]string{}, ids...), extra) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
