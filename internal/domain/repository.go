package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
//
// Lookup methods return (nil, nil) when no row matches.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	ListOnline(ctx context.Context) ([]*User, error)
	// SetOnlineStatus flips is_online and bumps last_seen in one write.
	SetOnlineStatus(ctx context.Context, id string, isOnline bool) error
	Block(ctx context.Context, userID, blockedID string) error
	Unblock(ctx context.Context, userID, blockedID string) error
}

// MessageRepository defines persistence operations for messages.
//
// The Mark* methods are atomic add-to-set-if-absent primitives: a single
// storage statement, never a read-check-write sequence. They report whether
// the membership was newly added. GetByID returns (nil, nil) for a missing
// message.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListForRoom returns messages for a room in reverse-chronological order,
	// excluding messages the viewer has deleted for themselves. Tombstoned
	// messages are included; projection blanks their content. A zero `before`
	// means "from the latest".
	ListForRoom(ctx context.Context, roomID, viewerID string, limit int, before time.Time) ([]*Message, error)

	MarkDelivered(ctx context.Context, messageID, userID string) (bool, error)
	MarkSeen(ctx context.Context, messageID, userID string) (bool, error)
	MarkDeletedFor(ctx context.Context, messageID, userID string) (bool, error)
	SetDeletedForEveryone(ctx context.Context, messageID string) error

	// UpdateContent replaces the content, sets the edited flag and bumps
	// updated_at.
	UpdateContent(ctx context.Context, messageID, content string) error

	// ToggleReaction adds the (emoji, user) pair if absent and removes it if
	// present, reporting whether the pair is present afterwards.
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
}
