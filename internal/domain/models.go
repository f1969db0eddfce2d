package domain

import "time"

// User represents an application user. The chat core only reads identity
// fields and writes IsOnline/LastSeen at connection boundaries.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Nickname       string     `json:"nickname"`
	Avatar         *string    `json:"avatar,omitempty"`
	Bio            string     `json:"bio,omitempty"`
	HashedPassword string     `json:"-"`
	IsOnline       bool       `json:"is_online"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	BlockedUserIDs []string   `json:"blocked_user_ids,omitempty"`
	Suspended      bool       `json:"suspended"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsBlocking reports whether the user has blocked the given user id.
func (u *User) IsBlocking(userID string) bool {
	for _, id := range u.BlockedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MessageKind classifies a message payload.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// ValidKind reports whether k is one of the known message kinds.
func ValidKind(k MessageKind) bool {
	switch k {
	case KindText, KindImage, KindFile, KindSystem:
		return true
	}
	return false
}

// Reaction is a single (emoji, user) pair attached to a message. At most one
// entry per pair exists; toggle logic enforces the uniqueness.
type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// Message is the central persisted entity of the chat core.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID *string     `json:"receiver_id,omitempty"`
	RoomID     string      `json:"room_id"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind"`
	FileURL    *string     `json:"file_url,omitempty"`
	FileName   *string     `json:"file_name,omitempty"`
	ReplyToID  *string     `json:"reply_to_id,omitempty"`

	Reactions   []Reaction `json:"reactions"`
	DeliveredTo []string   `json:"delivered_to"`
	SeenBy      []string   `json:"seen_by"`

	Edited             bool     `json:"edited"`
	DeletedFor         []string `json:"deleted_for,omitempty"`
	DeletedForEveryone bool     `json:"deleted_for_everyone"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReactionCounts aggregates the per-user reaction list into {emoji: count}.
// Broadcasts and REST reads expose only this summary, never the raw list.
func (m *Message) ReactionCounts() map[string]int {
	counts := make(map[string]int, len(m.Reactions))
	for _, r := range m.Reactions {
		counts[r.Emoji]++
	}
	return counts
}

// VisibleTo reports whether the message should appear in reads for the given
// viewer. Tombstoned messages stay visible as tombstones; per-viewer deletes
// hide the message entirely for that viewer.
func (m *Message) VisibleTo(viewerID string) bool {
	for _, id := range m.DeletedFor {
		if id == viewerID {
			return false
		}
	}
	return true
}
