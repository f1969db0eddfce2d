package chat

import (
	"context"
	"time"

	"rtchat/internal/domain"
)

// ReplyPreview is the compact projection of a replied-to message. A dangling
// reference resolves to an "Unknown" preview rather than an error.
type ReplyPreview struct {
	ID         string             `json:"id"`
	Content    string             `json:"content"`
	SenderName string             `json:"senderName"`
	Kind       domain.MessageKind `json:"type"`
}

// MessageDTO is the canonical wire projection of a message. Every broadcast
// and every REST read goes through ToDTO so the two paths can never diverge
// in shape. Reactions are exposed as aggregate counts only.
type MessageDTO struct {
	ID           string             `json:"id"`
	SenderID     string             `json:"senderId"`
	SenderName   string             `json:"senderName"`
	SenderAvatar *string            `json:"senderAvatar,omitempty"`
	RoomID       string             `json:"roomId"`
	Content      string             `json:"content"`
	Kind         domain.MessageKind `json:"type"`
	FileURL      *string            `json:"fileUrl,omitempty"`
	FileName     *string            `json:"fileName,omitempty"`
	ReplyTo      *ReplyPreview      `json:"replyTo,omitempty"`

	Reactions   map[string]int `json:"reactions"`
	DeliveredTo []string       `json:"deliveredTo"`
	SeenBy      []string       `json:"seenBy"`

	Edited             bool `json:"edited"`
	DeletedForEveryone bool `json:"deletedForEveryone"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToDTO projects a message for clients. Sender display fields are resolved
// best-effort; a tombstoned message keeps its envelope but loses content and
// file metadata.
func (e *Engine) ToDTO(ctx context.Context, m *domain.Message) *MessageDTO {
	dto := &MessageDTO{
		ID:                 m.ID,
		SenderID:           m.SenderID,
		SenderName:         "Unknown",
		RoomID:             m.RoomID,
		Content:            m.Content,
		Kind:               m.Kind,
		FileURL:            m.FileURL,
		FileName:           m.FileName,
		Reactions:          m.ReactionCounts(),
		DeliveredTo:        emptyIfNil(m.DeliveredTo),
		SeenBy:             emptyIfNil(m.SeenBy),
		Edited:             m.Edited,
		DeletedForEveryone: m.DeletedForEveryone,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}

	if sender, err := e.users.GetByID(ctx, m.SenderID); err == nil && sender != nil {
		dto.SenderName = sender.Nickname
		dto.SenderAvatar = sender.Avatar
	}

	if m.ReplyToID != nil {
		dto.ReplyTo = e.replyPreview(ctx, *m.ReplyToID)
	}

	if m.DeletedForEveryone {
		dto.Content = ""
		dto.FileURL = nil
		dto.FileName = nil
	}

	return dto
}

func (e *Engine) replyPreview(ctx context.Context, replyToID string) *ReplyPreview {
	preview := &ReplyPreview{ID: replyToID, SenderName: "Unknown"}

	ref, err := e.messages.GetByID(ctx, replyToID)
	if err != nil || ref == nil {
		return preview
	}
	preview.Kind = ref.Kind
	if !ref.DeletedForEveryone {
		preview.Content = ref.Content
	}
	if sender, err := e.users.GetByID(ctx, ref.SenderID); err == nil && sender != nil {
		preview.SenderName = sender.Nickname
	}
	return preview
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
