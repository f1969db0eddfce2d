package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rtchat/internal/domain"
)

type reactionDoc struct {
	Emoji  string `bson:"emoji"`
	UserID string `bson:"user_id"`
}

type messageDoc struct {
	ID         string  `bson:"_id"`
	SenderID   string  `bson:"sender_id"`
	ReceiverID *string `bson:"receiver_id,omitempty"`
	RoomID     string  `bson:"room_id"`
	Content    string  `bson:"content"`
	Kind       string  `bson:"kind"`
	FileURL    *string `bson:"file_url,omitempty"`
	FileName   *string `bson:"file_name,omitempty"`
	ReplyToID  *string `bson:"reply_to_id,omitempty"`

	Reactions   []reactionDoc `bson:"reactions,omitempty"`
	DeliveredTo []string      `bson:"delivered_to,omitempty"`
	SeenBy      []string      `bson:"seen_by,omitempty"`

	Edited             bool     `bson:"edited"`
	DeletedFor         []string `bson:"deleted_for,omitempty"`
	DeletedForEveryone bool     `bson:"deleted_for_everyone"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *messageDoc) toDomain() *domain.Message {
	m := &domain.Message{
		ID:                 d.ID,
		SenderID:           d.SenderID,
		ReceiverID:         d.ReceiverID,
		RoomID:             d.RoomID,
		Content:            d.Content,
		Kind:               domain.MessageKind(d.Kind),
		FileURL:            d.FileURL,
		FileName:           d.FileName,
		ReplyToID:          d.ReplyToID,
		DeliveredTo:        d.DeliveredTo,
		SeenBy:             d.SeenBy,
		Edited:             d.Edited,
		DeletedFor:         d.DeletedFor,
		DeletedForEveryone: d.DeletedForEveryone,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	for _, r := range d.Reactions {
		m.Reactions = append(m.Reactions, domain.Reaction{Emoji: r.Emoji, UserID: r.UserID})
	}
	return m
}

type MessageRepo struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{col: db.Collection("messages")}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	doc := messageDoc{
		ID:                 m.ID,
		SenderID:           m.SenderID,
		ReceiverID:         m.ReceiverID,
		RoomID:             m.RoomID,
		Content:            m.Content,
		Kind:               string(m.Kind),
		FileURL:            m.FileURL,
		FileName:           m.FileName,
		ReplyToID:          m.ReplyToID,
		Edited:             m.Edited,
		DeletedForEveryone: m.DeletedForEveryone,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var doc messageDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MessageRepo) ListForRoom(ctx context.Context, roomID, viewerID string, limit int, before time.Time) ([]*domain.Message, error) {
	filter := bson.M{
		"room_id":     roomID,
		"deleted_for": bson.M{"$ne": viewerID},
	}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	messages := make([]*domain.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].toDomain())
	}
	return messages, nil
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, userID string) (bool, error) {
	return r.addToSet(ctx, messageID, "delivered_to", userID)
}

func (r *MessageRepo) MarkSeen(ctx context.Context, messageID, userID string) (bool, error) {
	return r.addToSet(ctx, messageID, "seen_by", userID)
}

func (r *MessageRepo) MarkDeletedFor(ctx context.Context, messageID, userID string) (bool, error) {
	return r.addToSet(ctx, messageID, "deleted_for", userID)
}

// addToSet is the atomic add-if-absent primitive. Membership is part of the
// filter: the update matches only when the user is not yet in the set, so
// MatchedCount reports whether the membership was newly added. ModifiedCount
// would lie here, since the updated_at bump modifies the document even when
// the set add is a no-op.
func (r *MessageRepo) addToSet(ctx context.Context, messageID, field, userID string) (bool, error) {
	filter := bson.M{"_id": messageID, field: bson.M{"$ne": userID}}
	update := bson.M{
		"$push": bson.M{field: userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("add to %s: %w", field, err)
	}
	return res.MatchedCount > 0, nil
}

func (r *MessageRepo) SetDeletedForEveryone(ctx context.Context, messageID string) error {
	update := bson.M{
		"$set": bson.M{
			"deleted_for_everyone": true,
			"content":              "",
			"updated_at":           time.Now().UTC(),
		},
		"$unset": bson.M{"file_url": "", "file_name": ""},
	}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": messageID}, update); err != nil {
		return fmt.Errorf("set deleted for everyone: %w", err)
	}
	return nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, messageID, content string) error {
	update := bson.M{"$set": bson.M{
		"content":    content,
		"edited":     true,
		"updated_at": time.Now().UTC(),
	}}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": messageID}, update); err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	pair := bson.M{"emoji": emoji, "user_id": userID}
	now := time.Now().UTC()

	// Remove first: the filter matches only when the pair is present, so a
	// MatchedCount hit means the reaction existed and is now gone.
	removeFilter := bson.M{
		"_id":       messageID,
		"reactions": bson.M{"$elemMatch": pair},
	}
	remove := bson.M{
		"$pull": bson.M{"reactions": pair},
		"$set":  bson.M{"updated_at": now},
	}
	res, err := r.col.UpdateOne(ctx, removeFilter, remove)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	if res.MatchedCount > 0 {
		return false, nil
	}

	// Pair absent: add it. The $not guard keeps a concurrent duplicate out.
	addFilter := bson.M{
		"_id":       messageID,
		"reactions": bson.M{"$not": bson.M{"$elemMatch": pair}},
	}
	add := bson.M{
		"$push": bson.M{"reactions": reactionDoc{Emoji: emoji, UserID: userID}},
		"$set":  bson.M{"updated_at": now},
	}
	addRes, err := r.col.UpdateOne(ctx, addFilter, add)
	if err != nil {
		return false, fmt.Errorf("add reaction: %w", err)
	}
	return addRes.MatchedCount > 0, nil
}
