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

type userDoc struct {
	ID             string     `bson:"_id"`
	Username       string     `bson:"username"`
	Nickname       string     `bson:"nickname"`
	Avatar         *string    `bson:"avatar,omitempty"`
	Bio            string     `bson:"bio"`
	HashedPassword string     `bson:"hashed_password"`
	IsOnline       bool       `bson:"is_online"`
	Suspended      bool       `bson:"suspended"`
	BlockedUserIDs []string   `bson:"blocked_user_ids,omitempty"`
	LastSeen       *time.Time `bson:"last_seen,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:             d.ID,
		Username:       d.Username,
		Nickname:       d.Nickname,
		Avatar:         d.Avatar,
		Bio:            d.Bio,
		HashedPassword: d.HashedPassword,
		IsOnline:       d.IsOnline,
		Suspended:      d.Suspended,
		BlockedUserIDs: d.BlockedUserIDs,
		LastSeen:       d.LastSeen,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type UserRepo struct {
	col *mongo.Collection
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{col: db.Collection("users")}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	doc := userDoc{
		ID:             u.ID,
		Username:       u.Username,
		Nickname:       u.Nickname,
		Avatar:         u.Avatar,
		Bio:            u.Bio,
		HashedPassword: u.HashedPassword,
		IsOnline:       u.IsOnline,
		Suspended:      u.Suspended,
		BlockedUserIDs: u.BlockedUserIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return r.findAll(ctx, bson.M{"suspended": false}, opts)
}

func (r *UserRepo) ListOnline(ctx context.Context) ([]*domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_seen", Value: -1}})
	return r.findAll(ctx, bson.M{"suspended": false, "is_online": true}, opts)
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"is_online":  isOnline,
		"last_seen":  now,
		"updated_at": now,
	}}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	return nil
}

func (r *UserRepo) Block(ctx context.Context, userID, blockedID string) error {
	update := bson.M{"$addToSet": bson.M{"blocked_user_ids": blockedID}}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, update); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (r *UserRepo) Unblock(ctx context.Context, userID, blockedID string) error {
	update := bson.M{"$pull": bson.M{"blocked_user_ids": blockedID}}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, update); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepo) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.User, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]*domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toDomain())
	}
	return users, nil
}
