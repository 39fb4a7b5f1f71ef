// Package mongostore persists chat state in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ core.Store = (*Store)(nil)

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

func (c Config) withDefaults() Config {
	if c.URI == "" {
		c.URI = "mongodb://localhost:27017"
	}
	if c.Database == "" {
		c.Database = "chat_app"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 100
	}
	return c
}

type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	rooms    *mongo.Collection
	messages *mongo.Collection
}

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		users:    db.Collection("users"),
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
	}
	if err := s.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Info().Str("module", "store.mongo").Str("database", cfg.Database).Msg("connected to MongoDB")
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := s.users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	roomIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("active_name").
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{Keys: bson.D{{Key: "is_private", Value: 1}}},
		{Keys: bson.D{{Key: "last_activity", Value: -1}}},
		{Keys: bson.D{{Key: "members", Value: 1}}},
	}
	if _, err := s.rooms.Indexes().CreateMany(ctx, roomIndexes); err != nil {
		return fmt.Errorf("failed to create room indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if _, err := s.users.InsertOne(ctx, newUserDocument(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "email") {
				return domain.Conflict("Email already registered")
			}
			return domain.Conflict("Username already exists")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": string(id)})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) UpdateUserStatus(ctx context.Context, id domain.UserID, status domain.UserStatus, at time.Time) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{"status": string(status), "last_seen": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NotFound("User not found")
	}
	return nil
}

func (s *Store) CreateRoom(ctx context.Context, r *domain.Room) error {
	if _, err := s.rooms.InsertOne(ctx, newRoomDocument(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Conflict("Room name already exists")
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var doc roomDocument
	if err := s.rooms.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NotFound("Room not found")
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	cursor, err := s.rooms.Find(ctx, bson.M{"is_active": true},
		options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []roomDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	out := make([]*domain.Room, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) updateRoom(ctx context.Context, id domain.RoomID, update bson.M) error {
	res, err := s.rooms.UpdateOne(ctx, bson.M{"_id": string(id)}, update)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NotFound("Room not found")
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, id domain.RoomID, user domain.UserID, at time.Time) error {
	return s.updateRoom(ctx, id, bson.M{
		"$addToSet": bson.M{"members": string(user)},
		"$set":      bson.M{"last_activity": at},
	})
}

func (s *Store) RemoveMember(ctx context.Context, id domain.RoomID, user domain.UserID, at time.Time) error {
	return s.updateRoom(ctx, id, bson.M{
		"$pull": bson.M{"members": string(user)},
		"$set":  bson.M{"last_activity": at},
	})
}

func (s *Store) UpdateActivity(ctx context.Context, id domain.RoomID, at time.Time) error {
	return s.updateRoom(ctx, id, bson.M{"$set": bson.M{"last_activity": at}})
}

func (s *Store) DeactivateRoom(ctx context.Context, id domain.RoomID) error {
	return s.updateRoom(ctx, id, bson.M{"$set": bson.M{"is_active": false}})
}

func (s *Store) AddMessage(ctx context.Context, m *domain.Message) error {
	if _, err := s.messages.InsertOne(ctx, newMessageDocument(m)); err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, room domain.RoomID, page, perPage int) ([]*domain.Message, error) {
	offset, ok := domain.PageOffset(page, perPage)
	if !ok || perPage < 1 {
		return []*domain.Message{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(perPage))
	cursor, err := s.messages.Find(ctx, bson.M{"room_id": string(room)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	out := make([]*domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	log.Info().Str("module", "store.mongo").Msg("disconnected from MongoDB")
	return nil
}
