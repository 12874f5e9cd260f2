package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB user repository.
type MongoConfig struct {
	URI        string `yaml:"uri"`        // e.g. mongodb://localhost:27017
	Database   string `yaml:"database"`   // e.g. lumberjack
	Collection string `yaml:"collection"` // e.g. users
	Counters   string `yaml:"counters"`   // e.g. counters (for auto-increment)
}

// MongoUserRepo implements UserRepository on MongoDB backend.
type MongoUserRepo struct {
	client      *mongo.Client
	collection  *mongo.Collection
	counterColl *mongo.Collection
	ctxTimeout  time.Duration
}

// userDoc - представление User в коллекции.
type userDoc struct {
	UserID       uint64    `bson:"user_id"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password_hash"`
	Authority    string    `bson:"authority"`
	IsAdmin      bool      `bson:"is_admin"`
	CreatedAt    time.Time `bson:"created_at"`
	LastLogin    time.Time `bson:"last_login"`
}

func (d *userDoc) user() (*User, error) {
	authority, err := game.ParseIdentity(d.Authority)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", d.UserID, err)
	}
	return &User{
		ID:           d.UserID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Authority:    authority,
		CreatedAt:    d.CreatedAt,
		LastLogin:    d.LastLogin,
		IsAdmin:      d.IsAdmin,
	}, nil
}

// NewMongoUserRepo establishes connection and returns repository.
func NewMongoUserRepo(ctx context.Context, cfg MongoConfig) (*MongoUserRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "lumberjack"
	}
	if cfg.Collection == "" {
		cfg.Collection = "users"
	}
	if cfg.Counters == "" {
		cfg.Counters = "counters"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	db := client.Database(cfg.Database)
	repo := &MongoUserRepo{
		client:      client,
		collection:  db.Collection(cfg.Collection),
		counterColl: db.Collection(cfg.Counters),
		ctxTimeout:  5 * time.Second,
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoUserRepo) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_unique"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("userid_unique"),
		},
		{
			Keys:    bson.D{{Key: "authority", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("authority_unique"),
		},
	}
	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (m *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc userDoc
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.user()
}

// GetUserByUsername implements UserRepository.
func (m *MongoUserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return m.findOne(ctx, bson.M{"username": normalize(username)})
}

func (m *MongoUserRepo) GetUserByID(ctx context.Context, id uint64) (*User, error) {
	return m.findOne(ctx, bson.M{"user_id": id})
}

// CreateUser inserts a new document and returns created user.
func (m *MongoUserRepo) CreateUser(ctx context.Context, username, passwordHash string, authority game.Identity, isAdmin bool) (*User, error) {
	nextID, err := m.nextSequence(ctx, "userid")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	doc := userDoc{
		UserID:       nextID,
		Username:     normalize(username),
		PasswordHash: passwordHash,
		Authority:    authority.String(),
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		LastLogin:    now,
	}

	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	_, err = m.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	return doc.user()
}

func (m *MongoUserRepo) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"user_id": id},
		bson.M{"$set": bson.M{"last_login": at.UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// nextSequence atomically increments a counter and returns new value.
func (m *MongoUserRepo) nextSequence(ctx context.Context, name string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	res := m.counterColl.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return uint64(doc.Seq), nil
}

// Close terminates connection.
func (m *MongoUserRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
