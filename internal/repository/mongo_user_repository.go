package repository

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/storefront/internal/model"
)

const usersCollection = "users"

// mongoUser is the stored document: model.User plus its ObjectID.
type mongoUser struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	model.User `bson:",inline"`
}

func (d mongoUser) toModel() model.User {
	u := d.User
	u.ID = d.ID.Hex()
	return u
}

// MongoUserRepo is the document-database credential store.
type MongoUserRepo struct {
	coll *mongo.Collection
}

func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique email index and the reset token index.
func (r *MongoUserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "resetToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return errors.Wrap(err, "create user indexes")
}

// Create inserts u and sets its ID.
func (r *MongoUserRepo) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	doc := mongoUser{User: *u}
	doc.CreatedAt, doc.UpdatedAt = now, now
	if doc.Cart.Items == nil {
		doc.Cart.Items = []model.CartItem{}
	}
	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return errors.Wrap(err, "insert user")
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return errors.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	u.ID = oid.Hex()
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// FindByEmail fetches a user by normalized email.
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByID fetches a user by ObjectID hex. Malformed ids cannot exist.
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.User{}, ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindByResetToken fetches the user owning a reset token still valid at now.
func (r *MongoUserRepo) FindByResetToken(ctx context.Context, token string, now time.Time) (model.User, error) {
	if token == "" {
		return model.User{}, ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{
		"resetToken":           token,
		"resetTokenExpiration": bson.M{"$gt": now.UTC()},
	})
}

// SetResetToken stores a reset token and its expiry on the user.
func (r *MongoUserRepo) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrUserNotFound
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"resetToken":           token,
		"resetTokenExpiration": expiresAt.UTC(),
		"updatedAt":            time.Now().UTC(),
	}})
	if err != nil {
		return errors.Wrap(err, "set reset token")
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeResetToken replaces the password hash and removes the reset token
// with a single filtered update, so a token can be used once.
func (r *MongoUserRepo) ConsumeResetToken(ctx context.Context, id, token string, now time.Time, passwordHash string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil || token == "" {
		return ErrResetTokenInvalid
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":                  oid,
			"resetToken":           token,
			"resetTokenExpiration": bson.M{"$gt": now.UTC()},
		},
		bson.M{
			"$set":   bson.M{"password": passwordHash, "updatedAt": time.Now().UTC()},
			"$unset": bson.M{"resetToken": "", "resetTokenExpiration": ""},
		})
	if err != nil {
		return errors.Wrap(err, "consume reset token")
	}
	if res.MatchedCount == 0 {
		return ErrResetTokenInvalid
	}
	return nil
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (model.User, error) {
	var doc mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, errors.Wrap(err, "find user")
	}
	return doc.toModel(), nil
}
