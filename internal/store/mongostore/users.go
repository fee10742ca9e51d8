package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDoc struct {
	ID             primitive.ObjectID   `bson:"_id"`
	Name           string               `bson:"name"`
	Username       string               `bson:"username"`
	Email          string               `bson:"email"`
	PasswordHash   string               `bson:"password"`
	ProfilePicture string               `bson:"profilePicture"`
	Location       string               `bson:"location"`
	DOB            string               `bson:"dob"`
	Followers      []primitive.ObjectID `bson:"followers"`
	Following      []primitive.ObjectID `bson:"following"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

func (d userDoc) toModel() models.User {
	return models.User{
		ID:             d.ID.Hex(),
		Name:           d.Name,
		Username:       d.Username,
		Email:          d.Email,
		PasswordHash:   d.PasswordHash,
		ProfilePicture: d.ProfilePicture,
		Location:       d.Location,
		DOB:            d.DOB,
		Followers:      hexIDs(d.Followers),
		Following:      hexIDs(d.Following),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	ts := now()
	doc := userDoc{
		ID:             primitive.NewObjectID(),
		Name:           user.Name,
		Username:       user.Username,
		Email:          user.Email,
		PasswordHash:   user.PasswordHash,
		ProfilePicture: user.ProfilePicture,
		Location:       user.Location,
		DOB:            user.DOB,
		Followers:      []primitive.ObjectID{},
		Following:      []primitive.ObjectID{},
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to create user: %w", store.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	*user = doc.toModel()
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return models.User{}, err
	}
	return s.findUser(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findUser(ctx, bson.D{{Key: "username", Value: username}})
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", notFound(err))
	}
	return doc.toModel(), nil
}

// GetUsersByIDs keeps the input order.
func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	oids := parseIDs(ids)
	if len(oids) == 0 {
		return []models.User{}, nil
	}

	cursor, err := s.users.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	byID := make(map[primitive.ObjectID]userDoc, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	users := make([]models.User, 0, len(docs))
	for _, oid := range oids {
		if d, ok := byID[oid]; ok {
			users = append(users, d.toModel())
			delete(byID, oid)
		}
	}
	return users, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return models.User{}, err
	}

	set := bson.D{{Key: "updatedAt", Value: now()}}
	if update.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *update.Name})
	}
	if update.DOB != nil {
		set = append(set, bson.E{Key: "dob", Value: *update.DOB})
	}
	if update.Location != nil {
		set = append(set, bson.E{Key: "location", Value: *update.Location})
	}

	var doc userDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to update user: %w", notFound(err))
	}
	return doc.toModel(), nil
}

func (s *Store) SetProfilePicture(ctx context.Context, id, path string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "profilePicture", Value: path}, {Key: "updatedAt", Value: now()}}}},
	)
	if err != nil {
		return fmt.Errorf("failed to set profile picture: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to set profile picture: %w", store.ErrNotFound)
	}
	return nil
}

// AddFollow writes the follower's following list first; the followee's
// followers list is derived from it and repaired by Reconcile.
func (s *Store) AddFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	follower, err := parseID(followerID)
	if err != nil {
		return false, err
	}
	followee, err := parseID(followeeID)
	if err != nil {
		return false, err
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: follower}, {Key: "following", Value: bson.D{{Key: "$ne", Value: followee}}}},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "following", Value: followee}}}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add following: %w", err)
	}
	_, err = s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: followee}},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "followers", Value: follower}}}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add follower: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) RemoveFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	follower, err := parseID(followerID)
	if err != nil {
		return false, err
	}
	followee, err := parseID(followeeID)
	if err != nil {
		return false, err
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: follower}, {Key: "following", Value: followee}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "following", Value: followee}}}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove following: %w", err)
	}
	_, err = s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: followee}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "followers", Value: follower}}}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove follower: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) ListFollowers(ctx context.Context, id string, page models.Page) ([]models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.GetUsersByIDs(ctx, newestFirst(user.Followers, page))
}

func (s *Store) ListFollowing(ctx context.Context, id string, page models.Page) ([]models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.GetUsersByIDs(ctx, newestFirst(user.Following, page))
}

// newestFirst pages over an append-ordered list from its tail.
func newestFirst(ids []string, page models.Page) []string {
	page = page.Normalize()
	out := make([]string, 0, page.Limit)
	for i := len(ids) - 1 - page.Offset; i >= 0 && len(out) < page.Limit; i-- {
		out = append(out, ids[i])
	}
	return out
}
