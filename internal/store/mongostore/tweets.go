package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type tweetDoc struct {
	ID        primitive.ObjectID   `bson:"_id"`
	Content   string               `bson:"content"`
	Image     string               `bson:"image,omitempty"`
	TweetedBy primitive.ObjectID   `bson:"tweetedBy"`
	ParentID  *primitive.ObjectID  `bson:"parentId,omitempty"`
	Likes     []primitive.ObjectID `bson:"likes"`
	RetweetBy []primitive.ObjectID `bson:"retweetBy"`
	Replies   []primitive.ObjectID `bson:"replies"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

func (d tweetDoc) toModel() models.Tweet {
	t := models.Tweet{
		ID:        d.ID.Hex(),
		Content:   d.Content,
		Image:     d.Image,
		TweetedBy: d.TweetedBy.Hex(),
		Likes:     hexIDs(d.Likes),
		RetweetBy: hexIDs(d.RetweetBy),
		Replies:   hexIDs(d.Replies),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.ParentID != nil {
		t.ParentID = d.ParentID.Hex()
	}
	return t
}

func newTweetDoc(tweet *models.Tweet) (tweetDoc, error) {
	author, err := parseID(tweet.TweetedBy)
	if err != nil {
		return tweetDoc{}, fmt.Errorf("invalid author: %w", err)
	}
	ts := now()
	return tweetDoc{
		ID:        primitive.NewObjectID(),
		Content:   tweet.Content,
		Image:     tweet.Image,
		TweetedBy: author,
		Likes:     []primitive.ObjectID{},
		RetweetBy: []primitive.ObjectID{},
		Replies:   []primitive.ObjectID{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

func (s *Store) CreateTweet(ctx context.Context, tweet *models.Tweet) error {
	doc, err := newTweetDoc(tweet)
	if err != nil {
		return err
	}
	if _, err := s.tweets.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert tweet: %w", err)
	}
	*tweet = doc.toModel()
	return nil
}

// CreateReply inserts the reply and then links it from the parent. If the
// parent disappears in between, the reply is removed again.
func (s *Store) CreateReply(ctx context.Context, parentID string, reply *models.Tweet) error {
	parent, err := parseID(parentID)
	if err != nil {
		return err
	}
	if n, err := s.tweets.CountDocuments(ctx, bson.D{{Key: "_id", Value: parent}}); err != nil {
		return fmt.Errorf("failed to check parent tweet: %w", err)
	} else if n == 0 {
		return fmt.Errorf("failed to append reply: %w", store.ErrNotFound)
	}

	doc, err := newTweetDoc(reply)
	if err != nil {
		return err
	}
	doc.ParentID = &parent
	if _, err := s.tweets.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert reply: %w", err)
	}

	res, err := s.tweets.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: parent}},
		bson.D{
			{Key: "$addToSet", Value: bson.D{{Key: "replies", Value: doc.ID}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now()}}},
		},
	)
	if err == nil && res.MatchedCount == 0 {
		err = store.ErrNotFound
	}
	if err != nil {
		_, _ = s.tweets.DeleteOne(ctx, bson.D{{Key: "_id", Value: doc.ID}})
		return fmt.Errorf("failed to append reply: %w", err)
	}

	*reply = doc.toModel()
	return nil
}

func (s *Store) GetTweet(ctx context.Context, id string) (models.Tweet, error) {
	oid, err := parseID(id)
	if err != nil {
		return models.Tweet{}, err
	}
	var doc tweetDoc
	if err := s.tweets.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		return models.Tweet{}, fmt.Errorf("failed to get tweet: %w", notFound(err))
	}
	return doc.toModel(), nil
}

func (s *Store) GetTweetsByIDs(ctx context.Context, ids []string) ([]models.Tweet, error) {
	oids := parseIDs(ids)
	if len(oids) == 0 {
		return []models.Tweet{}, nil
	}

	cursor, err := s.tweets.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
	if err != nil {
		return nil, fmt.Errorf("failed to get tweets: %w", err)
	}
	var docs []tweetDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tweets: %w", err)
	}

	byID := make(map[primitive.ObjectID]tweetDoc, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	tweets := make([]models.Tweet, 0, len(docs))
	for _, oid := range oids {
		if d, ok := byID[oid]; ok {
			tweets = append(tweets, d.toModel())
			delete(byID, oid)
		}
	}
	return tweets, nil
}

func (s *Store) ListTweets(ctx context.Context, filter models.TweetFilter, page models.Page) ([]models.Tweet, error) {
	page = page.Normalize()
	query := bson.D{}
	if filter.AuthorID != "" {
		author, err := parseID(filter.AuthorID)
		if err != nil {
			return []models.Tweet{}, nil
		}
		query = append(query, bson.E{Key: "tweetedBy", Value: author})
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
	cursor, err := s.tweets.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tweets: %w", err)
	}
	var docs []tweetDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tweets: %w", err)
	}

	tweets := make([]models.Tweet, 0, len(docs))
	for _, d := range docs {
		tweets = append(tweets, d.toModel())
	}
	return tweets, nil
}

func (s *Store) AddLike(ctx context.Context, tweetID, userID string) (bool, error) {
	return s.addMember(ctx, "likes", tweetID, userID)
}

func (s *Store) RemoveLike(ctx context.Context, tweetID, userID string) (bool, error) {
	return s.removeMember(ctx, "likes", tweetID, userID)
}

func (s *Store) AddRetweet(ctx context.Context, tweetID, userID string) (bool, error) {
	return s.addMember(ctx, "retweetBy", tweetID, userID)
}

// addMember adds userID to a tweet list only if it is absent, so two concurrent
// calls cannot both report a change.
func (s *Store) addMember(ctx context.Context, field, tweetID, userID string) (bool, error) {
	tid, err := parseID(tweetID)
	if err != nil {
		return false, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return false, err
	}

	res, err := s.tweets.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: tid}, {Key: field, Value: bson.D{{Key: "$ne", Value: uid}}}},
		bson.D{
			{Key: "$addToSet", Value: bson.D{{Key: field, Value: uid}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now()}}},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", field, err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, s.tweetExists(ctx, tid)
}

func (s *Store) removeMember(ctx context.Context, field, tweetID, userID string) (bool, error) {
	tid, err := parseID(tweetID)
	if err != nil {
		return false, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return false, err
	}

	res, err := s.tweets.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: tid}, {Key: field, Value: uid}},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: field, Value: uid}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now()}}},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", field, err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, s.tweetExists(ctx, tid)
}

func (s *Store) tweetExists(ctx context.Context, id primitive.ObjectID) error {
	n, err := s.tweets.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("failed to check tweet: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteTweet removes the tweet with every descendant reply, then pulls it
// from its parent's replies.
func (s *Store) DeleteTweet(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	var root tweetDoc
	if err := s.tweets.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&root); err != nil {
		return fmt.Errorf("failed to delete tweet: %w", notFound(err))
	}

	subtree, err := s.collectSubtree(ctx, oid)
	if err != nil {
		return err
	}
	if _, err := s.tweets.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: subtree}}}}); err != nil {
		return fmt.Errorf("failed to delete tweet: %w", err)
	}

	if root.ParentID != nil {
		_, err := s.tweets.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: *root.ParentID}},
			bson.D{
				{Key: "$pull", Value: bson.D{{Key: "replies", Value: oid}}},
				{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now()}}},
			},
		)
		if err != nil {
			return fmt.Errorf("failed to unlink reply: %w", err)
		}
	}
	return nil
}

// collectSubtree walks parentId links breadth-first from root.
func (s *Store) collectSubtree(ctx context.Context, root primitive.ObjectID) ([]primitive.ObjectID, error) {
	all := []primitive.ObjectID{root}
	frontier := []primitive.ObjectID{root}
	for len(frontier) > 0 {
		cursor, err := s.tweets.Find(ctx,
			bson.D{{Key: "parentId", Value: bson.D{{Key: "$in", Value: frontier}}}},
			options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to collect replies: %w", err)
		}
		var children []struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.All(ctx, &children); err != nil {
			return nil, fmt.Errorf("failed to decode replies: %w", err)
		}

		frontier = frontier[:0]
		for _, c := range children {
			all = append(all, c.ID)
			frontier = append(frontier, c.ID)
		}
	}
	return all, nil
}
