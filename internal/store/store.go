// Package store defines the persistence contract shared by the SQL and Mongo backends.
package store

import (
	"context"
	"errors"

	"github.com/isdelr/chirper-be/internal/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist or its ID is malformed.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
)

// UserStore persists accounts and the follow graph.
type UserStore interface {
	// CreateUser assigns user.ID and the timestamps.
	CreateUser(ctx context.Context, user *models.User) error
	// GetUserByID returns the user with Followers and Following filled in.
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	// GetUsersByIDs skips IDs that do not resolve. Follow lists are not filled in.
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	UpdateUserProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.User, error)
	SetProfilePicture(ctx context.Context, id, path string) error
	// AddFollow reports whether the edge was created; false means it already existed.
	AddFollow(ctx context.Context, followerID, followeeID string) (bool, error)
	// RemoveFollow reports whether the edge was removed; false means it did not exist.
	RemoveFollow(ctx context.Context, followerID, followeeID string) (bool, error)
	ListFollowers(ctx context.Context, id string, page models.Page) ([]models.User, error)
	ListFollowing(ctx context.Context, id string, page models.Page) ([]models.User, error)
}

// TweetStore persists tweets, replies and engagement sets.
type TweetStore interface {
	// CreateTweet assigns tweet.ID and the timestamps.
	CreateTweet(ctx context.Context, tweet *models.Tweet) error
	// CreateReply stores reply and appends it to the parent's replies.
	CreateReply(ctx context.Context, parentID string, reply *models.Tweet) error
	GetTweet(ctx context.Context, id string) (models.Tweet, error)
	// GetTweetsByIDs skips IDs that do not resolve and keeps the input order.
	GetTweetsByIDs(ctx context.Context, ids []string) ([]models.Tweet, error)
	// ListTweets orders by creation time, newest first.
	ListTweets(ctx context.Context, filter models.TweetFilter, page models.Page) ([]models.Tweet, error)
	AddLike(ctx context.Context, tweetID, userID string) (bool, error)
	RemoveLike(ctx context.Context, tweetID, userID string) (bool, error)
	AddRetweet(ctx context.Context, tweetID, userID string) (bool, error)
	// DeleteTweet removes the tweet and its reply subtree and unlinks it from its parent.
	DeleteTweet(ctx context.Context, id string) error
}

// EventStore persists the activity log.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	ListRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// Store is the full persistence backend.
type Store interface {
	UserStore
	TweetStore
	EventStore

	// Reconcile repairs references left inconsistent by partial multi-document writes.
	Reconcile(ctx context.Context) (models.ReconcileReport, error)
	Ping(ctx context.Context) error
	Close() error
}
