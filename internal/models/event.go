package models

import "time"

// Event types recorded for every successful mutation.
const (
	EventUserRegistered  = "user.registered"
	EventUserUpdated     = "user.updated"
	EventUserPicture     = "user.picture"
	EventUserFollowed    = "user.followed"
	EventUserUnfollowed  = "user.unfollowed"
	EventTweetCreated    = "tweet.created"
	EventTweetLiked      = "tweet.liked"
	EventTweetUnliked    = "tweet.unliked"
	EventTweetRetweeted  = "tweet.retweeted"
	EventTweetReplied    = "tweet.replied"
	EventTweetDeleted    = "tweet.deleted"
	EventSystemReconcile = "system.reconcile"
)

// Event represents a loggable action in the system.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actorId,omitempty"`
	TweetID   *string   `json:"tweetId,omitempty"`
	UserID    *string   `json:"userId,omitempty"` // target user, if any
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReconcileReport counts the repairs made by a reconciliation pass.
type ReconcileReport struct {
	DanglingReplies   int `json:"danglingReplies"`
	FollowersRepaired int `json:"followersRepaired"`
	FollowingRepaired int `json:"followingRepaired"`
}

// Total is the number of repairs in the report.
func (r ReconcileReport) Total() int {
	return r.DanglingReplies + r.FollowersRepaired + r.FollowingRepaired
}
