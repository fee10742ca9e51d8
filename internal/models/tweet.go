package models

import "time"

// Tweet is a stored content record. A reply is a Tweet referenced from its
// parent's Replies.
type Tweet struct {
	ID        string
	Content   string
	Image     string
	TweetedBy string
	ParentID  string
	Likes     []string
	RetweetBy []string
	Replies   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LikedBy reports whether userID is in the tweet's likes.
func (t Tweet) LikedBy(userID string) bool {
	return contains(t.Likes, userID)
}

// RetweetedBy reports whether userID is in the tweet's retweets.
func (t Tweet) RetweetedBy(userID string) bool {
	return contains(t.RetweetBy, userID)
}

// TweetView is a fully populated tweet as returned by the API.
type TweetView struct {
	ID        string        `json:"_id"`
	Content   string        `json:"content"`
	Image     string        `json:"image,omitempty"`
	TweetedBy UserSummary   `json:"tweetedBy"`
	Likes     []UserSummary `json:"likes"`
	RetweetBy []UserSummary `json:"retweetBy"`
	Replies   []ReplyView   `json:"replies"`
	CreatedAt time.Time     `json:"created"`
	UpdatedAt time.Time     `json:"updated"`
}

// ReplyView is a reply nested in its parent's view. Only the author is
// populated; engagement lists stay as IDs.
type ReplyView struct {
	ID        string      `json:"_id"`
	Content   string      `json:"content"`
	Image     string      `json:"image,omitempty"`
	TweetedBy UserSummary `json:"tweetedBy"`
	Likes     []string    `json:"likes"`
	RetweetBy []string    `json:"retweetBy"`
	Replies   []string    `json:"replies"`
	CreatedAt time.Time   `json:"created"`
	UpdatedAt time.Time   `json:"updated"`
}

// TweetFilter narrows a tweet listing. Zero value lists every tweet.
type TweetFilter struct {
	AuthorID string
}
