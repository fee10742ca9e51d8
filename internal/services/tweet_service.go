package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	msgContentRequired = "Content is required"
	msgTweetNotFound   = "Tweet not found"
)

// TweetStore is the persistence a TweetService needs: tweets plus the user
// lookups used to populate them.
type TweetStore interface {
	store.TweetStore
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// TweetServiceProvider defines the interface for tweet services.
type TweetServiceProvider interface {
	CreateTweet(ctx context.Context, actor models.User, content string, img *media.Image) (models.TweetView, error)
	GetTweet(ctx context.Context, id string) (models.TweetView, error)
	ListTweetsByUser(ctx context.Context, userID string, page models.Page) ([]models.TweetView, error)
	ListAllTweets(ctx context.Context, page models.Page) ([]models.TweetView, error)
	ToggleLike(ctx context.Context, actor models.User, id string) (models.TweetView, bool, error)
	Dislike(ctx context.Context, actor models.User, id string) (models.TweetView, error)
	Retweet(ctx context.Context, actor models.User, id string) (models.TweetView, error)
	Reply(ctx context.Context, actor models.User, parentID, content string) (models.TweetView, error)
	DeleteTweet(ctx context.Context, actor models.User, id string) error
}

// TweetService provides business logic for tweets, replies and engagement.
type TweetService struct {
	store  TweetStore
	media  *media.Library
	events EventServiceProvider
}

// NewTweetService creates a new TweetService.
func NewTweetService(store TweetStore, library *media.Library, events EventServiceProvider) *TweetService {
	return &TweetService{store: store, media: library, events: events}
}

// CreateTweet stores a new tweet owned by actor, with an optional image.
func (s *TweetService) CreateTweet(ctx context.Context, actor models.User, content string, img *media.Image) (models.TweetView, error) {
	if strings.TrimSpace(content) == "" {
		return models.TweetView{}, apperror.NewValidation(msgContentRequired, nil)
	}

	tweet := models.Tweet{Content: content, TweetedBy: actor.ID}
	if img != nil {
		path, err := s.media.Save(ctx, media.TweetImagePrefix, *img)
		if err != nil {
			return models.TweetView{}, mediaError(err)
		}
		tweet.Image = path
	}

	if err := s.store.CreateTweet(ctx, &tweet); err != nil {
		if tweet.Image != "" {
			s.removeImage(ctx, tweet.Image)
		}
		return models.TweetView{}, storeError(err, msgUserNotFound, "Failed to create tweet")
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventTweetCreated,
		ActorID: actor.ID,
		TweetID: stringPtr(tweet.ID),
		Message: fmt.Sprintf("%s posted a tweet", actor.Username),
	})
	return s.view(ctx, tweet.ID)
}

// GetTweet returns the fully populated tweet.
func (s *TweetService) GetTweet(ctx context.Context, id string) (models.TweetView, error) {
	return s.view(ctx, id)
}

// ListTweetsByUser returns a page of the user's tweets, newest first.
func (s *TweetService) ListTweetsByUser(ctx context.Context, userID string, page models.Page) ([]models.TweetView, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, storeError(err, msgUserNotFound, "Failed to get user")
	}
	return s.list(ctx, models.TweetFilter{AuthorID: userID}, page)
}

// ListAllTweets returns a page of every tweet, newest first.
func (s *TweetService) ListAllTweets(ctx context.Context, page models.Page) ([]models.TweetView, error) {
	return s.list(ctx, models.TweetFilter{}, page)
}

func (s *TweetService) list(ctx context.Context, filter models.TweetFilter, page models.Page) ([]models.TweetView, error) {
	tweets, err := s.store.ListTweets(ctx, filter, page.Normalize())
	if err != nil {
		return nil, apperror.NewInternal("Failed to list tweets", err)
	}
	return s.populate(ctx, tweets)
}

// ToggleLike adds actor to the tweet's likes, or removes them if already
// present. It reports whether the tweet is liked afterwards.
func (s *TweetService) ToggleLike(ctx context.Context, actor models.User, id string) (models.TweetView, bool, error) {
	tweet, err := s.store.GetTweet(ctx, id)
	if err != nil {
		return models.TweetView{}, false, storeError(err, msgTweetNotFound, "Failed to get tweet")
	}

	liked := !tweet.LikedBy(actor.ID)
	var changed bool
	if liked {
		changed, err = s.store.AddLike(ctx, tweet.ID, actor.ID)
	} else {
		changed, err = s.store.RemoveLike(ctx, tweet.ID, actor.ID)
	}
	if err != nil {
		return models.TweetView{}, false, storeError(err, msgTweetNotFound, "Failed to update likes")
	}

	if changed {
		eventType, verb := models.EventTweetLiked, "liked"
		if !liked {
			eventType, verb = models.EventTweetUnliked, "unliked"
		}
		s.events.Record(ctx, models.Event{
			Type:    eventType,
			ActorID: actor.ID,
			TweetID: stringPtr(tweet.ID),
			UserID:  stringPtr(tweet.TweetedBy),
			Message: fmt.Sprintf("%s %s a tweet", actor.Username, verb),
		})
	}

	view, err := s.view(ctx, tweet.ID)
	return view, liked, err
}

// Dislike removes actor from the tweet's likes. It fails if actor has not liked it.
func (s *TweetService) Dislike(ctx context.Context, actor models.User, id string) (models.TweetView, error) {
	tweet, err := s.store.GetTweet(ctx, id)
	if err != nil {
		return models.TweetView{}, storeError(err, msgTweetNotFound, "Failed to get tweet")
	}
	if !tweet.LikedBy(actor.ID) {
		return models.TweetView{}, apperror.NewBadRequest("You have not liked this tweet")
	}

	changed, err := s.store.RemoveLike(ctx, tweet.ID, actor.ID)
	if err != nil {
		return models.TweetView{}, storeError(err, msgTweetNotFound, "Failed to update likes")
	}
	if !changed {
		return models.TweetView{}, apperror.NewBadRequest("You have not liked this tweet")
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventTweetUnliked,
		ActorID: actor.ID,
		TweetID: stringPtr(tweet.ID),
		UserID:  stringPtr(tweet.TweetedBy),
		Message: fmt.Sprintf("%s unliked a tweet", actor.Username),
	})
	return s.view(ctx, tweet.ID)
}

// Retweet adds actor to the tweet's retweets. A tweet can be retweeted once per user.
func (s *TweetService) Retweet(ctx context.Context, actor models.User, id string) (models.TweetView, error) {
	tweet, err := s.store.GetTweet(ctx, id)
	if err != nil {
		return models.TweetView{}, storeError(err, msgTweetNotFound, "Failed to get tweet")
	}
	if tweet.RetweetedBy(actor.ID) {
		return models.TweetView{}, apperror.NewConflict("You have already retweeted this tweet")
	}

	changed, err := s.store.AddRetweet(ctx, tweet.ID, actor.ID)
	if err != nil {
		return models.TweetView{}, storeError(err, msgTweetNotFound, "Failed to retweet")
	}
	if !changed {
		return models.TweetView{}, apperror.NewConflict("You have already retweeted this tweet")
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventTweetRetweeted,
		ActorID: actor.ID,
		TweetID: stringPtr(tweet.ID),
		UserID:  stringPtr(tweet.TweetedBy),
		Message: fmt.Sprintf("%s retweeted a tweet", actor.Username),
	})
	return s.view(ctx, tweet.ID)
}

// Reply creates a tweet owned by actor and links it under the parent.
func (s *TweetService) Reply(ctx context.Context, actor models.User, parentID, content string) (models.TweetView, error) {
	parent, err := s.store.GetTweet(ctx, parentID)
	if err != nil {
		return models.TweetView{}, storeError(err, msgTweetNotFound, "Failed to get tweet")
	}
	if strings.TrimSpace(content) == "" {
		return models.TweetView{}, apperror.NewValidation(msgContentRequired, nil)
	}

	reply := models.Tweet{Content: content, TweetedBy: actor.ID}
	if err := s.store.CreateReply(ctx, parent.ID, &reply); err != nil {
		return models.TweetView{}, storeError(err, msgTweetNotFound, "Failed to create reply")
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventTweetReplied,
		ActorID: actor.ID,
		TweetID: stringPtr(reply.ID),
		UserID:  stringPtr(parent.TweetedBy),
		Message: fmt.Sprintf("%s replied to a tweet", actor.Username),
	})
	return s.view(ctx, reply.ID)
}

// DeleteTweet removes the actor's own tweet together with its replies.
func (s *TweetService) DeleteTweet(ctx context.Context, actor models.User, id string) error {
	tweet, err := s.store.GetTweet(ctx, id)
	if err != nil {
		return storeError(err, msgTweetNotFound, "Failed to get tweet")
	}
	if tweet.TweetedBy != actor.ID {
		return apperror.NewForbidden("You are not authorized to delete this tweet")
	}

	if err := s.store.DeleteTweet(ctx, tweet.ID); err != nil {
		return storeError(err, msgTweetNotFound, "Failed to delete tweet")
	}
	if tweet.Image != "" {
		s.removeImage(ctx, tweet.Image)
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventTweetDeleted,
		ActorID: actor.ID,
		TweetID: stringPtr(tweet.ID),
		Message: fmt.Sprintf("%s deleted a tweet", actor.Username),
	})
	return nil
}

func (s *TweetService) removeImage(ctx context.Context, path string) {
	if err := s.media.Remove(ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove image")
	}
}

func (s *TweetService) view(ctx context.Context, id string) (models.TweetView, error) {
	tweet, err := s.store.GetTweet(ctx, id)
	if err != nil {
		return models.TweetView{}, storeError(err, msgTweetNotFound, "Failed to get tweet")
	}
	views, err := s.populate(ctx, []models.Tweet{tweet})
	if err != nil {
		return models.TweetView{}, err
	}
	return views[0], nil
}

// populate resolves every user and reply referenced by tweets with one batch
// lookup each and projects them through UserSummary, so no password hash or
// email can reach a view.
func (s *TweetService) populate(ctx context.Context, tweets []models.Tweet) ([]models.TweetView, error) {
	views := make([]models.TweetView, 0, len(tweets))
	if len(tweets) == 0 {
		return views, nil
	}

	var replyIDs []string
	for _, t := range tweets {
		replyIDs = append(replyIDs, t.Replies...)
	}
	replies := make(map[string]models.Tweet, len(replyIDs))
	if len(replyIDs) > 0 {
		found, err := s.store.GetTweetsByIDs(ctx, dedupe(replyIDs))
		if err != nil {
			return nil, apperror.NewInternal("Failed to load replies", err)
		}
		for _, r := range found {
			replies[r.ID] = r
		}
	}

	var userIDs []string
	for _, t := range tweets {
		userIDs = append(userIDs, t.TweetedBy)
		userIDs = append(userIDs, t.Likes...)
		userIDs = append(userIDs, t.RetweetBy...)
	}
	for _, r := range replies {
		userIDs = append(userIDs, r.TweetedBy)
	}
	users, err := s.store.GetUsersByIDs(ctx, dedupe(userIDs))
	if err != nil {
		return nil, apperror.NewInternal("Failed to load users", err)
	}
	summaries := make(map[string]models.UserSummary, len(users))
	for _, u := range users {
		summaries[u.ID] = u.Summary()
	}

	for _, t := range tweets {
		views = append(views, project(t, summaries, replies))
	}
	return views, nil
}

func project(t models.Tweet, users map[string]models.UserSummary, replies map[string]models.Tweet) models.TweetView {
	view := models.TweetView{
		ID:        t.ID,
		Content:   t.Content,
		Image:     t.Image,
		TweetedBy: author(t.TweetedBy, users),
		Likes:     summariesOf(t.Likes, users),
		RetweetBy: summariesOf(t.RetweetBy, users),
		Replies:   make([]models.ReplyView, 0, len(t.Replies)),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	for _, id := range t.Replies {
		r, ok := replies[id]
		if !ok {
			continue
		}
		view.Replies = append(view.Replies, models.ReplyView{
			ID:        r.ID,
			Content:   r.Content,
			Image:     r.Image,
			TweetedBy: author(r.TweetedBy, users),
			Likes:     idsOf(r.Likes),
			RetweetBy: idsOf(r.RetweetBy),
			Replies:   idsOf(r.Replies),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return view
}

// author falls back to a bare ID when the account no longer resolves.
func author(id string, users map[string]models.UserSummary) models.UserSummary {
	if u, ok := users[id]; ok {
		return u
	}
	return models.UserSummary{ID: id}
}

func summariesOf(ids []string, users map[string]models.UserSummary) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

func idsOf(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
