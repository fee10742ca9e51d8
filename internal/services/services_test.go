package services

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/auth"
	"github.com/isdelr/chirper-be/internal/database"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store/sqlstore"
	"github.com/isdelr/chirper-be/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

type fakeHub struct {
	mu       sync.Mutex
	all      []websocket.Message
	targeted map[string][]websocket.Message
}

func (h *fakeHub) Broadcast(msg websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all = append(h.all, msg)
}

func (h *fakeHub) BroadcastTo(userID string, msg websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.targeted == nil {
		h.targeted = make(map[string][]websocket.Message)
	}
	h.targeted[userID] = append(h.targeted[userID], msg)
}

func (h *fakeHub) actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.all))
	for _, m := range h.all {
		out = append(out, m.Action)
	}
	return out
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) RecordEvent(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[eventType]++
}

type testEnv struct {
	store   *sqlstore.Store
	storage *media.LocalStorage
	tokens  *auth.TokenManager
	hub     *fakeHub
	events  *EventService
	users   *UserService
	tweets  *TweetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, "sqlite"))
	st := sqlstore.New(db)
	t.Cleanup(func() { st.Close() })

	storage, err := media.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	library := media.NewLibrary(storage, 1<<20)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	hub := &fakeHub{}
	events := NewEventService(st, hub, &countingRecorder{})

	return &testEnv{
		store:   st,
		storage: storage,
		tokens:  tokens,
		hub:     hub,
		events:  events,
		users:   NewUserService(st, library, tokens, events, bcrypt.MinCost),
		tweets:  NewTweetService(st, library, events),
	}
}

func (e *testEnv) register(t *testing.T, username string) models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), models.RegisterInput{
		Name:     strings.ToUpper(username[:1]) + username[1:],
		Email:    username + "@x.com",
		Username: username,
		Password: "pw-" + username,
	})
	require.NoError(t, err)
	return u
}

// fresh reloads the user the way the auth middleware does on every request.
func (e *testEnv) fresh(t *testing.T, u models.User) models.User {
	t.Helper()
	got, err := e.store.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	return got
}

func assertAppError(t *testing.T, err error, want apperror.ErrorType, message string) {
	t.Helper()
	appErr, ok := apperror.From(err)
	require.True(t, ok, "expected *apperror.AppError, got %v", err)
	assert.Equal(t, want, appErr.Type)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	alice := env.register(t, "alice")
	assert.NotEmpty(t, alice.ID)
	assert.Empty(t, alice.PasswordHash)
	assert.Empty(t, alice.Followers)
	assert.Empty(t, alice.Following)

	stored, err := env.store.GetUserByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "pw-alice", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw-alice")))

	tests := []struct {
		name    string
		input   models.RegisterInput
		want    apperror.ErrorType
		message string
	}{
		{
			name:    "missing field",
			input:   models.RegisterInput{Name: "Bob", Email: "bob@x.com", Username: "bob"},
			want:    apperror.ValidationError,
			message: "One or more mandatory fields are empty.",
		},
		{
			name:    "malformed email",
			input:   models.RegisterInput{Name: "Bob", Email: "bob", Username: "bob", Password: "pw"},
			want:    apperror.ValidationError,
			message: "Invalid email address",
		},
		{
			name:    "duplicate email",
			input:   models.RegisterInput{Name: "A", Email: "alice@x.com", Username: "alice2", Password: "pw"},
			want:    apperror.ConflictError,
			message: "User already exists",
		},
		{
			name:    "duplicate username",
			input:   models.RegisterInput{Name: "A", Email: "other@x.com", Username: "alice", Password: "pw"},
			want:    apperror.ConflictError,
			message: "Username not available",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.users.Register(ctx, tt.input)
			assertAppError(t, err, tt.want, tt.message)
		})
	}

	_, err = env.store.GetUserByUsername(ctx, "alice2")
	assert.Error(t, err, "no user is created on conflict")
	assert.Contains(t, env.hub.actions(), models.EventUserRegistered)
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	result, err := env.users.Login(ctx, models.LoginInput{Email: "alice@x.com", Password: "pw-alice"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionUser{ID: alice.ID, Name: "Alice", Username: "alice", Email: "alice@x.com"}, result.User)

	id, err := env.tokens.Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, id)

	for name, input := range map[string]models.LoginInput{
		"wrong password": {Email: "alice@x.com", Password: "nope"},
		"unknown email":  {Email: "nobody@x.com", Password: "pw-alice"},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := env.users.Login(ctx, input)
			assertAppError(t, err, apperror.InvalidCredentialError, "Invalid credentials")
			assert.Empty(t, res.Token)
		})
	}

	_, err = env.users.Login(ctx, models.LoginInput{Email: "alice@x.com"})
	assertAppError(t, err, apperror.ValidationError, "")
}

func TestUserService_Profile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	_, err := env.users.GetProfile(ctx, "missing")
	assertAppError(t, err, apperror.NotFoundError, "User not found")

	location := "Lisbon"
	_, err = env.users.UpdateProfile(ctx, bob, alice.ID, models.ProfileUpdate{Location: &location})
	assertAppError(t, err, apperror.ForbiddenError, "")

	_, err = env.users.UpdateProfile(ctx, alice, alice.ID, models.ProfileUpdate{})
	assertAppError(t, err, apperror.ValidationError, "There is nothing to update")

	updated, err := env.users.UpdateProfile(ctx, alice, alice.ID, models.ProfileUpdate{Location: &location})
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", updated.Location)
	assert.Equal(t, "Alice", updated.Name, "untouched fields are kept")
	assert.Empty(t, updated.PasswordHash)
}

func TestUserService_FollowSymmetry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	target, err := env.users.Follow(ctx, env.fresh(t, alice), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, target.Followers)
	assert.Equal(t, []string{bob.ID}, env.fresh(t, alice).Following)

	_, err = env.users.Follow(ctx, env.fresh(t, alice), bob.ID)
	assertAppError(t, err, apperror.ConflictError, "You are already following this user")

	_, err = env.users.Follow(ctx, env.fresh(t, alice), alice.ID)
	assertAppError(t, err, apperror.SelfReferenceError, "")
	_, err = env.users.Unfollow(ctx, env.fresh(t, alice), alice.ID)
	assertAppError(t, err, apperror.SelfReferenceError, "")

	_, err = env.users.Follow(ctx, env.fresh(t, alice), "missing")
	assertAppError(t, err, apperror.NotFoundError, "User to follow not found")

	followers, err := env.users.ListFollowers(ctx, bob.ID, models.Page{})
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].Username)

	following, err := env.users.ListFollowing(ctx, alice.ID, models.Page{})
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, bob.ID, following[0].ID)

	env.hub.mu.Lock()
	notified := len(env.hub.targeted[bob.ID])
	env.hub.mu.Unlock()
	assert.Equal(t, 1, notified, "followee gets a notification")

	target, err = env.users.Unfollow(ctx, env.fresh(t, alice), bob.ID)
	require.NoError(t, err)
	assert.Empty(t, target.Followers)
	assert.Empty(t, env.fresh(t, alice).Following)

	_, err = env.users.Unfollow(ctx, env.fresh(t, alice), bob.ID)
	assertAppError(t, err, apperror.ConflictError, "You are not following this user")
}

func TestUserService_UploadProfilePicture(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	image := func(name, contentType string, body []byte) media.Image {
		return media.Image{Filename: name, ContentType: contentType, Size: int64(len(body)), Body: bytes.NewReader(body)}
	}

	_, err := env.users.UploadProfilePicture(ctx, bob, alice.ID, image("a.png", "image/png", pngBytes))
	assertAppError(t, err, apperror.ForbiddenError, "")

	_, err = env.users.UploadProfilePicture(ctx, alice, alice.ID, image("a.gif", "image/gif", pngBytes))
	assertAppError(t, err, apperror.UnsupportedMediaTypeError, "Only .jpg, .jpeg, .png files are allowed!")

	big := append([]byte{}, pngBytes...)
	big = append(big, make([]byte, 1<<20)...)
	_, err = env.users.UploadProfilePicture(ctx, alice, alice.ID, image("a.png", "image/png", big))
	assertAppError(t, err, apperror.PayloadTooLargeError, "")

	first, err := env.users.UploadProfilePicture(ctx, alice, alice.ID, image("a.png", "image/png", pngBytes))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, media.PathPrefix+media.ProfilePicturePrefix))
	assert.Equal(t, first, env.fresh(t, alice).ProfilePicture)

	second, err := env.users.UploadProfilePicture(ctx, alice, alice.ID, image("b.png", "image/png", pngBytes))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	exists, err := env.storage.Exists(ctx, strings.TrimPrefix(first, media.PathPrefix))
	require.NoError(t, err)
	assert.False(t, exists, "previous picture is removed")
}

func TestTweetService_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	_, err := env.tweets.CreateTweet(ctx, alice, "   ", nil)
	assertAppError(t, err, apperror.ValidationError, "Content is required")

	created, err := env.tweets.CreateTweet(ctx, alice, "hello", nil)
	require.NoError(t, err)

	got, err := env.tweets.GetTweet(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Empty(t, got.Likes)
	assert.NotNil(t, got.Likes)
	assert.Equal(t, "alice", got.TweetedBy.Username)
	assert.Equal(t, "Alice", got.TweetedBy.Name)

	_, err = env.tweets.GetTweet(ctx, "missing")
	assertAppError(t, err, apperror.NotFoundError, "Tweet not found")

	withImage, err := env.tweets.CreateTweet(ctx, alice, "pic", &media.Image{
		Filename: "p.png", ContentType: "image/png", Size: int64(len(pngBytes)), Body: bytes.NewReader(pngBytes),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(withImage.Image, media.PathPrefix+media.TweetImagePrefix))

	assert.Contains(t, env.hub.actions(), models.EventTweetCreated)
}

func TestTweetService_Listing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	for _, content := range []string{"a1", "a2"} {
		_, err := env.tweets.CreateTweet(ctx, alice, content, nil)
		require.NoError(t, err)
	}
	_, err := env.tweets.CreateTweet(ctx, bob, "b1", nil)
	require.NoError(t, err)

	all, err := env.tweets.ListAllTweets(ctx, models.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b1", all[0].Content)
	assert.Equal(t, "a1", all[2].Content)

	mine, err := env.tweets.ListTweetsByUser(ctx, alice.ID, models.Page{})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a2", mine[0].Content)

	paged, err := env.tweets.ListAllTweets(ctx, models.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "a2", paged[0].Content)

	_, err = env.tweets.ListTweetsByUser(ctx, "missing", models.Page{})
	assertAppError(t, err, apperror.NotFoundError, "User not found")
}

func TestTweetService_Likes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	tweet, err := env.tweets.CreateTweet(ctx, alice, "hello", nil)
	require.NoError(t, err)

	view, liked, err := env.tweets.ToggleLike(ctx, bob, tweet.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	require.Len(t, view.Likes, 1)
	assert.Equal(t, "bob", view.Likes[0].Username)

	view, liked, err = env.tweets.ToggleLike(ctx, bob, tweet.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Empty(t, view.Likes, "two toggles restore the original state")

	_, err = env.tweets.Dislike(ctx, bob, tweet.ID)
	assertAppError(t, err, apperror.BadRequestError, "You have not liked this tweet")

	_, _, err = env.tweets.ToggleLike(ctx, bob, tweet.ID)
	require.NoError(t, err)
	view, err = env.tweets.Dislike(ctx, bob, tweet.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Likes)

	_, _, err = env.tweets.ToggleLike(ctx, bob, "missing")
	assertAppError(t, err, apperror.NotFoundError, "")
}

func TestTweetService_RetweetOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	tweet, err := env.tweets.CreateTweet(ctx, alice, "hello", nil)
	require.NoError(t, err)

	view, err := env.tweets.Retweet(ctx, bob, tweet.ID)
	require.NoError(t, err)
	require.Len(t, view.RetweetBy, 1)
	assert.Equal(t, bob.ID, view.RetweetBy[0].ID)

	_, err = env.tweets.Retweet(ctx, bob, tweet.ID)
	assertAppError(t, err, apperror.ConflictError, "You have already retweeted this tweet")

	got, err := env.tweets.GetTweet(ctx, tweet.ID)
	require.NoError(t, err)
	assert.Len(t, got.RetweetBy, 1)
}

func TestTweetService_ReplyAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	tweet, err := env.tweets.CreateTweet(ctx, alice, "hello", nil)
	require.NoError(t, err)

	_, err = env.tweets.Reply(ctx, bob, "missing", "nice")
	assertAppError(t, err, apperror.NotFoundError, "Tweet not found")
	_, err = env.tweets.Reply(ctx, bob, tweet.ID, "")
	assertAppError(t, err, apperror.ValidationError, "Content is required")

	reply, err := env.tweets.Reply(ctx, bob, tweet.ID, "nice")
	require.NoError(t, err)
	assert.Equal(t, "nice", reply.Content)
	assert.Equal(t, bob.ID, reply.TweetedBy.ID)

	parent, err := env.tweets.GetTweet(ctx, tweet.ID)
	require.NoError(t, err)
	require.Len(t, parent.Replies, 1)
	assert.Equal(t, reply.ID, parent.Replies[0].ID)
	assert.Equal(t, "bob", parent.Replies[0].TweetedBy.Username)
	assert.NotNil(t, parent.Replies[0].Likes)

	err = env.tweets.DeleteTweet(ctx, bob, tweet.ID)
	assertAppError(t, err, apperror.ForbiddenError, "You are not authorized to delete this tweet")
	_, err = env.tweets.GetTweet(ctx, tweet.ID)
	require.NoError(t, err, "tweet survives a forbidden delete")

	require.NoError(t, env.tweets.DeleteTweet(ctx, alice, tweet.ID))
	_, err = env.tweets.GetTweet(ctx, tweet.ID)
	assertAppError(t, err, apperror.NotFoundError, "")
	_, err = env.tweets.GetTweet(ctx, reply.ID)
	assertAppError(t, err, apperror.NotFoundError, "")

	err = env.tweets.DeleteTweet(ctx, alice, tweet.ID)
	assertAppError(t, err, apperror.NotFoundError, "")
}

func TestEventService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	_, err := env.users.Follow(ctx, env.fresh(t, alice), bob.ID)
	require.NoError(t, err)

	events, err := env.events.GetRecentEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventUserFollowed, events[0].Type)
	assert.Equal(t, alice.ID, events[0].ActorID)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, bob.ID, *events[0].UserID)

	limited, err := env.events.GetRecentEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
