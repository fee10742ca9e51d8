package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	mw "github.com/isdelr/chirper-be/internal/api/middleware"
	"github.com/isdelr/chirper-be/internal/auth"
	"github.com/isdelr/chirper-be/internal/config"
	"github.com/isdelr/chirper-be/internal/database"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/metrics"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/services"
	"github.com/isdelr/chirper-be/internal/store/sqlstore"
	"github.com/isdelr/chirper-be/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.New("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, "sqlite"))
	st := sqlstore.New(db)
	t.Cleanup(func() { st.Close() })

	storage, err := media.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	library := media.NewLibrary(storage, 1<<20)

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	m := metrics.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	events := services.NewEventService(st, hub, m)

	return NewRouter(Dependencies{
		Config:      &config.Config{CORSOrigins: []string{"*"}},
		Store:       st,
		Tokens:      tokens,
		Users:       services.NewUserService(st, library, tokens, events, bcrypt.MinCost),
		Tweets:      services.NewTweetService(st, library, events),
		Events:      events,
		Media:       library,
		Hub:         hub,
		Metrics:     m,
		AuthLimiter: mw.NewRateLimiter(1000, 1000),
	})
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

// signup registers and logs in, returning the user ID and token.
func signup(t *testing.T, h http.Handler, username string) (string, string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": username, "email": username + "@x.com", "username": username, "password": "secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg map[string]string
	decode(t, rec, &reg)
	assert.Equal(t, "User registered successfully", reg["result"])

	rec = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": username + "@x.com", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Result services.LoginResult `json:"result"`
	}
	decode(t, rec, &login)
	require.NotEmpty(t, login.Result.Token)
	return login.Result.User.ID, login.Result.Token
}

type tweetEnvelope struct {
	Message string           `json:"message"`
	Tweet   models.TweetView `json:"tweet"`
	Reply   models.TweetView `json:"reply"`
}

func TestRouter_TweetScenario(t *testing.T) {
	h := newTestRouter(t)
	_, aliceToken := signup(t, h, "alice")
	bobID, bobToken := signup(t, h, "bob")

	rec := do(t, h, http.MethodPost, "/api/tweet", aliceToken, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created tweetEnvelope
	decode(t, rec, &created)

	rec = do(t, h, http.MethodGet, "/api/tweet/"+created.Tweet.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	raw := rec.Body.String()
	assert.NotContains(t, raw, "password")
	assert.NotContains(t, raw, "@x.com")
	var got tweetEnvelope
	decode(t, rec, &got)
	assert.Equal(t, "Tweet displayed successfully", got.Message)
	assert.Equal(t, "hello", got.Tweet.Content)
	assert.Empty(t, got.Tweet.Likes)
	assert.Equal(t, "alice", got.Tweet.TweetedBy.Username)

	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/retweet", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/retweet", bobToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You have already retweeted this tweet", errorOf(t, rec))

	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/like", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var liked tweetEnvelope
	decode(t, rec, &liked)
	assert.Equal(t, "Tweet liked successfully", liked.Message)
	require.Len(t, liked.Tweet.Likes, 1)
	assert.Equal(t, bobID, liked.Tweet.Likes[0].ID)

	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/like", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unliked tweetEnvelope
	decode(t, rec, &unliked)
	assert.Equal(t, "Tweet unliked successfully", unliked.Message)
	assert.Empty(t, unliked.Tweet.Likes)

	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/like", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/dislike", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/dislike", bobToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tweet/"+created.Tweet.ID+"/reply", bobToken, map[string]string{"content": "nice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var replied tweetEnvelope
	decode(t, rec, &replied)
	assert.Equal(t, "nice", replied.Reply.Content)

	rec = do(t, h, http.MethodGet, "/api/tweet/"+created.Tweet.ID, bobToken, nil)
	decode(t, rec, &got)
	require.Len(t, got.Tweet.Replies, 1)
	assert.Equal(t, "bob", got.Tweet.Replies[0].TweetedBy.Username)

	rec = do(t, h, http.MethodDelete, "/api/tweet/"+created.Tweet.ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/tweet/"+created.Tweet.ID, bobToken, nil).Code)

	rec = do(t, h, http.MethodDelete, "/api/tweet/"+created.Tweet.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/tweet/"+created.Tweet.ID, aliceToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/tweet/"+replied.Reply.ID, aliceToken, nil).Code)
}

func TestRouter_Auth(t *testing.T) {
	h := newTestRouter(t)
	aliceID, token := signup(t, h, "alice")

	rec := do(t, h, http.MethodGet, "/api/tweet/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized: no token provided", errorOf(t, rec))

	rec = do(t, h, http.MethodGet, "/api/tweet/", "forged", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid token", errorOf(t, rec))

	rec = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", errorOf(t, rec))

	rec = do(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "A", "email": "alice@x.com", "username": "other", "password": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", errorOf(t, rec))

	rec = do(t, h, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	decode(t, rec, &me)
	assert.Equal(t, aliceID, me.ID)

	t.Run("login cookie is accepted", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@x.com", "password": "secret"})
		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(cookies[0])
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		assert.Equal(t, http.StatusOK, res.Code)
	})
}

func TestRouter_Users(t *testing.T) {
	h := newTestRouter(t)
	aliceID, aliceToken := signup(t, h, "alice")
	bobID, bobToken := signup(t, h, "bob")

	rec := do(t, h, http.MethodGet, "/api/user/"+aliceID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/user/missing", "", nil).Code)

	rec = do(t, h, http.MethodPut, "/api/user/"+aliceID, bobToken, map[string]string{"location": "Oslo"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/user/"+aliceID, aliceToken, map[string]string{"location": "Oslo"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated struct {
		User models.User `json:"user"`
	}
	decode(t, rec, &updated)
	assert.Equal(t, "Oslo", updated.User.Location)

	rec = do(t, h, http.MethodPost, "/api/user/"+bobID+"/follow", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var followed struct {
		Message string      `json:"message"`
		Target  models.User `json:"userToFollow"`
	}
	decode(t, rec, &followed)
	assert.Equal(t, "User followed successfully", followed.Message)
	assert.Equal(t, []string{aliceID}, followed.Target.Followers)

	rec = do(t, h, http.MethodPost, "/api/user/"+aliceID+"/follow", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You cannot follow yourself", errorOf(t, rec))

	rec = do(t, h, http.MethodGet, "/api/user/"+bobID+"/followers", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var followers []models.UserSummary
	decode(t, rec, &followers)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].Username)

	rec = do(t, h, http.MethodPost, "/api/user/"+bobID+"/unfollow", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/user/"+bobID+"/unfollow", aliceToken, nil)
	assert.Equal(t, "You are not following this user", errorOf(t, rec))
}

func TestRouter_Pagination(t *testing.T) {
	h := newTestRouter(t)
	aliceID, token := signup(t, h, "alice")
	for _, content := range []string{"one", "two", "three"} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/tweet", token, map[string]string{"content": content}).Code)
	}

	rec := do(t, h, http.MethodGet, "/api/tweet/?limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `</api/tweet/?limit=2&offset=2>; rel="next"`, rec.Header().Get("Link"))
	var page []models.TweetView
	decode(t, rec, &page)
	require.Len(t, page, 2)
	assert.Equal(t, "three", page[0].Content)

	rec = do(t, h, http.MethodGet, "/api/tweet/?limit=2&offset=2", token, nil)
	assert.Empty(t, rec.Header().Get("Link"))
	decode(t, rec, &page)
	require.Len(t, page, 1)
	assert.Equal(t, "one", page[0].Content)

	rec = do(t, h, http.MethodGet, "/api/user/"+aliceID+"/tweets", token, nil)
	decode(t, rec, &page)
	assert.Len(t, page, 3)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/user/missing/tweets", token, nil).Code)
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if field != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestRouter_Uploads(t *testing.T) {
	h := newTestRouter(t)
	aliceID, token := signup(t, h, "alice")

	upload := func(field, filename, contentType string, data []byte) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, field, filename, contentType, data, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/user/"+aliceID+"/uploadProfilePic", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", errorOf(t, rec))

	rec = upload("profilePicture", "a.gif", "image/gif", pngBytes)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only .jpg, .jpeg, .png files are allowed!", errorOf(t, rec))

	rec = upload("profilePicture", "a.png", "image/png", pngBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var uploaded map[string]string
	decode(t, rec, &uploaded)
	path := uploaded["imagePath"]
	require.True(t, strings.HasPrefix(path, media.PathPrefix))

	rec = do(t, h, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, media.PathPrefix+"missing.png", "", nil).Code)

	t.Run("tweet with image", func(t *testing.T) {
		body, ct := multipartBody(t, "image", "p.png", "image/png", pngBytes, map[string]string{"content": "look"})
		req := httptest.NewRequest(http.MethodPost, "/api/tweet", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var created tweetEnvelope
		decode(t, rec, &created)
		assert.Equal(t, "look", created.Tweet.Content)
		assert.True(t, strings.HasPrefix(created.Tweet.Image, media.PathPrefix+media.TweetImagePrefix))
	})
}

func TestRouter_Ops(t *testing.T) {
	h := newTestRouter(t)
	_, token := signup(t, h, "alice")

	rec := do(t, h, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	decode(t, rec, &health)
	assert.Equal(t, "ok", health["status"])

	rec = do(t, h, http.MethodGet, "/api/events?limit=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []models.Event
	decode(t, rec, &events)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventUserRegistered, events[0].Type)

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chirper_http_requests_total{method="POST",route="/api/auth/register",status="201"} 1`)

	rec = do(t, h, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_LiveFeed(t *testing.T) {
	h := newTestRouter(t)
	_, token := signup(t, h, "alice")

	srv := httptest.NewServer(h)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/feed/ws", header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.NoError(t, conn.WriteJSON(websocket.Message{Action: "ping"}))
	var msg websocket.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.ActionPong, msg.Action)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/tweet", token, map[string]string{"content": "live"}).Code)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.EventTweetCreated, msg.Action)

	_, _, err = gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/feed/ws", nil)
	assert.Error(t, err, "unauthenticated upgrade is refused")
}
