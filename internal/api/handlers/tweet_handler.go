package handlers

import (
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/chirper-be/internal/api/respond"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/services"
)

// TweetImageField is the optional multipart field carrying a tweet image.
const TweetImageField = "image"

// TweetHandler handles HTTP requests for tweets and engagement.
type TweetHandler struct {
	service   services.TweetServiceProvider
	maxUpload int64
}

// NewTweetHandler creates a new TweetHandler.
func NewTweetHandler(service services.TweetServiceProvider, maxUpload int64) *TweetHandler {
	return &TweetHandler{service: service, maxUpload: maxUpload}
}

type contentPayload struct {
	Content string `json:"content"`
}

// Create posts a tweet. It accepts a multipart form with an optional image,
// or a JSON body.
func (h *TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var content string
	var img *media.Image
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxUpload); err != nil {
			respond.Error(w, r, err)
			return
		}
		image, file, err := formImage(r, TweetImageField)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		if file != nil {
			defer file.Close()
		}
		content, img = r.FormValue("content"), image
	} else {
		var payload contentPayload
		if err := decodeJSON(r, &payload); err != nil {
			respond.Error(w, r, err)
			return
		}
		content = payload.Content
	}

	tweet, err := h.service.CreateTweet(r.Context(), actor, content, img)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]interface{}{"tweet": tweet})
}

// Get returns a single populated tweet.
func (h *TweetHandler) Get(w http.ResponseWriter, r *http.Request) {
	tweet, err := h.service.GetTweet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"message": "Tweet displayed successfully", "tweet": tweet})
}

// List returns a page of the global feed.
func (h *TweetHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	tweets, err := h.service.ListAllTweets(r.Context(), page)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	setNextLink(w, r, page, len(tweets))
	respond.JSON(w, http.StatusOK, tweets)
}

// ListByUser returns a page of {id}'s tweets.
func (h *TweetHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	tweets, err := h.service.ListTweetsByUser(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	setNextLink(w, r, page, len(tweets))
	respond.JSON(w, http.StatusOK, tweets)
}

// Like toggles the acting user's like.
func (h *TweetHandler) Like(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	tweet, liked, err := h.service.ToggleLike(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	message := "Tweet unliked successfully"
	if liked {
		message = "Tweet liked successfully"
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"message": message, "tweet": tweet})
}

// Dislike removes the acting user's like.
func (h *TweetHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	tweet, err := h.service.Dislike(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"message": "Tweet disliked successfully", "tweet": tweet})
}

// Retweet records a retweet by the acting user.
func (h *TweetHandler) Retweet(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	tweet, err := h.service.Retweet(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"tweet": tweet})
}

// Reply creates a reply under {id}.
func (h *TweetHandler) Reply(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var payload contentPayload
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	reply, err := h.service.Reply(r.Context(), actor, chi.URLParam(r, "id"), payload.Content)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]interface{}{"reply": reply})
}

// Delete removes the acting user's tweet and its replies.
func (h *TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.service.DeleteTweet(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "Tweet deleted successfully"})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
