package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/chirper-be/internal/api/respond"
	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/auth"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/services"
	"github.com/rs/zerolog/log"
)

// ProfilePictureField is the multipart field carrying the avatar.
const ProfilePictureField = "profilePicture"

// UserHandler handles HTTP requests for accounts and the follow graph.
type UserHandler struct {
	service   services.UserServiceProvider
	cookieTTL time.Duration
	secure    bool
	maxUpload int64
}

// NewUserHandler creates a new UserHandler. cookieTTL matches the token
// lifetime; secure marks the login cookie Secure.
func NewUserHandler(service services.UserServiceProvider, cookieTTL time.Duration, secure bool, maxUpload int64) *UserHandler {
	return &UserHandler{service: service, cookieTTL: cookieTTL, secure: secure, maxUpload: maxUpload}
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input models.RegisterInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, err)
		return
	}

	if _, err := h.service.Register(r.Context(), input); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]string{"result": "User registered successfully"})
}

// Login handles user authentication. The token is returned in the body and
// also set as an HttpOnly cookie.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input models.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), input)
	if err != nil {
		if apperror.Is(err, apperror.InvalidCredentialError) {
			log.Warn().Str("email", input.Email).Msg("Failed authentication attempt")
		}
		respond.Error(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Expires:  time.Now().Add(h.cookieTTL),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	respond.JSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// Me returns the profile of the authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	actor.PasswordHash = ""
	respond.JSON(w, http.StatusOK, actor)
}

// Get returns a public profile.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, user)
}

// Update applies a partial profile update.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var update models.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), actor, chi.URLParam(r, "id"), update)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"message": "User updated successfully", "user": user})
}

// Follow makes the acting user follow {id}.
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	target, err := h.service.Follow(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"message": "User followed successfully", "userToFollow": target})
}

// Unfollow makes the acting user stop following {id}.
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	target, err := h.service.Unfollow(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"message": "User unfollowed successfully", "userToUnfollow": target})
}

// UploadProfilePicture stores a multipart avatar for {id}.
func (h *UserHandler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	targetID := chi.URLParam(r, "id")
	// reject before the body is spooled to disk
	if err := services.AuthorizeProfileChange(actor, targetID); err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := parseMultipart(w, r, h.maxUpload); err != nil {
		respond.Error(w, r, err)
		return
	}
	img, file, err := formImage(r, ProfilePictureField)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if img == nil {
		respond.Error(w, r, apperror.NewValidation("No file uploaded", nil))
		return
	}
	defer file.Close()

	path, err := h.service.UploadProfilePicture(r.Context(), actor, targetID, *img)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "Profile picture uploaded successfully", "imagePath": path})
}

// Followers lists a page of the users following {id}.
func (h *UserHandler) Followers(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	users, err := h.service.ListFollowers(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	setNextLink(w, r, page, len(users))
	respond.JSON(w, http.StatusOK, users)
}

// Following lists a page of the users {id} follows.
func (h *UserHandler) Following(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	users, err := h.service.ListFollowing(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	setNextLink(w, r, page, len(users))
	respond.JSON(w, http.StatusOK, users)
}
