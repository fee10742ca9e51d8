package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/auth"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	msgMandatoryFields = "One or more mandatory fields are empty."
	msgInvalidLogin    = "Invalid credentials"
	msgUserNotFound    = "User not found"
	msgUnsupportedFile = "Only .jpg, .jpeg, .png files are allowed!"
	msgFileTooLarge    = "File too large"
	msgNotProfileOwner = "You are not authorized to update the details"
)

// AuthorizeProfileChange allows actors to change only their own profile.
func AuthorizeProfileChange(actor models.User, targetID string) error {
	if actor.ID != targetID {
		return apperror.NewForbidden(msgNotProfileOwner)
	}
	return nil
}

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(ctx context.Context, input models.RegisterInput) (models.User, error)
	Login(ctx context.Context, input models.LoginInput) (LoginResult, error)
	GetProfile(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, actor models.User, targetID string, update models.ProfileUpdate) (models.User, error)
	Follow(ctx context.Context, actor models.User, targetID string) (models.User, error)
	Unfollow(ctx context.Context, actor models.User, targetID string) (models.User, error)
	UploadProfilePicture(ctx context.Context, actor models.User, targetID string, img media.Image) (string, error)
	ListFollowers(ctx context.Context, id string, page models.Page) ([]models.UserSummary, error)
	ListFollowing(ctx context.Context, id string, page models.Page) ([]models.UserSummary, error)
}

// LoginResult is the credential and profile handed out on login.
type LoginResult struct {
	Token string             `json:"token"`
	User  models.SessionUser `json:"user"`
}

// UserService provides business logic for accounts and the follow graph.
type UserService struct {
	store      store.UserStore
	media      *media.Library
	tokens     *auth.TokenManager
	events     EventServiceProvider
	validate   *validator.Validate
	bcryptCost int
}

// NewUserService creates a new UserService.
func NewUserService(store store.UserStore, library *media.Library, tokens *auth.TokenManager, events EventServiceProvider, bcryptCost int) *UserService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{
		store:      store,
		media:      library,
		tokens:     tokens,
		events:     events,
		validate:   validator.New(),
		bcryptCost: bcryptCost,
	}
}

// Register creates an account after checking that the email and username are free.
func (s *UserService) Register(ctx context.Context, input models.RegisterInput) (models.User, error) {
	if err := s.validate.Struct(input); err != nil {
		return models.User{}, validationError(err)
	}

	if err := s.ensureFree(ctx, s.store.GetUserByEmail, input.Email, "User already exists"); err != nil {
		return models.User{}, err
	}
	if err := s.ensureFree(ctx, s.store.GetUserByUsername, input.Username, "Username not available"); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return models.User{}, apperror.NewInternal("Failed to hash password", err)
	}

	user := models.User{
		Name:         input.Name,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		Followers:    []string{},
		Following:    []string{},
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.User{}, apperror.NewConflict("User already exists")
		}
		return models.User{}, apperror.NewInternal("Failed to create user", err)
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	s.events.Record(ctx, models.Event{
		Type:    models.EventUserRegistered,
		ActorID: user.ID,
		UserID:  stringPtr(user.ID),
		Message: fmt.Sprintf("%s joined", user.Username),
	})

	user.PasswordHash = ""
	return user, nil
}

func (s *UserService) ensureFree(ctx context.Context, lookup func(context.Context, string) (models.User, error), value, message string) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return apperror.NewConflict(message)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return apperror.NewInternal("Failed to check uniqueness", err)
	}
}

// Login verifies the credentials and issues a signed token.
func (s *UserService) Login(ctx context.Context, input models.LoginInput) (LoginResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return LoginResult{}, apperror.NewValidation(msgMandatoryFields, err)
	}

	user, err := s.store.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, apperror.NewInvalidCredential(msgInvalidLogin, nil)
		}
		return LoginResult{}, apperror.NewInternal("Failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return LoginResult{}, apperror.NewInvalidCredential(msgInvalidLogin, nil)
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return LoginResult{}, apperror.NewInternal("Failed to issue token", err)
	}

	log.Info().Str("user_id", user.ID).Msg("User logged in")
	return LoginResult{Token: token, User: user.Session()}, nil
}

// GetProfile returns the user without the password hash.
func (s *UserService) GetProfile(ctx context.Context, id string) (models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, storeError(err, msgUserNotFound, "Failed to get user")
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile applies a partial update to the acting user's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, actor models.User, targetID string, update models.ProfileUpdate) (models.User, error) {
	if err := AuthorizeProfileChange(actor, targetID); err != nil {
		return models.User{}, err
	}
	update = update.Compact()
	if update.Empty() {
		return models.User{}, apperror.NewValidation("There is nothing to update", nil)
	}

	user, err := s.store.UpdateUserProfile(ctx, targetID, update)
	if err != nil {
		return models.User{}, storeError(err, msgUserNotFound, "Failed to update user")
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventUserUpdated,
		ActorID: actor.ID,
		UserID:  stringPtr(user.ID),
		Message: fmt.Sprintf("%s updated their profile", user.Username),
	})
	user.PasswordHash = ""
	return user, nil
}

// Follow makes actor a follower of the target and returns the updated target.
func (s *UserService) Follow(ctx context.Context, actor models.User, targetID string) (models.User, error) {
	target, err := s.store.GetUserByID(ctx, targetID)
	if err != nil {
		return models.User{}, storeError(err, "User to follow not found", "Failed to get user")
	}
	if target.ID == actor.ID {
		return models.User{}, apperror.NewSelfReference("You cannot follow yourself")
	}
	if actor.IsFollowing(target.ID) {
		return models.User{}, apperror.NewConflict("You are already following this user")
	}

	changed, err := s.store.AddFollow(ctx, actor.ID, target.ID)
	if err != nil {
		return models.User{}, storeError(err, "User to follow not found", "Failed to follow user")
	}
	if !changed {
		return models.User{}, apperror.NewConflict("You are already following this user")
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventUserFollowed,
		ActorID: actor.ID,
		UserID:  stringPtr(target.ID),
		Message: fmt.Sprintf("%s followed %s", actor.Username, target.Username),
	})
	return s.GetProfile(ctx, target.ID)
}

// Unfollow removes the follow relationship and returns the updated target.
func (s *UserService) Unfollow(ctx context.Context, actor models.User, targetID string) (models.User, error) {
	target, err := s.store.GetUserByID(ctx, targetID)
	if err != nil {
		return models.User{}, storeError(err, "User to unfollow not found", "Failed to get user")
	}
	if target.ID == actor.ID {
		return models.User{}, apperror.NewSelfReference("You cannot unfollow yourself")
	}
	if !actor.IsFollowing(target.ID) {
		return models.User{}, apperror.NewConflict("You are not following this user")
	}

	changed, err := s.store.RemoveFollow(ctx, actor.ID, target.ID)
	if err != nil {
		return models.User{}, storeError(err, "User to unfollow not found", "Failed to unfollow user")
	}
	if !changed {
		return models.User{}, apperror.NewConflict("You are not following this user")
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventUserUnfollowed,
		ActorID: actor.ID,
		UserID:  stringPtr(target.ID),
		Message: fmt.Sprintf("%s unfollowed %s", actor.Username, target.Username),
	})
	return s.GetProfile(ctx, target.ID)
}

// UploadProfilePicture stores the image and records its path on the user.
// The previous picture, if any, is removed.
func (s *UserService) UploadProfilePicture(ctx context.Context, actor models.User, targetID string, img media.Image) (string, error) {
	if err := AuthorizeProfileChange(actor, targetID); err != nil {
		return "", err
	}

	user, err := s.store.GetUserByID(ctx, targetID)
	if err != nil {
		return "", storeError(err, msgUserNotFound, "Failed to get user")
	}

	path, err := s.media.Save(ctx, media.ProfilePicturePrefix, img)
	if err != nil {
		return "", mediaError(err)
	}

	if err := s.store.SetProfilePicture(ctx, user.ID, path); err != nil {
		s.removeImage(ctx, path)
		return "", storeError(err, msgUserNotFound, "Failed to update profile picture")
	}
	if user.ProfilePicture != "" {
		s.removeImage(ctx, user.ProfilePicture)
	}

	s.events.Record(ctx, models.Event{
		Type:    models.EventUserPicture,
		ActorID: actor.ID,
		UserID:  stringPtr(user.ID),
		Message: fmt.Sprintf("%s changed their profile picture", user.Username),
	})
	return path, nil
}

func (s *UserService) removeImage(ctx context.Context, path string) {
	if err := s.media.Remove(ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove image")
	}
}

// ListFollowers returns a page of the users following id.
func (s *UserService) ListFollowers(ctx context.Context, id string, page models.Page) ([]models.UserSummary, error) {
	return s.listRelations(ctx, id, page, s.store.ListFollowers)
}

// ListFollowing returns a page of the users id follows.
func (s *UserService) ListFollowing(ctx context.Context, id string, page models.Page) ([]models.UserSummary, error) {
	return s.listRelations(ctx, id, page, s.store.ListFollowing)
}

func (s *UserService) listRelations(ctx context.Context, id string, page models.Page, list func(context.Context, string, models.Page) ([]models.User, error)) ([]models.UserSummary, error) {
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		return nil, storeError(err, msgUserNotFound, "Failed to get user")
	}

	users, err := list(ctx, id, page.Normalize())
	if err != nil {
		return nil, storeError(err, msgUserNotFound, "Failed to list users")
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}
	return summaries, nil
}

// storeError maps store.ErrNotFound to a NotFound with the given message and
// anything else to an internal error.
func storeError(err error, notFound, internal string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperror.NewNotFound(notFound)
	}
	return apperror.NewInternal(internal, err)
}

func mediaError(err error) error {
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		return apperror.NewUnsupportedMediaType(msgUnsupportedFile)
	case errors.Is(err, media.ErrTooLarge):
		return apperror.NewPayloadTooLarge(msgFileTooLarge)
	default:
		return apperror.NewInternal("Failed to store image", err)
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.NewValidation(msgMandatoryFields, err)
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return apperror.NewValidation(msgMandatoryFields, err)
		}
	}
	return apperror.NewValidation("Invalid email address", err)
}
