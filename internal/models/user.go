package models

import "time"

// User represents a user account in the system.
type User struct {
	ID             string    `json:"_id"`
	Name           string    `json:"name"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"` // Never expose this to the client
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Location       string    `json:"location,omitempty"`
	DOB            string    `json:"dob,omitempty"`
	Followers      []string  `json:"followers"`
	Following      []string  `json:"following"`
	CreatedAt      time.Time `json:"created"`
	UpdatedAt      time.Time `json:"updated"`
}

// IsFollowing reports whether u follows the user with the given ID.
func (u User) IsFollowing(id string) bool {
	return contains(u.Following, id)
}

// Summary is the redacted projection embedded in other documents.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Name:           u.Name,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
	}
}

// Session is the minimal profile returned on login.
func (u User) Session() SessionUser {
	return SessionUser{ID: u.ID, Name: u.Name, Username: u.Username, Email: u.Email}
}

// UserSummary is a user reference as it appears inside tweets and lists.
type UserSummary struct {
	ID             string `json:"_id"`
	Name           string `json:"name,omitempty"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// SessionUser is the user block of a login response.
type SessionUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RegisterInput holds registration fields.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginInput holds login fields.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	DOB      *string `json:"dob,omitempty"`
	Location *string `json:"location,omitempty"`
}

// Empty reports whether no field is supplied.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.DOB == nil && p.Location == nil
}

// Compact drops empty strings, which count as not supplied.
func (p ProfileUpdate) Compact() ProfileUpdate {
	for _, f := range []**string{&p.Name, &p.DOB, &p.Location} {
		if *f != nil && **f == "" {
			*f = nil
		}
	}
	return p
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
