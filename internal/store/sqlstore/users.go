package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
)

const userColumns = "id, name, username, email, password_hash, profile_picture, location, dob, created_at, updated_at"

type userRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Username       string    `db:"username"`
	Email          string    `db:"email"`
	PasswordHash   string    `db:"password_hash"`
	ProfilePicture string    `db:"profile_picture"`
	Location       string    `db:"location"`
	DOB            string    `db:"dob"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r userRow) toModel() models.User {
	return models.User{
		ID:             r.ID,
		Name:           r.Name,
		Username:       r.Username,
		Email:          r.Email,
		PasswordHash:   r.PasswordHash,
		ProfilePicture: r.ProfilePicture,
		Location:       r.Location,
		DOB:            r.DOB,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toUsers(rows []userRow) []models.User {
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users
}

// CreateUser inserts a new user, assigning its ID and timestamps.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.ID = uuid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Name, user.Username, user.Email, user.PasswordHash,
		user.ProfilePicture, user.Location, user.DOB, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create user: %w", store.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.Followers = []string{}
	user.Following = []string{}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *Store) getUser(ctx context.Context, column, value string) (models.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`), value)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user by %s: %w", column, notFound(err))
	}

	user := row.toModel()
	if err := s.db.SelectContext(ctx, &user.Followers, s.db.Rebind(`SELECT follower_id FROM follows WHERE followee_id = ? ORDER BY created_at`), user.ID); err != nil {
		return models.User{}, fmt.Errorf("failed to get followers: %w", err)
	}
	if err := s.db.SelectContext(ctx, &user.Following, s.db.Rebind(`SELECT followee_id FROM follows WHERE follower_id = ? ORDER BY created_at`), user.ID); err != nil {
		return models.User{}, fmt.Errorf("failed to get following: %w", err)
	}
	user.Followers = nonNil(user.Followers)
	user.Following = nonNil(user.Following)
	return user, nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	rows, err := selectIn[userRow](ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return toUsers(rows), nil
}

// UpdateUserProfile applies only the supplied fields.
func (s *Store) UpdateUserProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.User, error) {
	var (
		sets []string
		args []interface{}
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.DOB != nil {
		sets = append(sets, "dob = ?")
		args = append(args, *update.DOB)
	}
	if update.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *update.Location)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.User{}, fmt.Errorf("failed to update user: %w", store.ErrNotFound)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) SetProfilePicture(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET profile_picture = ?, updated_at = ? WHERE id = ?`), path, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set profile picture: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to set profile picture: %w", store.ErrNotFound)
	}
	return nil
}

func (s *Store) AddFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
		followerID, followeeID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add follow: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) RemoveFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`), followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("failed to remove follow: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListFollowers(ctx context.Context, id string, page models.Page) ([]models.User, error) {
	return s.listFollowEdge(ctx, "follower_id", "followee_id", id, page)
}

func (s *Store) ListFollowing(ctx context.Context, id string, page models.Page) ([]models.User, error) {
	return s.listFollowEdge(ctx, "followee_id", "follower_id", id, page)
}

func (s *Store) listFollowEdge(ctx context.Context, joinCol, whereCol, id string, page models.Page) ([]models.User, error) {
	page = page.Normalize()
	query := `SELECT ` + prefixed("u", userColumns) + ` FROM follows f JOIN users u ON u.id = f.` + joinCol +
		` WHERE f.` + whereCol + ` = ? ORDER BY f.created_at DESC, u.id LIMIT ? OFFSET ?`

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), id, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("failed to list follow edges: %w", err)
	}
	return toUsers(rows), nil
}
