package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/jmoiron/sqlx"
)

const tweetColumns = "id, content, image, tweeted_by, parent_id, created_at, updated_at"

type tweetRow struct {
	ID        string         `db:"id"`
	Content   string         `db:"content"`
	Image     string         `db:"image"`
	TweetedBy string         `db:"tweeted_by"`
	ParentID  sql.NullString `db:"parent_id"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type edgeRow struct {
	Owner  string `db:"owner"`
	Member string `db:"member"`
}

func (s *Store) CreateTweet(ctx context.Context, tweet *models.Tweet) error {
	tweet.ParentID = ""
	return s.insertTweet(ctx, s.db, tweet)
}

// CreateReply inserts the reply and touches its parent in one transaction.
func (s *Store) CreateReply(ctx context.Context, parentID string, reply *models.Tweet) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := touchTweet(ctx, tx, parentID); err != nil {
			return fmt.Errorf("failed to append reply: %w", err)
		}
		reply.ParentID = parentID
		return s.insertTweet(ctx, tx, reply)
	})
}

func (s *Store) insertTweet(ctx context.Context, exec sqlx.ExtContext, tweet *models.Tweet) error {
	now := time.Now().UTC()
	tweet.ID = uuid.New().String()
	tweet.CreatedAt = now
	tweet.UpdatedAt = now
	tweet.Likes = []string{}
	tweet.RetweetBy = []string{}
	tweet.Replies = []string{}

	parent := sql.NullString{String: tweet.ParentID, Valid: tweet.ParentID != ""}
	_, err := exec.ExecContext(ctx, exec.Rebind(`INSERT INTO tweets (`+tweetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		tweet.ID, tweet.Content, tweet.Image, tweet.TweetedBy, parent, tweet.CreatedAt, tweet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tweet: %w", err)
	}
	return nil
}

func (s *Store) GetTweet(ctx context.Context, id string) (models.Tweet, error) {
	var row tweetRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+tweetColumns+` FROM tweets WHERE id = ?`), id); err != nil {
		return models.Tweet{}, fmt.Errorf("failed to get tweet: %w", notFound(err))
	}
	tweets, err := s.hydrate(ctx, []tweetRow{row})
	if err != nil {
		return models.Tweet{}, err
	}
	return tweets[0], nil
}

func (s *Store) GetTweetsByIDs(ctx context.Context, ids []string) ([]models.Tweet, error) {
	if len(ids) == 0 {
		return []models.Tweet{}, nil
	}
	rows, err := selectIn[tweetRow](ctx, s.db, `SELECT `+tweetColumns+` FROM tweets WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get tweets: %w", err)
	}

	byID := make(map[string]tweetRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	ordered := make([]tweetRow, 0, len(rows))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			ordered = append(ordered, r)
			delete(byID, id)
		}
	}
	return s.hydrate(ctx, ordered)
}

func (s *Store) ListTweets(ctx context.Context, filter models.TweetFilter, page models.Page) ([]models.Tweet, error) {
	page = page.Normalize()
	query := `SELECT ` + tweetColumns + ` FROM tweets`
	var args []interface{}
	if filter.AuthorID != "" {
		query += ` WHERE tweeted_by = ?`
		args = append(args, filter.AuthorID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	var rows []tweetRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list tweets: %w", err)
	}
	return s.hydrate(ctx, rows)
}

// hydrate attaches likes, retweets and reply IDs with one query per edge kind.
func (s *Store) hydrate(ctx context.Context, rows []tweetRow) ([]models.Tweet, error) {
	tweets := make([]models.Tweet, 0, len(rows))
	if len(rows) == 0 {
		return tweets, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	likes, err := s.edges(ctx, `SELECT tweet_id AS owner, user_id AS member FROM tweet_likes WHERE tweet_id IN (?) ORDER BY created_at, user_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load likes: %w", err)
	}
	retweets, err := s.edges(ctx, `SELECT tweet_id AS owner, user_id AS member FROM tweet_retweets WHERE tweet_id IN (?) ORDER BY created_at, user_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load retweets: %w", err)
	}
	replies, err := s.edges(ctx, `SELECT parent_id AS owner, id AS member FROM tweets WHERE parent_id IN (?) ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load replies: %w", err)
	}

	for _, r := range rows {
		tweets = append(tweets, models.Tweet{
			ID:        r.ID,
			Content:   r.Content,
			Image:     r.Image,
			TweetedBy: r.TweetedBy,
			ParentID:  r.ParentID.String,
			Likes:     nonNil(likes[r.ID]),
			RetweetBy: nonNil(retweets[r.ID]),
			Replies:   nonNil(replies[r.ID]),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return tweets, nil
}

func (s *Store) edges(ctx context.Context, query string, ids []string) (map[string][]string, error) {
	rows, err := selectIn[edgeRow](ctx, s.db, query, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, e := range rows {
		out[e.Owner] = append(out[e.Owner], e.Member)
	}
	return out, nil
}

func (s *Store) AddLike(ctx context.Context, tweetID, userID string) (bool, error) {
	return s.addEdge(ctx, "tweet_likes", tweetID, userID)
}

func (s *Store) RemoveLike(ctx context.Context, tweetID, userID string) (bool, error) {
	return s.removeEdge(ctx, "tweet_likes", tweetID, userID)
}

func (s *Store) AddRetweet(ctx context.Context, tweetID, userID string) (bool, error) {
	return s.addEdge(ctx, "tweet_retweets", tweetID, userID)
}

func (s *Store) addEdge(ctx context.Context, table, tweetID, userID string) (bool, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := touchTweet(ctx, tx, tweetID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO `+table+` (tweet_id, user_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
			tweetID, userID, time.Now().UTC())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errUnchanged
		}
		return nil
	})
	return edgeResult(table, err)
}

func (s *Store) removeEdge(ctx context.Context, table, tweetID, userID string) (bool, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := touchTweet(ctx, tx, tweetID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+table+` WHERE tweet_id = ? AND user_id = ?`), tweetID, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errUnchanged
		}
		return nil
	})
	return edgeResult(table, err)
}

func edgeResult(table string, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errUnchanged):
		return false, nil
	default:
		return false, fmt.Errorf("failed to update %s: %w", table, err)
	}
}

// DeleteTweet removes the tweet; the schema cascades to replies and engagement rows.
func (s *Store) DeleteTweet(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var parent sql.NullString
		if err := tx.GetContext(ctx, &parent, tx.Rebind(`SELECT parent_id FROM tweets WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete tweet: %w", notFound(err))
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tweets WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete tweet: %w", err)
		}
		if parent.Valid {
			if err := touchTweet(ctx, tx, parent.String); err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to unlink reply: %w", err)
			}
		}
		return nil
	})
}

// touchTweet bumps updated_at and returns store.ErrNotFound if the tweet is missing.
func touchTweet(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tweets SET updated_at = ? WHERE id = ?`), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
