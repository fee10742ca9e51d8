package mongostore

import (
	"context"
	"fmt"

	"github.com/isdelr/chirper-be/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type followDoc struct {
	ID        primitive.ObjectID   `bson:"_id"`
	Followers []primitive.ObjectID `bson:"followers"`
	Following []primitive.ObjectID `bson:"following"`
}

type replyDoc struct {
	ID      primitive.ObjectID   `bson:"_id"`
	Replies []primitive.ObjectID `bson:"replies"`
}

// followFix lists the entries to change on one user.
type followFix struct {
	ID              primitive.ObjectID
	AddFollowers    []primitive.ObjectID
	RemoveFollowers []primitive.ObjectID
	RemoveFollowing []primitive.ObjectID
}

func (f followFix) empty() bool {
	return len(f.AddFollowers) == 0 && len(f.RemoveFollowers) == 0 && len(f.RemoveFollowing) == 0
}

// Reconcile prunes reply references to deleted tweets and rebuilds every
// followers list from the following lists, which are written first.
func (s *Store) Reconcile(ctx context.Context) (models.ReconcileReport, error) {
	var report models.ReconcileReport

	dangling, err := s.reconcileReplies(ctx)
	if err != nil {
		return report, err
	}
	report.DanglingReplies = dangling

	followers, following, err := s.reconcileFollows(ctx)
	if err != nil {
		return report, err
	}
	report.FollowersRepaired = followers
	report.FollowingRepaired = following
	return report, nil
}

func (s *Store) reconcileReplies(ctx context.Context) (int, error) {
	cursor, err := s.tweets.Find(ctx,
		bson.D{{Key: "replies.0", Value: bson.D{{Key: "$exists", Value: true}}}},
		options.Find().SetProjection(bson.D{{Key: "replies", Value: 1}}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to scan replies: %w", err)
	}
	var parents []replyDoc
	if err := cursor.All(ctx, &parents); err != nil {
		return 0, fmt.Errorf("failed to decode replies: %w", err)
	}

	var referenced []primitive.ObjectID
	for _, p := range parents {
		referenced = append(referenced, p.Replies...)
	}
	existing, err := s.existingTweets(ctx, referenced)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, p := range parents {
		missing := danglingReplies(p.Replies, existing)
		if len(missing) == 0 {
			continue
		}
		_, err := s.tweets.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: p.ID}},
			bson.D{{Key: "$pull", Value: bson.D{{Key: "replies", Value: bson.D{{Key: "$in", Value: missing}}}}}},
		)
		if err != nil {
			return total, fmt.Errorf("failed to prune replies: %w", err)
		}
		total += len(missing)
	}
	return total, nil
}

func (s *Store) existingTweets(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	existing := make(map[primitive.ObjectID]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	cursor, err := s.tweets.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve replies: %w", err)
	}
	var found []replyDoc
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode replies: %w", err)
	}
	for _, f := range found {
		existing[f.ID] = true
	}
	return existing, nil
}

func (s *Store) reconcileFollows(ctx context.Context) (int, int, error) {
	cursor, err := s.users.Find(ctx, bson.D{},
		options.Find().SetProjection(bson.D{{Key: "followers", Value: 1}, {Key: "following", Value: 1}}),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to scan follows: %w", err)
	}
	var users []followDoc
	if err := cursor.All(ctx, &users); err != nil {
		return 0, 0, fmt.Errorf("failed to decode follows: %w", err)
	}

	followers, following := 0, 0
	for _, planned := range followRepairs(users) {
		fix, err := confirmRepair(ctx, liveFollows{s}, planned)
		if err != nil {
			return followers, following, err
		}
		if fix.empty() {
			continue
		}
		filter := bson.D{{Key: "_id", Value: fix.ID}}
		if len(fix.RemoveFollowers) > 0 || len(fix.RemoveFollowing) > 0 {
			pull := bson.D{}
			if len(fix.RemoveFollowers) > 0 {
				pull = append(pull, bson.E{Key: "followers", Value: bson.D{{Key: "$in", Value: fix.RemoveFollowers}}})
			}
			if len(fix.RemoveFollowing) > 0 {
				pull = append(pull, bson.E{Key: "following", Value: bson.D{{Key: "$in", Value: fix.RemoveFollowing}}})
			}
			if _, err := s.users.UpdateOne(ctx, filter, bson.D{{Key: "$pull", Value: pull}}); err != nil {
				return followers, following, fmt.Errorf("failed to repair follows: %w", err)
			}
		}
		if len(fix.AddFollowers) > 0 {
			update := bson.D{{Key: "$addToSet", Value: bson.D{{Key: "followers", Value: bson.D{{Key: "$each", Value: fix.AddFollowers}}}}}}
			if _, err := s.users.UpdateOne(ctx, filter, update); err != nil {
				return followers, following, fmt.Errorf("failed to repair follows: %w", err)
			}
		}
		followers += len(fix.AddFollowers) + len(fix.RemoveFollowers)
		following += len(fix.RemoveFollowing)
	}
	return followers, following, nil
}

// followState reads the current users collection. The scan is not a
// snapshot, so every planned repair is checked against it before writing.
type followState interface {
	follows(ctx context.Context, follower, followee primitive.ObjectID) (bool, error)
	exists(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type liveFollows struct {
	s *Store
}

func (l liveFollows) follows(ctx context.Context, follower, followee primitive.ObjectID) (bool, error) {
	n, err := l.s.users.CountDocuments(ctx,
		bson.D{{Key: "_id", Value: follower}, {Key: "following", Value: followee}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}
	return n > 0, nil
}

func (l liveFollows) exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	n, err := l.s.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return n > 0, nil
}

// confirmRepair keeps only the changes the current state still calls for.
// A follow or unfollow that committed while the scan was running, or a user
// registered after it started, leaves the planned change stale.
func confirmRepair(ctx context.Context, state followState, fix followFix) (followFix, error) {
	confirmed := followFix{ID: fix.ID}
	for _, f := range fix.AddFollowers {
		ok, err := state.follows(ctx, f, fix.ID)
		if err != nil {
			return confirmed, err
		}
		if ok {
			confirmed.AddFollowers = append(confirmed.AddFollowers, f)
		}
	}
	for _, f := range fix.RemoveFollowers {
		ok, err := state.follows(ctx, f, fix.ID)
		if err != nil {
			return confirmed, err
		}
		if !ok {
			confirmed.RemoveFollowers = append(confirmed.RemoveFollowers, f)
		}
	}
	for _, f := range fix.RemoveFollowing {
		ok, err := state.exists(ctx, f)
		if err != nil {
			return confirmed, err
		}
		if !ok {
			confirmed.RemoveFollowing = append(confirmed.RemoveFollowing, f)
		}
	}
	return confirmed, nil
}

func danglingReplies(replies []primitive.ObjectID, existing map[primitive.ObjectID]bool) []primitive.ObjectID {
	var missing []primitive.ObjectID
	for _, r := range replies {
		if !existing[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

// followRepairs treats each following list as authoritative. Following
// entries naming missing users are dropped, and each followers list is made
// to match the following lists that name its owner.
func followRepairs(users []followDoc) []followFix {
	known := make(map[primitive.ObjectID]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}

	expected := make(map[primitive.ObjectID]map[primitive.ObjectID]bool, len(users))
	fixByID := make(map[primitive.ObjectID]*followFix)
	fixFor := func(id primitive.ObjectID) *followFix {
		if fix, ok := fixByID[id]; ok {
			return fix
		}
		fix := &followFix{ID: id}
		fixByID[id] = fix
		return fix
	}

	for _, u := range users {
		for _, f := range u.Following {
			if !known[f] {
				fix := fixFor(u.ID)
				fix.RemoveFollowing = append(fix.RemoveFollowing, f)
				continue
			}
			if expected[f] == nil {
				expected[f] = make(map[primitive.ObjectID]bool)
			}
			expected[f][u.ID] = true
		}
	}

	for _, u := range users {
		want := expected[u.ID]
		present := make(map[primitive.ObjectID]bool, len(u.Followers))
		for _, f := range u.Followers {
			present[f] = true
			if !want[f] {
				fix := fixFor(u.ID)
				fix.RemoveFollowers = append(fix.RemoveFollowers, f)
			}
		}
		// iterate users, not the set, to keep additions in a stable order
		for _, candidate := range users {
			if want[candidate.ID] && !present[candidate.ID] {
				fix := fixFor(u.ID)
				fix.AddFollowers = append(fix.AddFollowers, candidate.ID)
			}
		}
	}

	fixes := make([]followFix, 0, len(fixByID))
	for _, u := range users {
		if fix, ok := fixByID[u.ID]; ok {
			fixes = append(fixes, *fix)
		}
	}
	return fixes
}
