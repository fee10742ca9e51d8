package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: MaxPageLimit, Offset: 10}, Page{Limit: 1000, Offset: 10}.Normalize())
	assert.Equal(t, Page{Limit: 5}, Page{Limit: 5, Offset: -3}.Normalize())
	assert.Equal(t, Page{Limit: 5, Offset: 15}, Page{Limit: 5, Offset: 10}.Next())
}

func TestUser_JSONNeverCarriesPasswordHash(t *testing.T) {
	u := User{ID: "u1", Name: "Alice", Username: "alice", Email: "alice@x.com", PasswordHash: "$2a$10$secret"}

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, string(raw), `"_id":"u1"`)

	raw, err = json.Marshal(u.Summary())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "email")
	assert.Equal(t, SessionUser{ID: "u1", Name: "Alice", Username: "alice", Email: "alice@x.com"}, u.Session())
}

func TestMembershipHelpers(t *testing.T) {
	u := User{Following: []string{"b", "c"}}
	assert.True(t, u.IsFollowing("c"))
	assert.False(t, u.IsFollowing("d"))

	tw := Tweet{Likes: []string{"a"}, RetweetBy: []string{"b"}}
	assert.True(t, tw.LikedBy("a"))
	assert.False(t, tw.LikedBy("b"))
	assert.True(t, tw.RetweetedBy("b"))

	name := "Al"
	assert.True(t, ProfileUpdate{}.Empty())
	assert.False(t, ProfileUpdate{Name: &name}.Empty())

	blank := ""
	compacted := ProfileUpdate{Name: &name, Location: &blank}.Compact()
	assert.Nil(t, compacted.Location)
	assert.Equal(t, "Al", *compacted.Name)
	assert.True(t, ProfileUpdate{DOB: &blank}.Compact().Empty())

	assert.Equal(t, 3, ReconcileReport{DanglingReplies: 1, FollowersRepaired: 2}.Total())
}
