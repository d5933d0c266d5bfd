package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearesierraleone/frontend/internal/models"
)

func TestSavePostLocally_DefaultsToPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	post, err := s.SavePostLocally(ctx, models.Post{Title: "Water", Body: "Pumps are broken"})
	require.NoError(t, err)
	assert.Equal(t, models.PostPending, post.Status)
	assert.NotEmpty(t, post.ID)

	got, ok, err := s.LocalPost(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Water", got.Title)
	assert.Equal(t, fixedNow, got.Timestamp)
}

func TestSaveVoteLocally_CountsEventsAndSetsFlag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.False(t, s.HasVoted(ctx, "post-1"))

	_, err := s.SaveVoteLocally(ctx, models.Vote{PostID: "post-1", Type: models.VoteUp})
	require.NoError(t, err)
	_, err = s.SaveVoteLocally(ctx, models.Vote{PostID: "post-1", Type: models.VoteDown})
	require.NoError(t, err)
	_, err = s.SaveVoteLocally(ctx, models.Vote{PostID: "post-2", Type: models.VoteUp})
	require.NoError(t, err)
	// older clients stored the long form
	_, err = s.SaveToCollection(ctx, Votes, Item{"postId": "post-1", "type": "upvote"})
	require.NoError(t, err)

	tally, err := s.LocalVoteStats(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.VoteTally{Up: 2, Down: 1}, tally)

	assert.True(t, s.HasVoted(ctx, "post-1"))
	assert.False(t, s.HasVoted(ctx, "post-3"))

	claimed, err := s.ClaimVote(ctx, "post-1", models.VoteUp)
	require.NoError(t, err)
	assert.False(t, claimed, "saving a vote sets the flag")
}

func TestClaimVote_OnlyOneConcurrentWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimVote(ctx, "post-1", models.VoteUp)
			assert.NoError(t, err)
			if claimed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	claimed, err := s.ClaimVote(ctx, "post-2", models.VoteDown)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestSaveCommentLocally(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c, err := s.SaveCommentLocally(ctx, models.Comment{PostID: "post-1", Text: "Test", AnonID: "anon-7"})
	require.NoError(t, err)
	assert.Equal(t, models.CommentApproved, c.Status)
	assert.Equal(t, "local", c.Source)

	list, err := s.LocalComments(ctx, "post-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Test", list[0].Text)
	assert.Equal(t, c.ID, list[0].ID)

	items, _ := s.GetCollection(ctx, Comments)
	assert.Len(t, items, 1)

	other, err := s.LocalComments(ctx, "post-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateLocalComment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c, err := s.SaveCommentLocally(ctx, models.Comment{PostID: "post-1", Text: "spam"})
	require.NoError(t, err)

	found, err := s.UpdateLocalComment(ctx, "post-1", c.ID, func(c *models.Comment) {
		c.Status = models.CommentFlagged
	})
	require.NoError(t, err)
	assert.True(t, found)

	list, _ := s.LocalComments(ctx, "post-1")
	assert.Equal(t, models.CommentFlagged, list[0].Status)

	found, err = s.UpdateLocalComment(ctx, "post-1", "missing", func(*models.Comment) {})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCombineWithLocalPosts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SavePostLocally(ctx, models.Post{ID: "remote-1", Title: "dup by id", Body: "x"})
	require.NoError(t, err)
	_, err = s.SavePostLocally(ctx, models.Post{Title: "Same", Body: "Content"})
	require.NoError(t, err)
	fresh, err := s.SavePostLocally(ctx, models.Post{Title: "New", Body: "Only here"})
	require.NoError(t, err)

	remote := []models.Post{
		{ID: "remote-1", Title: "dup by id", Body: "x", Timestamp: fixedNow.Add(-time.Hour)},
		{ID: "remote-2", Title: "Same", Body: "Content", Timestamp: fixedNow.Add(-2 * time.Hour)},
	}
	combined := s.CombineWithLocalPosts(ctx, remote)

	require.Len(t, combined, 3)
	assert.Equal(t, fresh.ID, combined[0].ID, "local post is newest")
	assert.Equal(t, "remote-1", combined[1].ID)
	assert.Equal(t, "remote-2", combined[2].ID)
}
