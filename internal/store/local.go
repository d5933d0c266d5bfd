package store

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wearesierraleone/frontend/internal/models"
)

// SavePostLocally stores a submitted post in the posts collection. Posts
// saved on the device are pending until a moderator approves them.
func (s *Store) SavePostLocally(ctx context.Context, post models.Post) (models.Post, error) {
	if post.Status == "" {
		post.Status = models.PostPending
	}
	if post.Timestamp.IsZero() {
		post.Timestamp = s.Now()
	}
	it, err := toItem(post)
	if err != nil {
		return post, err
	}
	id, err := s.SaveToCollection(ctx, Posts, it)
	if err != nil {
		return post, err
	}
	post.ID = id
	return post, nil
}

// SaveVoteLocally records the vote event and marks the post as voted on
// from this device.
func (s *Store) SaveVoteLocally(ctx context.Context, vote models.Vote) (models.Vote, error) {
	if vote.Timestamp.IsZero() {
		vote.Timestamp = s.Now()
	}
	it, err := toItem(vote)
	if err != nil {
		return vote, err
	}
	id, err := s.SaveToCollection(ctx, Votes, it)
	if err != nil {
		return vote, err
	}
	vote.ID = id
	if err := s.Save(ctx, votedPrefix+vote.PostID, string(vote.Type)); err != nil {
		return vote, err
	}
	return vote, nil
}

// HasVoted reports whether this device already voted on postID.
func (s *Store) HasVoted(ctx context.Context, postID string) bool {
	var v string
	ok, err := s.Load(ctx, votedPrefix+postID, &v)
	if err != nil {
		s.log.Warn("failed to read vote flag", zap.String("postId", postID), zap.Error(err))
		return false
	}
	return ok
}

// ClaimVote marks postID as voted on by this device. It reports false when
// a vote was already recorded; the check and the write share the writer
// lock so two concurrent votes cannot both claim the post.
func (s *Store) ClaimVote(ctx context.Context, postID string, vt models.VoteType) (bool, error) {
	claimed := false
	err := Update(ctx, s, votedPrefix+postID, func(cur *string) error {
		if *cur != "" {
			return nil
		}
		*cur = string(vt)
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// SaveCommentLocally appends the comment to the comments collection and to
// the per-post local_comments view read back by the comment list.
func (s *Store) SaveCommentLocally(ctx context.Context, c models.Comment) (models.Comment, error) {
	if c.Timestamp.IsZero() {
		c.Timestamp = s.Now()
	}
	if c.Status == "" {
		c.Status = models.CommentApproved
	}
	it, err := toItem(c)
	if err != nil {
		return c, err
	}
	id, err := s.SaveToCollection(ctx, Comments, it)
	if err != nil {
		return c, err
	}
	c.ID = id
	c.Source = "local"

	err = Update(ctx, s, KeyLocalComments, func(byPost *map[string][]models.Comment) error {
		if *byPost == nil {
			*byPost = make(map[string][]models.Comment)
		}
		(*byPost)[c.PostID] = append((*byPost)[c.PostID], c)
		return nil
	})
	return c, err
}

// LocalComments returns the comments written on this device for postID,
// newest first.
func (s *Store) LocalComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var byPost map[string][]models.Comment
	if _, err := s.Load(ctx, KeyLocalComments, &byPost); err != nil {
		return nil, err
	}
	out := append([]models.Comment(nil), byPost[postID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// UpdateLocalComment applies fn to the locally stored comment with id. It
// reports false when no such comment exists on this device.
func (s *Store) UpdateLocalComment(ctx context.Context, postID, id string, fn func(*models.Comment)) (bool, error) {
	found := false
	err := Update(ctx, s, KeyLocalComments, func(byPost *map[string][]models.Comment) error {
		list := (*byPost)[postID]
		if i := models.FindComment(list, id); i >= 0 {
			fn(&list[i])
			found = true
		}
		return nil
	})
	return found, err
}

// LocalPosts returns posts saved on this device, newest first.
func (s *Store) LocalPosts(ctx context.Context) ([]models.Post, error) {
	items, err := s.GetCollection(ctx, Posts)
	if err != nil {
		return nil, err
	}
	SortByTimestampDesc(items)
	return fromItems[models.Post](items)
}

// LocalPost looks up one locally saved post.
func (s *Store) LocalPost(ctx context.Context, id string) (models.Post, bool, error) {
	posts, err := s.LocalPosts(ctx)
	if err != nil {
		return models.Post{}, false, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p, true, nil
		}
	}
	return models.Post{}, false, nil
}

// LocalVoteStats counts this device's vote events for postID.
func (s *Store) LocalVoteStats(ctx context.Context, postID string) (models.VoteTally, error) {
	var tally models.VoteTally
	items, err := s.GetCollection(ctx, Votes)
	if err != nil {
		return tally, err
	}
	for _, it := range items {
		if pid, _ := it["postId"].(string); pid != postID {
			continue
		}
		typ, _ := it["type"].(string)
		switch vt, _ := models.ParseVoteType(typ); vt {
		case models.VoteUp:
			tally.Up++
		case models.VoteDown:
			tally.Down++
		}
	}
	return tally, nil
}

// CombineWithLocalPosts adds posts saved on this device to a remote list.
// A local post is skipped when the remote list already has its id or the
// same title and body. The result is newest first.
func (s *Store) CombineWithLocalPosts(ctx context.Context, remote []models.Post) []models.Post {
	local, err := s.LocalPosts(ctx)
	if err != nil {
		s.log.Warn("local posts unavailable", zap.Error(err))
		return remote
	}

	seenID := make(map[string]bool, len(remote))
	seenContent := make(map[string]bool, len(remote))
	out := make([]models.Post, 0, len(remote)+len(local))
	for _, p := range remote {
		seenID[p.ID] = true
		seenContent[contentKey(p)] = true
		out = append(out, p)
	}
	for _, p := range local {
		if seenID[p.ID] || seenContent[contentKey(p)] {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortTime().After(out[j].SortTime())
	})
	return out
}

func contentKey(p models.Post) string {
	return strings.TrimSpace(p.Title) + "\x00" + strings.TrimSpace(p.Body)
}
