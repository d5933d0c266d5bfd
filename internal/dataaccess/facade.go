// Package dataaccess is the read path. Every read walks the same tiers:
// data held on the device, the remote data tree, the built-in fallback
// dataset, and finally an empty value. A remote failure of any kind moves
// on to the next tier rather than reaching the caller.
package dataaccess

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wearesierraleone/frontend/internal/fallback"
	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/metrics"
	"github.com/wearesierraleone/frontend/internal/models"
	"github.com/wearesierraleone/frontend/internal/resolver"
	"github.com/wearesierraleone/frontend/internal/store"
)

// Tier names, used in logs and metrics.
const (
	TierLocal    = "local"
	TierRemote   = "remote"
	TierLegacy   = "legacy"
	TierFallback = "fallback"
	TierEmpty    = "empty"
)

// Reader fetches JSON documents from the data tree.
type Reader interface {
	GetJSON(ctx context.Context, path string, v any) error
}

// Facade answers reads for posts, comments, votes and petitions.
type Facade struct {
	store  *store.Store
	remote Reader
	now    func() time.Time
	log    *zap.Logger
}

func New(s *store.Store, remote Reader) *Facade {
	return &Facade{
		store:  s,
		remote: remote,
		now:    time.Now,
		log:    applog.Named("dataaccess"),
	}
}

func (f *Facade) served(resource, tier string) {
	metrics.ReadTier.WithLabelValues(resource, tier).Inc()
}

// Posts lists approved posts from the data tree, falling back to the
// legacy aggregate file and then the built-in set, with posts submitted on
// this device merged in.
func (f *Facade) Posts(ctx context.Context) []models.Post {
	posts, tier := f.remotePosts(ctx)
	if len(posts) == 0 {
		posts, tier = fallback.Posts(), TierFallback
	}
	f.served("posts", tier)
	return f.store.CombineWithLocalPosts(ctx, posts)
}

func (f *Facade) remotePosts(ctx context.Context) ([]models.Post, string) {
	var idx models.IndexFile
	err := f.remote.GetJSON(ctx, "posts/index.json", &idx)
	if err == nil && len(idx.Files) > 0 {
		docs := fetchAll[models.Post](ctx, f, "posts/", idx.Files)
		approved := docs[:0]
		for _, p := range docs {
			if p.Status == models.PostApproved {
				approved = append(approved, p)
			}
		}
		return approved, TierRemote
	}
	if err != nil {
		f.log.Debug("posts index unavailable", zap.Error(err))
	}

	legacy, err := f.legacyPosts(ctx)
	if err != nil {
		f.log.Debug("legacy posts unavailable", zap.Error(err))
		return nil, TierEmpty
	}
	return legacy, TierLegacy
}

func (f *Facade) legacyPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := f.remote.GetJSON(ctx, "approved.json", &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Post finds one post in any tier. It returns a NotFound error only when
// every tier misses.
func (f *Facade) Post(ctx context.Context, id string) (models.Post, error) {
	if p, ok, err := f.store.LocalPost(ctx, id); err == nil && ok {
		f.served("post", TierLocal)
		return p, nil
	}

	var p models.Post
	err := f.remote.GetJSON(ctx, "posts/"+id+".json", &p)
	if err == nil {
		f.served("post", TierRemote)
		return p, nil
	}
	f.log.Debug("post not in data tree", zap.String("id", id), zap.Error(err))

	if legacy, err := f.legacyPosts(ctx); err == nil {
		for _, lp := range legacy {
			if lp.ID == id {
				f.served("post", TierLegacy)
				return lp, nil
			}
		}
	}

	if fp, ok := fallback.Post(id); ok {
		f.served("post", TierFallback)
		return fp, nil
	}
	f.served("post", TierEmpty)
	return models.Post{}, models.NewNotFoundError("post", id)
}

// Comments returns the flat comment list for a post: remote comments
// merged with those written on this device.
func (f *Facade) Comments(ctx context.Context, postID string) []models.Comment {
	remote, tier := f.remoteComments(ctx, postID)
	for i := range remote {
		if remote[i].PostID == "" {
			remote[i].PostID = postID
		}
	}

	local, err := f.store.LocalComments(ctx, postID)
	if err != nil {
		f.log.Warn("local comments unavailable", zap.String("postId", postID), zap.Error(err))
	}
	if len(local) > 0 && tier == TierEmpty {
		tier = TierLocal
	}
	f.served("comments", tier)
	return resolver.ResolveComments(local, remote)
}

// CommentTree is Comments arranged for display.
func (f *Facade) CommentTree(ctx context.Context, postID string) []models.Comment {
	return models.BuildTree(f.Comments(ctx, postID))
}

func (f *Facade) remoteComments(ctx context.Context, postID string) ([]models.Comment, string) {
	var idx models.IndexFile
	if err := f.remote.GetJSON(ctx, "comments/"+postID+"/index.json", &idx); err == nil {
		return fetchAll[models.Comment](ctx, f, "comments/"+postID+"/", idx.Files), TierRemote
	}

	var list []models.Comment
	if err := f.remote.GetJSON(ctx, "comments/"+postID+".json", &list); err == nil {
		return models.Flatten(list), TierRemote
	}

	var all map[string][]models.Comment
	if err := f.remote.GetJSON(ctx, "comments.json", &all); err == nil {
		if list, ok := all[postID]; ok {
			return models.Flatten(list), TierLegacy
		}
	}
	if fb := fallback.Comments(postID); len(fb) > 0 {
		return fb, TierFallback
	}
	return nil, TierEmpty
}

// Votes returns the tally for a post, merged with this device's votes.
func (f *Facade) Votes(ctx context.Context, postID string) models.VoteTally {
	remote, tier := f.remoteVotes(ctx, postID)

	local, err := f.store.LocalVoteStats(ctx, postID)
	if err != nil {
		f.log.Warn("local votes unavailable", zap.String("postId", postID), zap.Error(err))
	}
	f.served("votes", tier)
	return resolver.ResolveVotes(local, remote)
}

func (f *Facade) remoteVotes(ctx context.Context, postID string) (models.VoteTally, string) {
	var up, down json.RawMessage
	var upErr, downErr error
	var g errgroup.Group
	g.Go(func() error {
		upErr = f.remote.GetJSON(ctx, "upvotes/"+postID+".json", &up)
		return nil
	})
	g.Go(func() error {
		downErr = f.remote.GetJSON(ctx, "downvotes/"+postID+".json", &down)
		return nil
	})
	_ = g.Wait()
	if upErr == nil || downErr == nil {
		var t models.VoteTally
		if upErr == nil {
			t.Up = countOf(up)
		}
		if downErr == nil {
			t.Down = countOf(down)
		}
		return t, TierRemote
	}

	var combined struct {
		Up        int `json:"up"`
		Down      int `json:"down"`
		Upvotes   int `json:"upvotes"`
		Downvotes int `json:"downvotes"`
	}
	if err := f.remote.GetJSON(ctx, "votes/"+postID+".json", &combined); err == nil {
		return models.VoteTally{
			Up:   firstNonZero(combined.Up, combined.Upvotes),
			Down: firstNonZero(combined.Down, combined.Downvotes),
		}, TierRemote
	}

	var all map[string]json.RawMessage
	if err := f.remote.GetJSON(ctx, "votes.json", &all); err == nil {
		if raw, ok := all[postID]; ok {
			return legacyTally(raw), TierLegacy
		}
	}
	return fallback.Votes(postID), TierFallback
}

// PetitionView is a petition with its read-time display state.
type PetitionView struct {
	models.Petition
	DisplayState models.PetitionState `json:"displayState"`
	Progress     int                  `json:"progress"`
}

// Petition loads the petition for a post and its signatures. The display
// state is derived here and never written back.
func (f *Facade) Petition(ctx context.Context, postID string) (PetitionView, error) {
	var p models.Petition
	if err := f.remote.GetJSON(ctx, "petitions/"+postID+".json", &p); err != nil {
		f.served("petition", TierEmpty)
		if !models.IsNotFound(err) {
			f.log.Warn("petition unavailable", zap.String("postId", postID), zap.Error(err))
		}
		return PetitionView{}, models.NewNotFoundError("petition", postID)
	}
	if p.PostID == "" {
		p.PostID = postID
	}

	var raw json.RawMessage
	if err := f.remote.GetJSON(ctx, "signatures/"+postID+".json", &raw); err == nil {
		if sigs, ok := decodeSignatures(raw); ok {
			p.Signatures = sigs
		}
	}

	f.served("petition", TierRemote)
	return PetitionView{
		Petition:     p,
		DisplayState: p.DisplayState(f.now()),
		Progress:     p.Progress(),
	}, nil
}

// fetchAll loads each listed file concurrently. Files that fail are
// skipped. The result is newest first.
func fetchAll[T interface{ models.Post | models.Comment }](ctx context.Context, f *Facade, dir string, files []string) []T {
	docs := make([]*T, len(files))
	var g errgroup.Group
	g.SetLimit(8)
	for i, name := range files {
		g.Go(func() error {
			var doc T
			if err := f.remote.GetJSON(ctx, dir+strings.TrimLeft(name, "/"), &doc); err != nil {
				f.log.Debug("skipping unreadable document", zap.String("file", dir+name), zap.Error(err))
				return nil
			}
			docs[i] = &doc
			return nil
		})
	}
	_ = g.Wait()

	out := make([]T, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return docTime(out[i]).After(docTime(out[j]))
	})
	return out
}

func docTime(v any) time.Time {
	switch d := v.(type) {
	case models.Post:
		return d.SortTime()
	case models.Comment:
		return d.Timestamp
	}
	return time.Time{}
}

// countOf accepts {"count": n} or an array of vote events.
func countOf(raw json.RawMessage) int {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return len(arr)
	}
	var obj struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Count
	}
	return 0
}

// legacyTally accepts a bare upvote count or {"up", "down"}.
func legacyTally(raw json.RawMessage) models.VoteTally {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return models.VoteTally{Up: n}
	}
	var t models.VoteTally
	_ = json.Unmarshal(raw, &t)
	return t
}

func decodeSignatures(raw json.RawMessage) ([]models.Signature, bool) {
	var list []models.Signature
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var wrapped struct {
		Signatures []models.Signature `json:"signatures"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Signatures, true
	}
	return nil, false
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
