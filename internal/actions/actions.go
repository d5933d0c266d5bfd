// Package actions implements the user-facing writes: apply locally first,
// then deliver now or queue for the sync engine.
package actions

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wearesierraleone/frontend/internal/identity"
	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/models"
	"github.com/wearesierraleone/frontend/internal/syncer"
)

// Receipt tells the caller where an action ended up.
type Receipt struct {
	// Delivered is true when the remote API accepted the action right away.
	Delivered bool `json:"delivered"`
	// Queued is true when the action waits in the sync queue.
	Queued bool `json:"queued"`
}

// Service runs user actions against the shared sync context.
type Service struct {
	sc       *syncer.Context
	identity *identity.Provider
	log      *zap.Logger
}

func New(sc *syncer.Context, id *identity.Provider) *Service {
	return &Service{sc: sc, identity: id, log: applog.Named("actions")}
}

// deliver sends body now when online and queues it otherwise or on failure.
// The queue write is detached from ctx: once the action is applied locally
// it must reach the queue even if the caller has gone away.
func (s *Service) deliver(ctx context.Context, typ models.ItemType, path string, body any) Receipt {
	if !s.sc.Status.IsOffline() {
		err := s.sc.Remote.PostJSON(ctx, path, body)
		if err == nil {
			return Receipt{Delivered: true}
		}
		s.log.Warn("remote write failed, queueing for sync", zap.String("path", path), zap.Error(err))
	}
	s.sc.Queue.Enqueue(context.WithoutCancel(ctx), typ, body)
	return Receipt{Queued: true}
}

// Vote records a vote event. A device may vote once per post.
func (s *Service) Vote(ctx context.Context, postID, voteType string) (models.Vote, Receipt, error) {
	vt, ok := models.ParseVoteType(voteType)
	if !ok {
		return models.Vote{}, Receipt{}, models.NewValidationError("type must be up or down")
	}
	vote := models.Vote{PostID: strings.TrimSpace(postID), Type: vt, Timestamp: s.sc.Store.Now()}
	if err := models.Validate(vote); err != nil {
		return vote, Receipt{}, err
	}
	if s.sc.Store.HasVoted(ctx, vote.PostID) {
		return vote, Receipt{}, models.NewValidationError("already voted on this post")
	}
	local := context.WithoutCancel(ctx)
	claimed, err := s.sc.Store.ClaimVote(local, vote.PostID, vote.Type)
	if err != nil {
		s.log.Warn("vote flag not saved", zap.String("postId", vote.PostID), zap.Error(err))
	} else if !claimed {
		return vote, Receipt{}, models.NewValidationError("already voted on this post")
	}

	saved, err := s.sc.Store.SaveVoteLocally(local, vote)
	if err != nil {
		s.log.Warn("vote not saved locally", zap.Error(err))
	}
	// The wire body carries only the event fields.
	body := models.Vote{PostID: vote.PostID, Type: vote.Type, Timestamp: vote.Timestamp}
	path := "/downvote"
	if vt == models.VoteUp {
		path = "/upvote"
	}
	return saved, s.deliver(ctx, models.ItemVote, path, body), nil
}

// Comment adds a top-level comment.
func (s *Service) Comment(ctx context.Context, postID, text string) (models.Comment, Receipt, error) {
	return s.addComment(ctx, postID, "", text)
}

// Reply adds a comment under parentID.
func (s *Service) Reply(ctx context.Context, postID, parentID, text string) (models.Comment, Receipt, error) {
	if strings.TrimSpace(parentID) == "" {
		return models.Comment{}, Receipt{}, models.NewValidationError("parentId is required")
	}
	return s.addComment(ctx, postID, parentID, text)
}

func (s *Service) addComment(ctx context.Context, postID, parentID, text string) (models.Comment, Receipt, error) {
	c := models.Comment{
		PostID:    strings.TrimSpace(postID),
		ParentID:  parentID,
		AnonID:    s.identity.GetOrCreateAnonID(ctx),
		Text:      strings.TrimSpace(text),
		Timestamp: s.sc.Store.Now(),
		Status:    models.CommentApproved,
	}
	if err := models.Validate(c); err != nil {
		return c, Receipt{}, err
	}

	saved, err := s.sc.Store.SaveCommentLocally(context.WithoutCancel(ctx), c)
	if err != nil {
		s.log.Warn("comment not saved locally", zap.Error(err))
		saved = c
	}
	body := saved
	body.Source = ""
	return saved, s.deliver(ctx, models.ItemComment, "/comment", body), nil
}

// FlagRequest is the /comment body that flags a comment for moderation.
type FlagRequest struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId"`
	Action    string `json:"action"`
}

// Flag marks a comment as flagged. The local copy, if any, changes at once.
func (s *Service) Flag(ctx context.Context, postID, commentID string) (Receipt, error) {
	if strings.TrimSpace(postID) == "" || strings.TrimSpace(commentID) == "" {
		return Receipt{}, models.NewValidationError("postId and commentId are required")
	}
	_, err := s.sc.Store.UpdateLocalComment(context.WithoutCancel(ctx), postID, commentID, func(c *models.Comment) {
		c.Status = models.CommentFlagged
	})
	if err != nil {
		s.log.Warn("local comment not flagged", zap.Error(err))
	}
	body := FlagRequest{PostID: postID, CommentID: commentID, Action: "flag"}
	return s.deliver(ctx, models.ItemComment, "/comment", body), nil
}

// SubmitPost stores a new post as pending and sends it for moderation.
func (s *Service) SubmitPost(ctx context.Context, post models.Post) (models.Post, Receipt, error) {
	post.Title = strings.TrimSpace(post.Title)
	post.Body = strings.TrimSpace(post.Body)
	post.ImageURL = strings.TrimSpace(post.ImageURL)
	post.Status = models.PostPending
	if err := models.Validate(post); err != nil {
		return post, Receipt{}, err
	}

	saved, err := s.sc.Store.SavePostLocally(context.WithoutCancel(ctx), post)
	if err != nil {
		s.log.Warn("post not saved locally", zap.Error(err))
		saved = post
	}
	body := saved
	body.LocalTimestamp = ""
	return saved, s.deliver(ctx, models.ItemPost, "/submit", body), nil
}

// Report is sent straight to the API. Reports are not queued, so a failure
// is returned to the caller.
func (s *Service) Report(ctx context.Context, postID, reason string) (models.Report, error) {
	r := models.Report{
		ID:        uuid.NewString(),
		PostID:    strings.TrimSpace(postID),
		Reporter:  s.identity.GetOrCreateAnonID(ctx),
		Timestamp: s.sc.Store.Now(),
		Reason:    strings.TrimSpace(reason),
	}
	if err := models.Validate(r); err != nil {
		return r, err
	}
	if s.sc.Status.IsOffline() {
		return r, models.NewNetworkFault("report", syncer.ErrOffline)
	}
	if err := s.sc.Remote.PostJSON(ctx, "/report", r); err != nil {
		return r, err
	}
	return r, nil
}

// Sign adds this device's signature to a petition. Like reports,
// signatures are not queued.
func (s *Service) Sign(ctx context.Context, postID, name string) (models.Signature, error) {
	sig := models.Signature{
		PostID:    strings.TrimSpace(postID),
		AnonID:    s.identity.GetOrCreateAnonID(ctx),
		Name:      strings.TrimSpace(name),
		Timestamp: s.sc.Store.Now(),
	}
	if err := models.Validate(sig); err != nil {
		return sig, err
	}
	if s.sc.Status.IsOffline() {
		return sig, models.NewNetworkFault("sign", syncer.ErrOffline)
	}
	if err := s.sc.Remote.PostJSON(ctx, "/sign", sig); err != nil {
		return sig, err
	}
	return sig, nil
}
