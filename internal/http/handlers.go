package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wearesierraleone/frontend/internal/flatfile"
	"github.com/wearesierraleone/frontend/internal/models"
	"github.com/wearesierraleone/frontend/internal/ws"
)

// Default per-IP rate limits for the content-creation endpoints.
const (
	rateLimitRPS   = 5
	rateLimitBurst = 10
)

// Publisher fans an event out to page clients.
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Env carries the dependencies of the data server handlers.
type Env struct {
	Tree *flatfile.Tree
	Hub  Publisher
	Now  func() time.Time
	Log  *zap.Logger

	// WriteRate and WriteBurst limit submissions, reports and petitions per
	// client IP. Zero values select the defaults.
	WriteRate  rate.Limit
	WriteBurst int
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

type voteInput struct {
	PostID    string    `json:"postId" binding:"required"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Upvote and Downvote fix the direction from the path.
func (e *Env) Upvote(c *gin.Context)   { e.vote(c, models.VoteUp) }
func (e *Env) Downvote(c *gin.Context) { e.vote(c, models.VoteDown) }

// Vote reads the direction from the body.
func (e *Env) Vote(c *gin.Context) { e.vote(c, "") }

func (e *Env) vote(c *gin.Context, fixed models.VoteType) {
	var input voteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	vt := fixed
	if vt == "" {
		parsed, ok := models.ParseVoteType(input.Type)
		if !ok {
			badRequest(c, "type must be up or down")
			return
		}
		vt = parsed
	}
	ts := input.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	tally, err := e.Tree.AddVote(models.Vote{PostID: input.PostID, Type: vt, Timestamp: ts})
	if err != nil {
		respondError(c, err)
		return
	}
	e.Hub.Publish("vote", gin.H{"postId": input.PostID, "up": tally.Up, "down": tally.Down})

	if vt == models.VoteUp && models.EligibleForPetition(tally) {
		e.promote(input.PostID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "votes": tally})
}

// promote turns a post into a petition once it crosses the threshold.
// Posts the server has never seen are skipped.
func (e *Env) promote(postID string) {
	post, ok, err := e.Tree.Post(postID)
	if err != nil || !ok {
		return
	}
	created, err := e.Tree.CreatePetition(models.NewPetitionFromPost(post, e.now()))
	if err != nil {
		e.Log.Warn("failed to create petition", zap.String("postId", postID), zap.Error(err))
		return
	}
	if created {
		e.Hub.Publish("petition", gin.H{"postId": postID})
	}
}

// commentInput covers every /comment shape: a bare comment or reply,
// {postId, comment, action:"add"}, {postId, comments, action:"reply"|"flag"}
// carrying the whole forest, and {postId, commentId, action:"flag"}.
type commentInput struct {
	models.Comment
	Wrapped   *models.Comment  `json:"comment"`
	Forest    []models.Comment `json:"comments"`
	CommentID string           `json:"commentId"`
	Action    string           `json:"action"`
}

func (e *Env) Comment(c *gin.Context) {
	var input commentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}

	comment := input.Comment
	switch input.Action {
	case "":
	case "add":
		if input.Wrapped == nil {
			badRequest(c, "comment is required")
			return
		}
		comment = *input.Wrapped
		if comment.PostID == "" {
			comment.PostID = input.PostID
		}
	case "reply", "flag":
		if input.Forest != nil {
			e.applyForest(c, input.PostID, input.Forest)
			return
		}
		if input.Action == "flag" {
			e.flagComment(c, input.PostID, input.CommentID)
			return
		}
		if input.Wrapped != nil {
			comment = *input.Wrapped
			if comment.PostID == "" {
				comment.PostID = input.PostID
			}
		}
		if comment.ParentID == "" {
			badRequest(c, "parentId is required for a reply")
			return
		}
	default:
		badRequest(c, "unknown action "+input.Action)
		return
	}
	e.addComment(c, comment)
}

func (e *Env) addComment(c *gin.Context, comment models.Comment) {
	comment.Text = strings.TrimSpace(comment.Text)
	comment.Replies = nil
	if err := models.Validate(comment); err != nil {
		respondError(c, err)
		return
	}
	if comment.Timestamp.IsZero() {
		comment.Timestamp = e.now()
	}
	// Flagging is a separate action; new comments never arrive flagged.
	comment.Status = models.CommentApproved

	saved, err := e.Tree.AddComment(comment)
	if err != nil {
		respondError(c, err)
		return
	}
	e.Hub.Publish("comment", saved)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Comment added successfully",
		"commentId": saved.ID,
	})
}

func (e *Env) applyForest(c *gin.Context, postID string, forest []models.Comment) {
	if postID == "" {
		badRequest(c, "postId is required")
		return
	}
	added, changed, err := e.Tree.ApplyCommentList(postID, forest)
	if err != nil {
		respondError(c, err)
		return
	}
	if added+changed > 0 {
		e.Hub.Publish("comments_updated", gin.H{"postId": postID})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "added": added, "updated": changed})
}

func (e *Env) flagComment(c *gin.Context, postID, commentID string) {
	if postID == "" || commentID == "" {
		badRequest(c, "postId and commentId are required")
		return
	}
	ok, err := e.Tree.SetCommentStatus(postID, commentID, models.CommentFlagged)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, models.NewNotFoundError("comment", commentID))
		return
	}
	e.Hub.Publish("comment_flagged", gin.H{"postId": postID, "commentId": commentID})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Comment flagged", "commentId": commentID})
}

// Submit stores a post under a server id. Posts default to pending; only
// approved posts are listed and announced.
func (e *Env) Submit(c *gin.Context) {
	var post models.Post
	if err := c.ShouldBindJSON(&post); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	post.Title = strings.TrimSpace(post.Title)
	post.Body = strings.TrimSpace(post.Body)
	if err := models.Validate(post); err != nil {
		respondError(c, err)
		return
	}
	post.ID = "post-" + uuid.NewString()
	post.LocalTimestamp = ""
	if post.Status == "" {
		post.Status = models.PostPending
	}
	if post.Timestamp.IsZero() {
		post.Timestamp = e.now()
	}

	if err := e.Tree.SavePost(post); err != nil {
		respondError(c, err)
		return
	}
	if post.Status == models.PostApproved {
		e.Hub.Publish("new_post", post)
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Post submitted", "postId": post.ID})
}

func (e *Env) Report(c *gin.Context) {
	var report models.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	if err := models.Validate(report); err != nil {
		respondError(c, err)
		return
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = e.now()
	}
	if err := e.Tree.AddReport(report); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Report received", "reportId": report.ID})
}

func (e *Env) Sign(c *gin.Context) {
	var sig models.Signature
	if err := c.ShouldBindJSON(&sig); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	if err := models.Validate(sig); err != nil {
		respondError(c, err)
		return
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = e.now()
	}
	count, err := e.Tree.AddSignature(sig)
	if err != nil {
		respondError(c, err)
		return
	}
	e.Hub.Publish("signature", gin.H{"postId": sig.PostID, "signatures": count})
	c.JSON(http.StatusOK, gin.H{"success": true, "signatures": count})
}

type createPetitionInput struct {
	PostID    string          `json:"postId" binding:"required"`
	Petition  models.Petition `json:"petition"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e *Env) CreatePetition(c *gin.Context) {
	var input createPetitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	p := input.Petition
	p.PostID = input.PostID
	if err := models.Validate(p); err != nil {
		respondError(c, err)
		return
	}
	if p.Deadline == nil {
		badRequest(c, "Missing required petition fields: deadline")
		return
	}
	if p.State == "" {
		p.State = models.PetitionOpen
	}

	created, err := e.Tree.CreatePetition(p)
	if err != nil {
		respondError(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "A petition already exists for this post"})
		return
	}
	e.Hub.Publish("petition", gin.H{"postId": p.PostID, "petitionId": p.ID})
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Petition created successfully",
		"petitionId": p.ID,
		"postId":     p.PostID,
	})
}

var _ Publisher = (*ws.Hub)(nil)
