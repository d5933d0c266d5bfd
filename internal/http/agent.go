package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wearesierraleone/frontend/internal/actions"
	"github.com/wearesierraleone/frontend/internal/connectivity"
	"github.com/wearesierraleone/frontend/internal/dataaccess"
	"github.com/wearesierraleone/frontend/internal/models"
	"github.com/wearesierraleone/frontend/internal/queue"
	"github.com/wearesierraleone/frontend/internal/syncer"
)

// SyncTrigger is the connectivity monitor as seen by the API.
type SyncTrigger interface {
	IsOffline() bool
	TriggerNow(ctx context.Context) (syncer.Result, error)
}

// FollowUps reports whether a retry drain is scheduled.
type FollowUps interface {
	FollowUpPending() bool
}

// Overrider pins the network state, for testing offline behaviour by hand.
type Overrider interface {
	Override(online *bool)
}

// AgentEnv carries the dependencies of the agent API.
type AgentEnv struct {
	Actions *actions.Service
	Data    *dataaccess.Facade
	Queue   *queue.Queue
	Sync    SyncTrigger
	Engine  FollowUps
	// Network is nil when the network state cannot be overridden.
	Network Overrider
	Mode    string
}

// receiptStatus is 201 for a write the API accepted and 202 for one that
// waits in the queue.
func receiptStatus(r actions.Receipt) int {
	if r.Delivered {
		return http.StatusCreated
	}
	return http.StatusAccepted
}

func (a *AgentEnv) GetPosts(c *gin.Context) {
	c.JSON(http.StatusOK, a.Data.Posts(c.Request.Context()))
}

func (a *AgentEnv) GetPost(c *gin.Context) {
	post, err := a.Data.Post(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// GetComments returns the flat list, or the reply tree with ?tree=true.
func (a *AgentEnv) GetComments(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("tree") == "true" {
		c.JSON(http.StatusOK, a.Data.CommentTree(ctx, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, a.Data.Comments(ctx, c.Param("id")))
}

func (a *AgentEnv) GetVotes(c *gin.Context) {
	c.JSON(http.StatusOK, a.Data.Votes(c.Request.Context(), c.Param("id")))
}

func (a *AgentEnv) GetPetition(c *gin.Context) {
	view, err := a.Data.Petition(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *AgentEnv) SubmitPost(c *gin.Context) {
	var post models.Post
	if err := c.ShouldBindJSON(&post); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	saved, receipt, err := a.Actions.SubmitPost(c.Request.Context(), post)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(receiptStatus(receipt), gin.H{"success": true, "post": saved, "receipt": receipt})
}

type agentVoteInput struct {
	Type string `json:"type" binding:"required"`
}

func (a *AgentEnv) Vote(c *gin.Context) {
	var input agentVoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	vote, receipt, err := a.Actions.Vote(c.Request.Context(), c.Param("id"), input.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(receiptStatus(receipt), gin.H{"success": true, "vote": vote, "receipt": receipt})
}

type agentCommentInput struct {
	Text     string `json:"text"`
	ParentID string `json:"parentId"`
}

// Comment adds a comment, or a reply when parentId is set.
func (a *AgentEnv) Comment(c *gin.Context) {
	var input agentCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	var (
		comment models.Comment
		receipt actions.Receipt
		err     error
	)
	if input.ParentID != "" {
		comment, receipt, err = a.Actions.Reply(ctx, c.Param("id"), input.ParentID, input.Text)
	} else {
		comment, receipt, err = a.Actions.Comment(ctx, c.Param("id"), input.Text)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(receiptStatus(receipt), gin.H{"success": true, "comment": comment, "receipt": receipt})
}

func (a *AgentEnv) FlagComment(c *gin.Context) {
	receipt, err := a.Actions.Flag(c.Request.Context(), c.Param("id"), c.Param("commentId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(receiptStatus(receipt), gin.H{"success": true, "receipt": receipt})
}

type reportInput struct {
	Reason string `json:"reason"`
}

func (a *AgentEnv) Report(c *gin.Context) {
	var input reportInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	report, err := a.Actions.Report(c.Request.Context(), c.Param("id"), input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "report": report})
}

type signInput struct {
	Name string `json:"name"`
}

func (a *AgentEnv) Sign(c *gin.Context) {
	var input signInput
	// The name is optional, so an empty body is fine.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "Invalid input: "+err.Error())
			return
		}
	}
	sig, err := a.Actions.Sign(c.Request.Context(), c.Param("id"), input.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "signature": sig})
}

func (a *AgentEnv) SyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":            a.Mode,
		"offline":         a.Sync.IsOffline(),
		"queued":          a.Queue.Len(c.Request.Context()),
		"followUpPending": a.Engine.FollowUpPending(),
	})
}

func (a *AgentEnv) SyncNow(c *gin.Context) {
	result, err := a.Sync.TriggerNow(c.Request.Context())
	if errors.Is(err, connectivity.ErrThrottled) {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

type connectivityInput struct {
	// Online pins the state; null hands control back to the probe.
	Online *bool `json:"online"`
}

func (a *AgentEnv) SetConnectivity(c *gin.Context) {
	if a.Network == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"success": false, "error": "network state cannot be overridden"})
		return
	}
	var input connectivityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input: "+err.Error())
		return
	}
	a.Network.Override(input.Online)
	c.JSON(http.StatusOK, gin.H{"success": true, "offline": a.Sync.IsOffline()})
}
