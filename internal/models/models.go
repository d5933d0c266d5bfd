package models

import (
	"encoding/json"
	"strings"
	"time"
)

// PostStatus is the moderation state of a post.
type PostStatus string

const (
	PostPending  PostStatus = "pending"
	PostApproved PostStatus = "approved"
	PostRejected PostStatus = "rejected"
)

// Post represents a single citizen submission.
type Post struct {
	ID        string     `json:"id"`
	Title     string     `json:"title" validate:"required,notblank,max=200"`
	Body      string     `json:"body" validate:"required,notblank,max=10000"`
	Category  string     `json:"category,omitempty" validate:"max=50"`
	ImageURL  string     `json:"imageUrl,omitempty" validate:"omitempty,imageurl"`
	Timestamp time.Time  `json:"timestamp"`
	Status    PostStatus `json:"status"`

	// LocalTimestamp is set when the post is written to the Local Store.
	LocalTimestamp string `json:"_timestamp,omitempty"`
}

// SortTime is the instant used to order posts, newest first.
func (p Post) SortTime() time.Time {
	if t, err := time.Parse(time.RFC3339Nano, p.LocalTimestamp); err == nil {
		return t
	}
	return p.Timestamp
}

// CommentStatus is the moderation state of a comment.
type CommentStatus string

const (
	CommentApproved CommentStatus = "approved"
	CommentFlagged  CommentStatus = "flagged"
	CommentRejected CommentStatus = "rejected"
)

// Comment is stored flat and keyed by ID. ParentID links replies to their
// parent; Replies is only populated by BuildTree for rendering and by
// legacy nested documents.
type Comment struct {
	ID        string        `json:"id"`
	PostID    string        `json:"postId" validate:"required"`
	ParentID  string        `json:"parentId,omitempty"`
	AnonID    string        `json:"anonId"`
	Text      string        `json:"text" validate:"required,notblank,max=5000"`
	Timestamp time.Time     `json:"timestamp"`
	Status    CommentStatus `json:"status"`
	Replies   []Comment     `json:"replies,omitempty"`

	// Source records which side of a merge the comment came from.
	Source         string `json:"source,omitempty"`
	LocalTimestamp string `json:"_timestamp,omitempty"`
}

// VoteType is the direction of a vote.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// ParseVoteType accepts the canonical values and the aliases older
// clients send ("upvote", "downvote", and the bare "vote" button).
func ParseVoteType(s string) (VoteType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "upvote", "vote":
		return VoteUp, true
	case "down", "downvote":
		return VoteDown, true
	}
	return "", false
}

// Vote is a write-once event. Tallies are derived by counting.
type Vote struct {
	ID        string    `json:"id,omitempty"`
	PostID    string    `json:"postId" validate:"required"`
	Type      VoteType  `json:"type" validate:"required,oneof=up down"`
	Timestamp time.Time `json:"timestamp"`

	LocalTimestamp string `json:"_timestamp,omitempty"`
}

// VoteTally is the derived count of votes for one post.
type VoteTally struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

// Score is upvotes minus downvotes.
func (t VoteTally) Score() int {
	return t.Up - t.Down
}

// Report flags a post for moderator attention.
type Report struct {
	ID        string    `json:"id,omitempty"`
	PostID    string    `json:"postId" validate:"required"`
	Reporter  string    `json:"reporter"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason" validate:"required,notblank,max=500"`
}

// ItemType names the kind of action carried by a sync queue item.
type ItemType string

const (
	ItemVote    ItemType = "vote"
	ItemComment ItemType = "comment"
	ItemPost    ItemType = "post"
)

// SyncQueueItem is a user action that has not been confirmed by the remote API.
// Data is kept raw so that items of unknown type survive a round trip untouched.
type SyncQueueItem struct {
	ID           string          `json:"id,omitempty"`
	Type         ItemType        `json:"type"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	SyncAttempts int             `json:"syncAttempts"`
}

// IndexFile lists the per-item documents in a data directory.
type IndexFile struct {
	Files []string `json:"files"`
}
