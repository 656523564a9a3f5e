package model

import (
	"time"
)

type ActivityKind string

const (
	ActivityLike        ActivityKind = "like"
	ActivityUnlike      ActivityKind = "unlike"
	ActivityComment     ActivityKind = "comment"
	ActivityPostCreated ActivityKind = "post_created"
	ActivityPostEdited  ActivityKind = "post_edited"
	ActivityPostDeleted ActivityKind = "post_deleted"
	// Any failed feed operation, Operation names which one.
	ActivityFailure ActivityKind = "failure"
)

// ActivityEvent is published on the event bus after a feed operation
// finishes.
type ActivityEvent struct {
	Kind      ActivityKind `json:"kind"`
	ActorID   string       `json:"actorId"`
	PostID    string       `json:"postId,omitempty"`
	CommentID string       `json:"commentId,omitempty"`
	Operation string       `json:"operation,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}
