package model

import (
	"time"
)

type NotificationKind string

const (
	NotificationKindLike    NotificationKind = "LIKE"
	NotificationKindComment NotificationKind = "COMMENT"
	NotificationKindReply   NotificationKind = "REPLY"
)

/*

Notification is an aggregated activity on the viewer's content. It is
derived from likes and comments, never persisted itself. Only the read
status is stored, keyed by Id.

Id: stable id, "like:<post>:<user>" or "comment:<comment>"
ActorID, ActorName, ActorAvatarUrl: who did it
PostID: post the activity happened on
CommentID: comment id for COMMENT and REPLY
Excerpt: comment content for COMMENT and REPLY, post content for LIKE
Read: whether the viewer marked it as read

*/

type Notification struct {
	Id             string           `json:"id"`
	Kind           NotificationKind `json:"kind"`
	ActorID        string           `json:"actorId"`
	ActorName      string           `json:"actorName"`
	ActorAvatarUrl *string          `json:"actorAvatarUrl"`
	PostID         string           `json:"postId"`
	CommentID      *string          `json:"commentId,omitempty"`
	Excerpt        string           `json:"excerpt"`
	CreatedAt      time.Time        `json:"createdAt"`
	Read           bool             `json:"read"`
}

func LikeNotificationId(postId, userId string) string {
	return "like:" + postId + ":" + userId
}

func CommentNotificationId(commentId string) string {
	return "comment:" + commentId
}
