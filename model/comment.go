package model

import (
	"time"
)

/*

Comment is a reply to a post or to another comment, table "comments".

Id: primary key
CreatedAt: time when entity is created, siblings are ordered by it asc
PostID: post the comment belongs to
AuthorID:
Author: "belongs-to" relation
Content: comment text, never blank
ParentCommentID: nil for a root comment, otherwise a comment on the same post

*/

type Comment struct {
	Id              string    `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
	PostID          string    `gorm:"index" json:"postId"`
	Post            Post      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	AuthorID        string    `json:"authorId"`
	Author          User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Content         string    `json:"content"`
	ParentCommentID *string   `gorm:"index" json:"parentCommentId"`
}

// CommentNode is a comment with its direct replies. It only lives on the
// client side and is rebuilt on every fetch.
type CommentNode struct {
	Comment Comment        `json:"comment"`
	Replies []*CommentNode `json:"replies"`
}
