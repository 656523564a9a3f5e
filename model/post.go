package model

import (
	"time"

	"github.com/lib/pq"
)

/*

Post is a user authored feed entry, table "posts".

Id: primary key
CreatedAt: time when entity is created, feed is ordered by it desc
UpdatedAt: time of the last edit

AuthorID:
Author: the user who wrote the post, "belongs-to" relation, carries display
		name and avatar
Content: post's content in plain text
Images: public urls of attached images, zero or more

LikeCount, CommentCount, LikedByUser, LikedBy are never persisted, they are
resolved per fetch and scoped to the viewing session.

*/

type Post struct {
	Id        string         `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	AuthorID  string         `gorm:"index" json:"authorId"`
	Author    User           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Content   string         `json:"content"`
	Images    pq.StringArray `gorm:"type:text[]" json:"images"`

	LikeCount    int64   `gorm:"-" json:"likeCount"`
	CommentCount int64   `gorm:"-" json:"commentCount"`
	LikedByUser  bool    `gorm:"-" json:"likedByUser"`
	LikedBy      []Liker `gorm:"-" json:"likedBy"`
}

// Clone returns a copy that shares no slices with p.
func (p Post) Clone() Post {
	c := p
	if p.Images != nil {
		c.Images = append(pq.StringArray{}, p.Images...)
	}
	if p.LikedBy != nil {
		c.LikedBy = append([]Liker{}, p.LikedBy...)
	}
	if p.Author.AvatarUrl != nil {
		url := *p.Author.AvatarUrl
		c.Author.AvatarUrl = &url
	}
	return c
}

// Liker is a user who liked a post, used for "liked by" display.
type Liker struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
