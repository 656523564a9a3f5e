package model

import (
	"time"
)

/*

Like is a "many-to-many" relation of user liking a post, table "likes".

PostID, UserID: composite primary key, at most one like per (post, user)
CreatedAt: time when relation is created

A like is created by toggling on and deleted by toggling off, never updated.

*/

type Like struct {
	PostID    string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	CreatedAt time.Time
	Post      Post `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	User      User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
