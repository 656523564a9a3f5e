package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/it35lab/campusfeed/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// create user with name, do sanity checks and returns its Id
func TestCreateUserAndValidate(t *testing.T, name string, userId string, db *gorm.DB) (id string) {
	user := model.User{
		Id:        userId,
		Email:     name + "@nbsc.edu.ph",
		Username:  name,
		CreatedAt: time.Now(),
	}
	require.Nil(t, db.Create(&user).Error)

	var fetched model.User
	require.Nil(t, db.Where("id = ?", userId).First(&fetched).Error)
	require.Equal(t, name, fetched.Username)
	require.Equal(t, name+"@nbsc.edu.ph", fetched.Email)

	return fetched.Id
}

// create post by authorId, do sanity checks and returns its Id
func TestCreatePostAndValidate(t *testing.T, authorId string, content string, db *gorm.DB) (id string) {
	post := model.Post{
		Id:        uuid.New().String(),
		AuthorID:  authorId,
		Content:   content,
		CreatedAt: time.Now(),
	}
	require.Nil(t, db.Omit(clause.Associations).Create(&post).Error)

	var fetched model.Post
	require.Nil(t, db.Preload("Author").Where("id = ?", post.Id).First(&fetched).Error)
	require.Equal(t, content, fetched.Content)
	require.Equal(t, authorId, fetched.Author.Id)

	return fetched.Id
}

// create comment under postId, parentId may be nil for a root comment
func TestCreateCommentAndValidate(t *testing.T, postId string, authorId string, content string, parentId *string, db *gorm.DB) (id string) {
	comment := model.Comment{
		Id:              uuid.New().String(),
		PostID:          postId,
		AuthorID:        authorId,
		Content:         content,
		ParentCommentID: parentId,
		CreatedAt:       time.Now(),
	}
	require.Nil(t, db.Omit(clause.Associations).Create(&comment).Error)

	var count int64
	require.Nil(t, db.Model(&model.Comment{}).Where("post_id = ?", postId).Count(&count).Error)
	require.True(t, count > 0)

	return comment.Id
}
