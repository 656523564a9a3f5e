// Package store is the table and remote procedure layer over Postgres. It
// owns the users, posts, comments and likes tables and the aggregate
// lookups the feed needs (like count, comment count, liker list).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a gorm backed implementation of the table contract. It is safe
// for concurrent use.
type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	return translateError(s.db(ctx).Create(user).Error, "create user")
}

// GetUser expects exactly one row, CodeNoRows otherwise.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var users []model.User
	if err := s.db(ctx).Where("id = ?", id).Limit(2).Find(&users).Error; err != nil {
		return nil, translateError(err, "get user")
	}
	switch len(users) {
	case 0:
		return nil, backend.NewError(backend.CodeNoRows, "user not found: "+id, nil)
	case 1:
		return &users[0], nil
	default:
		return nil, backend.NewError(backend.CodeMultipleRows, "multiple users for id: "+id, nil)
	}
}

// UpdateUser overwrites the editable profile columns of user.Id.
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	res := s.db(ctx).Model(&model.User{}).Where("id = ?", user.Id).Updates(map[string]interface{}{
		"email":      user.Email,
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"avatar_url": user.AvatarUrl,
		"updated_at": user.UpdatedAt,
	})
	if res.Error != nil {
		return translateError(res.Error, "update user")
	}
	if res.RowsAffected == 0 {
		return backend.NewError(backend.CodeNoRows, "user not found: "+user.Id, nil)
	}
	return nil
}

// ListPosts returns all posts newest first with their authors.
func (s *Store) ListPosts(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	err := s.db(ctx).
		Preload("Author").
		Order("created_at desc").
		Find(&posts).Error
	return posts, translateError(err, "list posts")
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	err := s.db(ctx).Preload("Author").Where("id = ?", id).First(&post).Error
	if err != nil {
		return nil, translateError(err, "get post "+id)
	}
	return &post, nil
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	if post.Id == "" {
		post.Id = uuid.New().String()
	}
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now
	// Author is looked up by AuthorID, never upserted from here.
	err := s.db(ctx).Omit(clause.Associations).Create(post).Error
	return translateError(err, "create post")
}

// UpdatePost changes content and images of a post owned by authorID.
func (s *Store) UpdatePost(ctx context.Context, postID, authorID, content string, images []string) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkPostOwner(tx, postID, authorID); err != nil {
			return err
		}
		err := tx.Model(&model.Post{}).Where("id = ?", postID).Updates(map[string]interface{}{
			"content":    content,
			"images":     pq.StringArray(images),
			"updated_at": time.Now(),
		}).Error
		return translateError(err, "update post")
	})
}

// DeletePost removes a post owned by authorID together with its likes and
// comments.
func (s *Store) DeletePost(ctx context.Context, postID, authorID string) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkPostOwner(tx, postID, authorID); err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&model.Like{}).Error; err != nil {
			return translateError(err, "delete post likes")
		}
		if err := tx.Where("post_id = ?", postID).Delete(&model.Comment{}).Error; err != nil {
			return translateError(err, "delete post comments")
		}
		return translateError(tx.Where("id = ?", postID).Delete(&model.Post{}).Error, "delete post")
	})
}

func checkPostOwner(tx *gorm.DB, postID, authorID string) error {
	var post model.Post
	if err := tx.Select("id", "author_id").Where("id = ?", postID).First(&post).Error; err != nil {
		return translateError(err, "get post "+postID)
	}
	if post.AuthorID != authorID {
		return backend.NewError(backend.CodeForbidden, "post "+postID+" is not owned by "+authorID, nil)
	}
	return nil
}
