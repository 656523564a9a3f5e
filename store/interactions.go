package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateLike records that userID likes postID. A second like on the same
// pair fails with CodeUniqueViolation.
func (s *Store) CreateLike(ctx context.Context, postID, userID string) error {
	like := model.Like{PostID: postID, UserID: userID, CreatedAt: time.Now()}
	err := s.db(ctx).Omit(clause.Associations).Create(&like).Error
	return translateError(err, "create like")
}

func (s *Store) DeleteLike(ctx context.Context, postID, userID string) error {
	err := s.db(ctx).Where("post_id = ? AND user_id = ?", postID, userID).Delete(&model.Like{}).Error
	return translateError(err, "delete like")
}

func (s *Store) LikeCount(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&model.Like{}).Where("post_id = ?", postID).Count(&count).Error
	return count, translateError(err, "like count")
}

func (s *Store) CommentCount(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&model.Comment{}).Where("post_id = ?", postID).Count(&count).Error
	return count, translateError(err, "comment count")
}

// LikedUsers lists who liked postID, earliest like first.
func (s *Store) LikedUsers(ctx context.Context, postID string) ([]model.Liker, error) {
	likers := []model.Liker{}
	err := s.db(ctx).
		Table("likes").
		Select("likes.user_id AS user_id, users.username AS username").
		Joins("LEFT JOIN users ON users.id = likes.user_id").
		Where("likes.post_id = ?", postID).
		Order("likes.created_at asc").
		Scan(&likers).Error
	return likers, translateError(err, "liked users")
}

// ListComments returns the flat comments of postID, oldest first.
func (s *Store) ListComments(ctx context.Context, postID string) ([]model.Comment, error) {
	var comments []model.Comment
	err := s.db(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at asc").
		Find(&comments).Error
	return comments, translateError(err, "list comments")
}

// CreateComment inserts a comment. A parent must exist on the same post.
func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) error {
	if comment.Id == "" {
		comment.Id = uuid.New().String()
	}
	comment.CreatedAt = time.Now()
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if comment.ParentCommentID != nil {
			var parent model.Comment
			err := tx.Select("id", "post_id").Where("id = ?", *comment.ParentCommentID).First(&parent).Error
			if err != nil {
				return backend.NewError(backend.CodeInvalidReference, "parent comment not found", err)
			}
			if parent.PostID != comment.PostID {
				return backend.NewError(backend.CodeInvalidReference, "parent comment belongs to another post", nil)
			}
		}
		return translateError(tx.Omit(clause.Associations).Create(comment).Error, "create comment")
	})
}

type likeActivityRow struct {
	PostID      string
	UserID      string
	CreatedAt   time.Time
	Username    string
	AvatarUrl   *string
	PostContent string
}

// LikeActivity returns likes by other users on posts written by authorID
// after since, newest first.
func (s *Store) LikeActivity(ctx context.Context, authorID string, since time.Time, limit int) ([]model.Notification, error) {
	var rows []likeActivityRow
	err := s.db(ctx).
		Table("likes").
		Select("likes.post_id, likes.user_id, likes.created_at, users.username, users.avatar_url, posts.content AS post_content").
		Joins("JOIN posts ON posts.id = likes.post_id").
		Joins("LEFT JOIN users ON users.id = likes.user_id").
		Where("posts.author_id = ? AND likes.user_id <> ? AND likes.created_at > ?", authorID, authorID, since).
		Order("likes.created_at desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err, "like activity")
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, model.Notification{
			Id:             model.LikeNotificationId(r.PostID, r.UserID),
			Kind:           model.NotificationKindLike,
			ActorID:        r.UserID,
			ActorName:      r.Username,
			ActorAvatarUrl: r.AvatarUrl,
			PostID:         r.PostID,
			Excerpt:        r.PostContent,
			CreatedAt:      r.CreatedAt,
		})
	}
	return notifications, nil
}

type commentActivityRow struct {
	Id             string
	PostID         string
	AuthorID       string
	Content        string
	CreatedAt      time.Time
	Username       string
	AvatarUrl      *string
	ParentAuthorID *string
}

// CommentActivity returns comments by other users on posts written by
// authorID, and replies to comments written by authorID, newest first.
func (s *Store) CommentActivity(ctx context.Context, authorID string, since time.Time, limit int) ([]model.Notification, error) {
	var rows []commentActivityRow
	err := s.db(ctx).
		Table("comments").
		Select("comments.id, comments.post_id, comments.author_id, comments.content, comments.created_at, users.username, users.avatar_url, parents.author_id AS parent_author_id").
		Joins("JOIN posts ON posts.id = comments.post_id").
		Joins("LEFT JOIN users ON users.id = comments.author_id").
		Joins("LEFT JOIN comments AS parents ON parents.id = comments.parent_comment_id").
		Where("comments.author_id <> ? AND comments.created_at > ? AND (posts.author_id = ? OR parents.author_id = ?)", authorID, since, authorID, authorID).
		Order("comments.created_at desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err, "comment activity")
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		kind := model.NotificationKindComment
		if r.ParentAuthorID != nil && *r.ParentAuthorID == authorID {
			kind = model.NotificationKindReply
		}
		commentID := r.Id
		notifications = append(notifications, model.Notification{
			Id:             model.CommentNotificationId(r.Id),
			Kind:           kind,
			ActorID:        r.AuthorID,
			ActorName:      r.Username,
			ActorAvatarUrl: r.AvatarUrl,
			PostID:         r.PostID,
			CommentID:      &commentID,
			Excerpt:        r.Content,
			CreatedAt:      r.CreatedAt,
		})
	}
	return notifications, nil
}
