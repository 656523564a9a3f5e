package feed

import (
	"context"
	"strings"

	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
)

const (
	MessageEmptyComment = "Comment cannot be empty."
)

// ToggleLike likes postID for the viewer, or unlikes it when the viewer
// already does. The like row is written first, local counts only change
// after the write succeeded.
func (a *Aggregator) ToggleLike(ctx context.Context, postID string) (model.Post, error) {
	viewer, err := a.requireViewer()
	if err != nil {
		return model.Post{}, err
	}

	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	post, err := a.lookupPost(ctx, postID)
	if err != nil {
		return model.Post{}, a.fail("like", postID, err, "Failed to like post.")
	}

	if post.LikedByUser {
		if err := a.store.DeleteLike(ctx, postID, viewer.Id); err != nil {
			return post, a.fail("unlike", postID, err, "Failed to unlike post.")
		}
		updated := a.applyUnlike(post, viewer.Id)
		a.publish(model.ActivityEvent{Kind: model.ActivityUnlike, PostID: postID})
		return updated, nil
	}

	if err := a.store.CreateLike(ctx, postID, viewer.Id); err != nil {
		return post, a.fail("like", postID, err, "Failed to like post.")
	}
	likers, err := a.store.LikedUsers(ctx, postID)
	if err != nil {
		// The like is stored, only the "liked by" list is stale.
		a.log.WithField("post_id", postID).Warnln("cannot refresh likers after like", err)
		likers = nil
	}
	updated := a.applyLike(post, viewer, likers)
	a.publish(model.ActivityEvent{Kind: model.ActivityLike, PostID: postID})
	a.notify(updated.AuthorID, viewer, model.Notification{
		Id:      model.LikeNotificationId(postID, viewer.Id),
		Kind:    model.NotificationKindLike,
		PostID:  postID,
		Excerpt: updated.Content,
	})
	return updated, nil
}

// applyLike re-reads the post, a concurrent fetch may have replaced it.
// post is the state the write was based on, added when not loaded.
// likers nil means the refresh failed and the viewer is added locally.
func (a *Aggregator) applyLike(post model.Post, viewer *model.AuthUser, likers []model.Liker) model.Post {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := &a.posts[a.adoptLocked(post)]
	if !p.LikedByUser {
		p.LikeCount++
		p.LikedByUser = true
	}
	if likers != nil {
		p.LikedBy = likers
	} else if !containsLiker(p.LikedBy, viewer.Id) {
		p.LikedBy = append(p.LikedBy, model.Liker{UserID: viewer.Id, Username: displayName(viewer)})
	}
	return p.Clone()
}

func (a *Aggregator) applyUnlike(post model.Post, viewerID string) model.Post {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := &a.posts[a.adoptLocked(post)]
	if p.LikedByUser {
		p.LikeCount--
		if p.LikeCount < 0 {
			p.LikeCount = 0
		}
		p.LikedByUser = false
	}
	likers := make([]model.Liker, 0, len(p.LikedBy))
	for _, l := range p.LikedBy {
		if l.UserID != viewerID {
			likers = append(likers, l)
		}
	}
	p.LikedBy = likers
	return p.Clone()
}

// FetchComments reloads the comments of postID and returns them as a tree.
func (a *Aggregator) FetchComments(ctx context.Context, postID string) ([]*model.CommentNode, error) {
	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	comments, err := a.store.ListComments(ctx, postID)
	if err != nil {
		return nil, a.fail("fetch_comments", postID, err, "Failed to load comments.")
	}
	return a.setComments(postID, comments), nil
}

func (a *Aggregator) setComments(postID string, comments []model.Comment) []*model.CommentNode {
	tree := BuildCommentTree(comments)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.comments[postID] = comments
	a.trees[postID] = tree
	return cloneTree(tree)
}

// Comments returns a copy of the last fetched comment tree of postID.
func (a *Aggregator) Comments(postID string) []*model.CommentNode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneTree(a.trees[postID])
}

// AddComment submits a comment on postID. A nil parentID replies to the
// current reply target of the post, if any. Blank content is rejected
// without calling the backend.
func (a *Aggregator) AddComment(ctx context.Context, postID string, content string, parentID *string) ([]*model.CommentNode, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.NewUserError(utils.ValidationError, MessageEmptyComment, nil)
	}
	viewer, err := a.requireViewer()
	if err != nil {
		return nil, err
	}
	if parentID == nil {
		if target, ok := a.ReplyTarget(postID); ok {
			parentID = &target
		}
	}

	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	comment := &model.Comment{
		PostID:          postID,
		AuthorID:        viewer.Id,
		Content:         content,
		ParentCommentID: parentID,
	}
	if err := a.store.CreateComment(ctx, comment); err != nil {
		return nil, a.fail("comment", postID, err, "Failed to add comment.")
	}

	postAuthorID := a.afterComment(postID)
	a.publish(model.ActivityEvent{Kind: model.ActivityComment, PostID: postID, CommentID: comment.Id})

	comments, listErr := a.store.ListComments(ctx, postID)
	var tree []*model.CommentNode
	if listErr == nil {
		tree = a.setComments(postID, comments)
	}

	commentID := comment.Id
	n := model.Notification{
		Id:        model.CommentNotificationId(comment.Id),
		Kind:      model.NotificationKindComment,
		PostID:    postID,
		CommentID: &commentID,
		Excerpt:   content,
	}
	a.notify(postAuthorID, viewer, n)
	if parentID != nil {
		if parentAuthorID := findAuthor(comments, *parentID); parentAuthorID != postAuthorID {
			n.Kind = model.NotificationKindReply
			a.notify(parentAuthorID, viewer, n)
		}
	}

	if listErr != nil {
		return nil, a.fail("fetch_comments", postID, listErr, "Comment added, but failed to refresh comments.")
	}
	return tree, nil
}

// afterComment bumps the local comment count and clears the reply target.
// It returns the post's author, empty when the post is not loaded.
func (a *Aggregator) afterComment(postID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.replyTargets, postID)
	i := a.indexLocked(postID)
	if i < 0 {
		return ""
	}
	a.posts[i].CommentCount++
	return a.posts[i].AuthorID
}

func findAuthor(comments []model.Comment, commentID string) string {
	for _, c := range comments {
		if c.Id == commentID {
			return c.AuthorID
		}
	}
	return ""
}

// SetReplyTarget selects the comment the next AddComment on postID replies
// to. The comment must be among the fetched comments of the post.
func (a *Aggregator) SetReplyTarget(postID string, commentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if findAuthor(a.comments[postID], commentID) == "" {
		return utils.NewUserError(utils.NotFoundError, "This comment is no longer available.", nil)
	}
	a.replyTargets[postID] = commentID
	return nil
}

func (a *Aggregator) ReplyTarget(postID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	target, ok := a.replyTargets[postID]
	return target, ok
}

func (a *Aggregator) ClearReplyTarget(postID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.replyTargets, postID)
}
