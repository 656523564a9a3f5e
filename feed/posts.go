package feed

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/file_store"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
)

const (
	MessageEmptyPost = "Post cannot be empty."
	MessageNotAuthor = "You can only modify your own posts."
)

// ImageUpload is an image attached to a new or edited post.
type ImageUpload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// CreatePost uploads images, inserts the post and reloads the feed. When
// the reload fails the new post is inserted locally.
func (a *Aggregator) CreatePost(ctx context.Context, content string, uploads []ImageUpload) (model.Post, error) {
	viewer, err := a.requireViewer()
	if err != nil {
		return model.Post{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" && len(uploads) == 0 {
		return model.Post{}, utils.NewUserError(utils.ValidationError, MessageEmptyPost, nil)
	}

	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	images, err := a.uploadImages(ctx, viewer.Id, uploads)
	if err != nil {
		return model.Post{}, a.fail("create_post", "", err, "Failed to upload image.")
	}
	post := &model.Post{AuthorID: viewer.Id, Content: content, Images: images}
	if err := a.store.CreatePost(ctx, post); err != nil {
		return model.Post{}, a.fail("create_post", "", err, "Failed to create post.")
	}
	a.publish(model.ActivityEvent{Kind: model.ActivityPostCreated, PostID: post.Id})

	if _, err := a.FetchPosts(ctx); err != nil {
		a.mu.Lock()
		if a.indexLocked(post.Id) < 0 {
			a.insertLocked(post.Clone())
		}
		a.mu.Unlock()
	}
	created, _ := a.Post(post.Id)
	return created, nil
}

// EditPost replaces content and images of a post the viewer wrote. keep
// lists the existing image URLs to retain, uploads are appended after them.
func (a *Aggregator) EditPost(ctx context.Context, postID string, content string, keep []string, uploads []ImageUpload) (model.Post, error) {
	viewer, err := a.requireViewer()
	if err != nil {
		return model.Post{}, err
	}
	if err := a.checkAuthor(postID, viewer.Id); err != nil {
		return model.Post{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" && len(keep) == 0 && len(uploads) == 0 {
		return model.Post{}, utils.NewUserError(utils.ValidationError, MessageEmptyPost, nil)
	}

	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	uploaded, err := a.uploadImages(ctx, viewer.Id, uploads)
	if err != nil {
		return model.Post{}, a.fail("edit_post", postID, err, "Failed to upload image.")
	}
	images := append(append([]string{}, keep...), uploaded...)
	if err := a.store.UpdatePost(ctx, postID, viewer.Id, content, images); err != nil {
		return model.Post{}, a.fail("edit_post", postID, err, "Failed to update post.")
	}
	a.publish(model.ActivityEvent{Kind: model.ActivityPostEdited, PostID: postID})

	fresh, err := a.store.GetPost(ctx, postID)
	if err != nil {
		a.log.WithField("post_id", postID).Warnln("cannot reload edited post", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexLocked(postID)
	if i < 0 {
		if fresh != nil {
			return fresh.Clone(), nil
		}
		return model.Post{}, nil
	}
	p := &a.posts[i]
	p.Content = content
	p.Images = images
	if fresh != nil {
		p.Content = fresh.Content
		p.Images = fresh.Images
		p.UpdatedAt = fresh.UpdatedAt
	} else {
		p.UpdatedAt = a.clock()
	}
	return p.Clone(), nil
}

// DeletePost removes a post the viewer wrote together with its local
// comments.
func (a *Aggregator) DeletePost(ctx context.Context, postID string) error {
	viewer, err := a.requireViewer()
	if err != nil {
		return err
	}
	if err := a.checkAuthor(postID, viewer.Id); err != nil {
		return err
	}

	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if err := a.store.DeletePost(ctx, postID, viewer.Id); err != nil {
		return a.fail("delete_post", postID, err, "Failed to delete post.")
	}
	a.publish(model.ActivityEvent{Kind: model.ActivityPostDeleted, PostID: postID})

	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexLocked(postID); i >= 0 {
		a.posts = append(a.posts[:i], a.posts[i+1:]...)
	}
	delete(a.comments, postID)
	delete(a.trees, postID)
	delete(a.replyTargets, postID)
	return nil
}

// checkAuthor rejects a loaded post written by someone else. Unloaded posts
// pass, the store checks ownership anyway.
func (a *Aggregator) checkAuthor(postID string, viewerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexLocked(postID); i >= 0 && a.posts[i].AuthorID != viewerID {
		return utils.NewUserError(utils.AuthorizationError, MessageNotAuthor, nil)
	}
	return nil
}

func (a *Aggregator) uploadImages(ctx context.Context, userID string, uploads []ImageUpload) ([]string, error) {
	urls := make([]string, 0, len(uploads))
	now := a.clock()
	for i, u := range uploads {
		// One millisecond apart so images of the same post never share a path.
		path := file_store.ObjectPath(userID, u.FileName, now.Add(time.Duration(i)*time.Millisecond))
		err := a.objects.Upload(ctx, a.config.PostImageBucket, path, u.Body, file_store.UploadOptions{
			CacheControl: file_store.DefaultCacheControl,
			ContentType:  u.ContentType,
			Upsert:       true,
		})
		if err != nil {
			return nil, err
		}
		urls = append(urls, a.objects.PublicURL(a.config.PostImageBucket, path))
	}
	return urls, nil
}
