package server

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
	"github.com/it35lab/campusfeed/feed"
	"github.com/it35lab/campusfeed/profile"
	"github.com/it35lab/campusfeed/server/middlewares"
	"github.com/it35lab/campusfeed/session"
	"github.com/pkg/errors"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type commentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parentId"`
}

type replyTargetRequest struct {
	CommentID string `json:"commentId" binding:"required"`
}

type verifyPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

type markReadRequest struct {
	Ids []string `json:"ids" binding:"required"`
	// Defaults to true.
	Read *bool `json:"read"`
}

type sessionResponse struct {
	session.State
	Status session.Status `json:"status"`
}

func newSessionResponse(state session.State) sessionResponse {
	return sessionResponse{State: state, Status: state.Status()}
}

func (s *Server) Register(c *gin.Context) {
	var in profile.RegistrationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	user, err := s.client(c).Profile.Register(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	client := s.client(c)
	if err := client.Session.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(client.Session.Snapshot()))
}

func (s *Server) Logout(c *gin.Context) {
	client := s.client(c)
	client.Session.SignOut(c.Request.Context())
	c.JSON(http.StatusOK, newSessionResponse(client.Session.Snapshot()))
}

// Session returns the client's session state once the initial probe has
// resolved.
func (s *Server) Session(c *gin.Context) {
	client := s.client(c)
	middlewares.WaitReady(c.Request.Context(), client.Session, s.config.BackendTimeout())
	c.JSON(http.StatusOK, newSessionResponse(client.Session.Snapshot()))
}

func (s *Server) ListPosts(c *gin.Context) {
	posts, err := s.client(c).Feed.FetchPosts(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// CreatePost accepts a multipart or urlencoded form with "content" and
// optional "images" files.
func (s *Server) CreatePost(c *gin.Context) {
	uploads, closeAll, err := formImages(c, "images")
	if err != nil {
		abortWithBadRequest(c, err)
		return
	}
	defer closeAll()

	post, err := s.client(c).Feed.CreatePost(c.Request.Context(), c.PostForm("content"), uploads)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// EditPost takes "content", the image URLs to keep as repeated "keep"
// fields and new "images" files.
func (s *Server) EditPost(c *gin.Context) {
	uploads, closeAll, err := formImages(c, "images")
	if err != nil {
		abortWithBadRequest(c, err)
		return
	}
	defer closeAll()

	post, err := s.client(c).Feed.EditPost(c.Request.Context(), c.Param("id"), c.PostForm("content"), c.PostFormArray("keep"), uploads)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) DeletePost(c *gin.Context) {
	if err := s.client(c).Feed.DeletePost(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ToggleLike(c *gin.Context) {
	post, err := s.client(c).Feed.ToggleLike(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) ListComments(c *gin.Context) {
	tree, err := s.client(c).Feed.FetchComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (s *Server) AddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	tree, err := s.client(c).Feed.AddComment(c.Request.Context(), c.Param("id"), req.Content, req.ParentID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tree)
}

func (s *Server) SetReplyTarget(c *gin.Context) {
	var req replyTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if err := s.client(c).Feed.SetReplyTarget(c.Param("id"), req.CommentID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commentId": req.CommentID})
}

func (s *Server) ClearReplyTarget(c *gin.Context) {
	s.client(c).Feed.ClearReplyTarget(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) GetProfile(c *gin.Context) {
	user, err := s.client(c).Profile.Load(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile takes a form with username, firstName, lastName, email and
// an optional "avatar" file.
func (s *Server) UpdateProfile(c *gin.Context) {
	uploads, closeAll, err := formImages(c, "avatar")
	if err != nil {
		abortWithBadRequest(c, err)
		return
	}
	defer closeAll()

	update := profile.ProfileUpdate{
		Username:  c.PostForm("username"),
		FirstName: c.PostForm("firstName"),
		LastName:  c.PostForm("lastName"),
		Email:     c.PostForm("email"),
	}
	if len(uploads) > 0 {
		update.Avatar = &profile.AvatarUpload{
			FileName:    uploads[0].FileName,
			ContentType: uploads[0].ContentType,
			Body:        uploads[0].Body,
		}
	}
	user, err := s.client(c).Profile.Update(c.Request.Context(), update)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) VerifyPassword(c *gin.Context) {
	var req verifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if err := s.client(c).Profile.VerifyPassword(c.Request.Context(), req.Password); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// ListNotifications takes optional "since" (any common date format) and
// "limit" query parameters.
func (s *Server) ListNotifications(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := dateparse.ParseAny(raw)
		if err != nil {
			abortWithBadRequest(c, errors.Wrap(err, "invalid since"))
			return
		}
		since = t
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortWithBadRequest(c, errors.New("invalid limit: "+raw))
			return
		}
		limit = n
	}

	notifications, err := s.client(c).Notifications.List(c.Request.Context(), since, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (s *Server) MarkNotificationsRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	read := true
	if req.Read != nil {
		read = *req.Read
	}
	if err := s.client(c).Notifications.MarkRead(c.Request.Context(), req.Ids, read); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// formImages opens every file of field. The caller closes them with the
// returned func. Non-multipart requests have no files.
func formImages(c *gin.Context, field string) ([]feed.ImageUpload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, closeAll, nil
		}
		return nil, closeAll, errors.Wrap(err, "invalid multipart form")
	}

	uploads := []feed.ImageUpload{}
	for _, fh := range form.File[field] {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, errors.Wrap(err, "cannot open "+fh.Filename)
		}
		files = append(files, f)
		uploads = append(uploads, feed.ImageUpload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
