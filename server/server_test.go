package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/it35lab/campusfeed/app_config"
	"github.com/it35lab/campusfeed/auth"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/eventbus"
	"github.com/it35lab/campusfeed/file_store"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/notification"
	"github.com/it35lab/campusfeed/server/middlewares"
	"github.com/it35lab/campusfeed/session"
	"github.com/it35lab/campusfeed/store"
	"github.com/it35lab/campusfeed/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	registry *Registry
}

func newTestServer(t *testing.T) *testServer {
	bus := eventbus.New()
	signals := notification.NewSignalChannels()
	config := app_config.ServerAppConfig{BACKEND_TIMEOUT_MS: 2000}.WithDefaults()
	registry := NewRegistry(Deps{
		Provider: auth.NewMemoryProvider(),
		Sessions: auth.NewMemorySessionStore(),
		Bus:      bus,
		Store:    store.NewMemoryStore(),
		Objects:  file_store.NewFakeObjectStore(),
		Status:   utils.NewMemoryStatusStore(),
		Signals:  signals,
		Config:   config,
	})
	t.Cleanup(func() {
		registry.Close()
		bus.Close()
	})

	router := gin.New()
	New(registry, signals, config).AddRoutes(router)
	return &testServer{router: router, registry: registry}
}

func (s *testServer) do(method, path, clientKey string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if clientKey != "" {
		req.Header.Set(middlewares.ClientHeader, clientKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postForm(path, clientKey string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middlewares.ClientHeader, clientKey)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// signUp registers username and signs clientKey in as that user.
func (s *testServer) signUp(t *testing.T, clientKey, username string) {
	w := s.do(http.MethodPost, "/auth/register", clientKey, map[string]string{
		"username":        username,
		"firstName":       "First",
		"lastName":        "Last",
		"email":           username + "@nbsc.edu.ph",
		"password":        "secret1",
		"confirmPassword": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/auth/login", clientKey, map[string]string{
		"email":    username + "@nbsc.edu.ph",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (s *testServer) createPost(t *testing.T, clientKey, content string) model.Post {
	w := s.postForm("/posts", clientKey, url.Values{"content": {content}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var post model.Post
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &post))
	return post
}

type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	var body errorBody
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionIssuesClientCookie(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/auth/session", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), middlewares.ClientCookie+"=")

	var body map[string]interface{}
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(session.StatusAnonymous), body["status"])
	assert.Equal(t, true, body["initialized"])
}

func TestGuardRejectsAnonymousClient(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/posts", "anonymous-client", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.ErrorTokenAuthFail, decodeError(t, w).Code)
}

func TestLoginWithWrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "c1", "juan")

	w := s.do(http.MethodPost, "/auth/login", "c2", map[string]string{"email": "juan@nbsc.edu.ph", "password": "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, utils.ErrorIdentity, body.Code)
	assert.Equal(t, backend.MessageInvalidCredentials, body.Msg)

	w = s.do(http.MethodPost, "/auth/login", "c2", map[string]string{"email": "juan@nbsc.edu.ph"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodPost, "/auth/register", "c1", map[string]string{
		"username":        "juan",
		"firstName":       "Juan",
		"lastName":        "Cruz",
		"email":           "juan@gmail.com",
		"password":        "secret1",
		"confirmPassword": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Only @nbsc.edu.ph emails are allowed to register.", decodeError(t, w).Msg)
}

func TestFeedFlow(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "c1", "juan")

	post := s.createPost(t, "c1", "hello campus")
	assert.Equal(t, "hello campus", post.Content)

	w := s.do(http.MethodGet, "/posts", "c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var posts []model.Post
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "juan", posts[0].Author.Username)

	w = s.do(http.MethodPost, "/posts/"+post.Id+"/like", "c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var liked model.Post
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &liked))
	assert.Equal(t, int64(1), liked.LikeCount)
	assert.True(t, liked.LikedByUser)

	w = s.do(http.MethodPost, "/posts/"+post.Id+"/comments", "c1", map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/posts/"+post.Id+"/comments", "c1", map[string]string{"content": "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tree []*model.CommentNode
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &tree))
	require.Len(t, tree, 1)

	w = s.do(http.MethodPut, "/posts/"+post.Id+"/reply-target", "c1", map[string]string{"commentId": tree[0].Comment.Id})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/posts/"+post.Id+"/comments", "c1", map[string]string{"content": "reply"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &tree))
	require.Len(t, tree[0].Replies, 1)

	w = s.do(http.MethodGet, "/posts/"+post.Id+"/comments", "c1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/posts/"+post.Id, "c1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOnlyAuthorCanDelete(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "c1", "juan")
	s.signUp(t, "c2", "maria")
	post := s.createPost(t, "c1", "mine")

	w := s.do(http.MethodGet, "/posts", "c2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodDelete, "/posts/"+post.Id, "c2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, utils.ErrorAuthorization, decodeError(t, w).Code)
}

func TestProfileAndLogout(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "c1", "juan")

	w := s.do(http.MethodGet, "/profile", "c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user model.User
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "juan", user.Username)

	w = s.do(http.MethodPost, "/profile/verify-password", "c1", map[string]string{"password": "nope12"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodPost, "/profile/verify-password", "c1", map[string]string{"password": "secret1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/auth/logout", "c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/profile", "c1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "c1", "juan")
	s.signUp(t, "c2", "maria")
	post := s.createPost(t, "c1", "like me")

	w := s.do(http.MethodPost, "/posts/"+post.Id+"/like", "c2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/notifications?limit=10", "c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var notifications []model.Notification
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &notifications))
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationKindLike, notifications[0].Kind)
	assert.Equal(t, "maria", notifications[0].ActorName)
	assert.False(t, notifications[0].Read)

	w = s.do(http.MethodPost, "/notifications/read", "c1", map[string]interface{}{"ids": []string{notifications[0].Id}})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/notifications?since=2000-01-01", "c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &notifications))
	require.Len(t, notifications, 1)
	assert.True(t, notifications[0].Read)

	w = s.do(http.MethodGet, "/notifications?since=not-a-date", "c1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodGet, "/notifications?limit=-1", "c1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionStreamsSignals(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "c1", "juan")
	s.signUp(t, "c2", "maria")
	post := s.createPost(t, "c1", "watch me")

	httpServer := httptest.NewServer(s.router)
	defer httpServer.Close()

	header := http.Header{}
	header.Set(middlewares.ClientHeader, "c1")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpServer.URL, "http")+"/subscription", header)
	require.Nil(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var signal model.Signal
	require.Nil(t, conn.ReadJSON(&signal))
	assert.Equal(t, model.SignalTypeSession, signal.SignalType)

	w := s.do(http.MethodPost, "/posts/"+post.Id+"/like", "c2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Nil(t, conn.ReadJSON(&signal))
	assert.Equal(t, model.SignalTypeNotification, signal.SignalType)
	var n model.Notification
	require.Nil(t, json.Unmarshal(signal.SignalPayload, &n))
	assert.Equal(t, model.NotificationKindLike, n.Kind)
	assert.Equal(t, post.Id, n.PostID)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, StatusOf(utils.NewUserError(utils.IdentityError, "", nil)))
	assert.Equal(t, http.StatusForbidden, StatusOf(utils.NewUserError(utils.AuthorizationError, "", nil)))
	assert.Equal(t, http.StatusNotFound, StatusOf(utils.NewUserError(utils.NotFoundError, "", nil)))
	assert.Equal(t, http.StatusBadRequest, StatusOf(utils.NewUserError(utils.ValidationError, "", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(errors.New("boom")))
}

func TestRegistrySweepsIdleClients(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	s.registry.clock = func() time.Time { return now }

	first := s.registry.Get("c1")
	assert.Same(t, first, s.registry.Get("c1"))
	s.registry.Get("c2")
	assert.Equal(t, 2, s.registry.Len())

	now = now.Add(s.registry.deps.Config.ClientIdleTtl() / 2)
	s.registry.Get("c2")
	now = now.Add(s.registry.deps.Config.ClientIdleTtl()/2 + time.Second)
	assert.Equal(t, 1, s.registry.Sweep())
	assert.Equal(t, 1, s.registry.Len())

	// The dropped client is closed, its watchers end.
	_, open := <-first.Session.Watch(context.Background())
	assert.False(t, open)
}

func TestRegistryKeepsPinnedClients(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	s.registry.clock = func() time.Time { return now }
	ttl := s.registry.deps.Config.ClientIdleTtl()

	client, release := s.registry.Pin("c1")
	states := client.Session.Watch(context.Background())
	<-states

	now = now.Add(2 * ttl)
	assert.Equal(t, 0, s.registry.Sweep())
	assert.Same(t, client, s.registry.Get("c1"))

	release()
	release()
	// Released clients count as seen at release time.
	now = now.Add(ttl / 2)
	assert.Equal(t, 0, s.registry.Sweep())
	now = now.Add(ttl)
	assert.Equal(t, 1, s.registry.Sweep())

	// The watcher ends once the swept client is closed.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-states:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
