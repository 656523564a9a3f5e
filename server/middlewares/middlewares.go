package middlewares

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
)

const (
	ClientCookie = "campusfeed_client"
	ClientHeader = "X-Client-Id"
	// Browsers cannot set headers on a websocket handshake.
	ClientQuery = "client_id"

	// Keys set on the gin context.
	ClientKeyField = "client_key"
	UserIdField    = "sub"

	clientCookieMaxAge = 365 * 24 * 3600

	redacted = "REDACTED"
)

// Viewer is the per-client session surface the guard checks, implemented by
// session.Manager.
type Viewer interface {
	Ready() <-chan struct{}
	CurrentUser() *model.AuthUser
}

// ClientKey resolves the client key from the cookie, the X-Client-Id header
// or the client_id query, in that order. A client without any gets a new key
// in a cookie.
func ClientKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := c.Cookie(ClientCookie)
		if err != nil || key == "" {
			key = c.GetHeader(ClientHeader)
		}
		if key == "" {
			key = c.Query(ClientQuery)
		}
		if key == "" {
			key = uuid.New().String()
			c.SetCookie(ClientCookie, key, clientCookieMaxAge, "/", "", false, true)
		}
		c.Set(ClientKeyField, key)
		c.Next()
	}
}

// GetClientKey returns the key set by ClientKey.
func GetClientKey(c *gin.Context) string {
	return c.GetString(ClientKeyField)
}

// WaitReady blocks until the viewer's initial session probe resolved or
// timeout passed.
func WaitReady(ctx context.Context, viewer Viewer, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-viewer.Ready():
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Guard rejects clients that are not signed in. On success the user's id is
// stored under "sub".
func Guard(lookup func(clientKey string) Viewer, readyTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := lookup(GetClientKey(c))
		WaitReady(c.Request.Context(), viewer, readyTimeout)

		user := viewer.CurrentUser()
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code": utils.ErrorTokenAuthFail,
				"msg":  "Please sign in to continue.",
			})
			c.Abort()
			return
		}

		c.Set(UserIdField, user.Id)

		// before request
		c.Next()
	}
}

// AccessLogger is gin's request logger with the client_id query value
// masked, a client key is as good as the session it resumes.
func AccessLogger(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output: out,
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %-7s %#v\n%s",
				param.TimeStamp.Format("2006/01/02 - 15:04:05"),
				param.StatusCode,
				param.Latency,
				param.ClientIP,
				param.Method,
				RedactedPath(param.Path),
				param.ErrorMessage,
			)
		},
	})
}

// RedactedPath masks the client_id query value of a request path.
func RedactedPath(path string) string {
	idx := strings.Index(path, "?")
	if idx < 0 {
		return path
	}
	query, err := url.ParseQuery(path[idx+1:])
	if err != nil {
		return path[:idx] + "?" + redacted
	}
	if _, ok := query[ClientQuery]; !ok {
		return path
	}
	query.Set(ClientQuery, redacted)
	return path[:idx] + "?" + query.Encode()
}
