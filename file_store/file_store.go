// Package file_store uploads user images (avatars, post images) to object
// storage and resolves their public URLs.
package file_store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/it35lab/campusfeed/utils"
)

const (
	// Seconds a public object may be cached.
	DefaultCacheControl = "3600"
	publicFolder        = "public"
)

type UploadOptions struct {
	CacheControl string
	ContentType  string
	// Overwrite an existing object at the same path. Without it an existing
	// object fails the upload with backend.CodeUniqueViolation.
	Upsert bool
}

type ObjectStore interface {
	Upload(ctx context.Context, bucket string, path string, body io.Reader, opts UploadOptions) error
	PublicURL(bucket string, path string) string
}

// ObjectPath returns "public/<userId>-<unix millis><ext>", ext taken from
// fileName.
func ObjectPath(userId string, fileName string, now time.Time) string {
	millis := now.UnixNano() / int64(time.Millisecond)
	return fmt.Sprintf("%s/%s-%d%s", publicFolder, userId, millis, utils.GetUrlExtNameWithDot(fileName))
}
