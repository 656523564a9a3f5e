package file_store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/it35lab/campusfeed/backend"
)

const (
	TmpFileDirPrefix = "_tmp_file_store_"
)

// LocalObjectStore writes objects under a local folder, one sub folder per
// bucket. The dev server serves the folder statically.
type LocalObjectStore struct {
	folderName      string
	publicUrlPrefix string
}

func NewLocalObjectStore(name string, publicUrlPrefix string) (*LocalObjectStore, error) {
	folderName := TmpFileDirPrefix + name
	if err := os.MkdirAll(folderName, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalObjectStore{folderName: folderName, publicUrlPrefix: publicUrlPrefix}, nil
}

// Root is the folder objects are written to.
func (s *LocalObjectStore) Root() string {
	return s.folderName
}

func (s *LocalObjectStore) Upload(ctx context.Context, bucket string, path string, body io.Reader, opts UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return backend.NewError(backend.CodeTimeout, "upload "+path, err)
	}
	full := filepath.Join(s.folderName, bucket, filepath.FromSlash(path))
	if !strings.HasPrefix(full, filepath.Join(s.folderName, bucket)+string(filepath.Separator)) {
		return backend.NewError(backend.CodeInvalidReference, "invalid object path: "+path, nil)
	}
	if !opts.Upsert {
		if _, err := os.Stat(full); err == nil {
			return backend.NewError(backend.CodeUniqueViolation, "object already exists: "+path, nil)
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), os.ModePerm); err != nil {
		return backend.NewError(backend.CodeUnknown, "upload "+path, err)
	}

	out, err := os.Create(full)
	if err != nil {
		return backend.NewError(backend.CodeUnknown, "upload "+path, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, body); err != nil {
		return backend.NewError(backend.CodeUnknown, "upload "+path, err)
	}
	return nil
}

func (s *LocalObjectStore) PublicURL(bucket string, path string) string {
	return strings.TrimSuffix(s.publicUrlPrefix, "/") + "/" + bucket + "/" + path
}

func (s *LocalObjectStore) CleanUp() {
	os.RemoveAll(s.folderName)
}
