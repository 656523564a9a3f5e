package file_store

import (
	"context"
	"io"
	"sync"

	"github.com/it35lab/campusfeed/backend"
)

type FakeObject struct {
	Body []byte
	Opts UploadOptions
}

// FakeObjectStore keeps uploads in memory. Set Err to fail every upload.
type FakeObjectStore struct {
	mu      sync.Mutex
	objects map[string]FakeObject

	Err error
}

func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{objects: make(map[string]FakeObject)}
}

func (f *FakeObjectStore) Upload(ctx context.Context, bucket string, path string, body io.Reader, opts UploadOptions) error {
	if f.Err != nil {
		return f.Err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := bucket + "/" + path
	if _, ok := f.objects[key]; ok && !opts.Upsert {
		return backend.NewError(backend.CodeUniqueViolation, "object already exists: "+path, nil)
	}
	f.objects[key] = FakeObject{Body: data, Opts: opts}
	return nil
}

func (f *FakeObjectStore) PublicURL(bucket string, path string) string {
	return "https://fake.storage/" + bucket + "/" + path
}

// Object returns what was uploaded to bucket/path.
func (f *FakeObjectStore) Object(bucket string, path string) (FakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[bucket+"/"+path]
	return o, ok
}

func (f *FakeObjectStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
