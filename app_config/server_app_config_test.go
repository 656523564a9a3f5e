package app_config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerAppConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "app_config")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	require.Nil(t, ioutil.WriteFile(path, []byte("BACKEND_TIMEOUT_MS: 2500\nAVATAR_BUCKET: my-avatars\n"), 0644))

	c, err := LoadServerAppConfig(path)
	require.Nil(t, err)
	assert.Equal(t, 2500*time.Millisecond, c.BackendTimeout())
	assert.Equal(t, "my-avatars", c.AVATAR_BUCKET)
	assert.Equal(t, "post-images", c.POST_IMAGE_BUCKET)
	assert.Equal(t, DefaultRegistrationEmailDomain, c.REGISTRATION_EMAIL_DOMAIN)
	assert.Equal(t, int64(DefaultMaxAvatarBytes), c.MAX_AVATAR_BYTES)
	assert.Equal(t, time.Hour, c.ClientIdleTtl())
	assert.Equal(t, time.Minute, c.SessionRefreshMargin())

	_, err = LoadServerAppConfig(filepath.Join(dir, "missing.yaml"))
	assert.NotNil(t, err)
}

func TestShippedServerConfigParses(t *testing.T) {
	c, err := LoadServerAppConfig("../cmd/server/config.yaml")
	require.Nil(t, err)
	assert.Equal(t, 10*time.Second, c.BackendTimeout())
}
