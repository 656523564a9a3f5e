package app_config

import (
	"io/ioutil"
	"log"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultBackendTimeoutMs           = 10000
	DefaultRegistrationEmailDomain    = "@nbsc.edu.ph"
	DefaultMaxAvatarBytes             = 5 * 1024 * 1024
	DefaultClientIdleTtlSecond        = 3600
	DefaultNotificationLimit          = 50
	DefaultSessionRefreshMarginSecond = 60
)

// This is the config of the api server.
type ServerAppConfig struct {
	// Upper bound of every backend call (auth, tables, storage).
	BACKEND_TIMEOUT_MS int64 `yaml:"BACKEND_TIMEOUT_MS"`
	// Object storage buckets.
	AVATAR_BUCKET     string `yaml:"AVATAR_BUCKET"`
	POST_IMAGE_BUCKET string `yaml:"POST_IMAGE_BUCKET"`
	// Prefix of public object URLs, e.g. a CloudFront distribution. Empty
	// means the bucket's own URL.
	PUBLIC_URL_PREFIX string `yaml:"PUBLIC_URL_PREFIX"`
	// Only emails ending with this suffix may register.
	REGISTRATION_EMAIL_DOMAIN string `yaml:"REGISTRATION_EMAIL_DOMAIN"`
	MAX_AVATAR_BYTES          int64  `yaml:"MAX_AVATAR_BYTES"`
	// A client's Session Manager and Feed Aggregator are dropped after being
	// idle for this long.
	CLIENT_IDLE_TTL_SECOND int64 `yaml:"CLIENT_IDLE_TTL_SECOND"`
	NOTIFICATION_LIMIT     int   `yaml:"NOTIFICATION_LIMIT"`
	// Sessions expiring within this margin are refreshed when read.
	SESSION_REFRESH_MARGIN_SECOND int64 `yaml:"SESSION_REFRESH_MARGIN_SECOND"`
}

func (c ServerAppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.BACKEND_TIMEOUT_MS) * time.Millisecond
}

func (c ServerAppConfig) ClientIdleTtl() time.Duration {
	return time.Duration(c.CLIENT_IDLE_TTL_SECOND) * time.Second
}

func (c ServerAppConfig) SessionRefreshMargin() time.Duration {
	return time.Duration(c.SESSION_REFRESH_MARGIN_SECOND) * time.Second
}

// WithDefaults fills every unset field.
func (c ServerAppConfig) WithDefaults() ServerAppConfig {
	if c.BACKEND_TIMEOUT_MS <= 0 {
		c.BACKEND_TIMEOUT_MS = DefaultBackendTimeoutMs
	}
	if c.AVATAR_BUCKET == "" {
		c.AVATAR_BUCKET = "avatars"
	}
	if c.POST_IMAGE_BUCKET == "" {
		c.POST_IMAGE_BUCKET = "post-images"
	}
	if c.REGISTRATION_EMAIL_DOMAIN == "" {
		c.REGISTRATION_EMAIL_DOMAIN = DefaultRegistrationEmailDomain
	}
	if c.MAX_AVATAR_BYTES <= 0 {
		c.MAX_AVATAR_BYTES = DefaultMaxAvatarBytes
	}
	if c.CLIENT_IDLE_TTL_SECOND <= 0 {
		c.CLIENT_IDLE_TTL_SECOND = DefaultClientIdleTtlSecond
	}
	if c.NOTIFICATION_LIMIT <= 0 {
		c.NOTIFICATION_LIMIT = DefaultNotificationLimit
	}
	if c.SESSION_REFRESH_MARGIN_SECOND <= 0 {
		c.SESSION_REFRESH_MARGIN_SECOND = DefaultSessionRefreshMarginSecond
	}
	return c
}

func LoadServerAppConfig(path string) (ServerAppConfig, error) {
	c := ServerAppConfig{}
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err = yaml.Unmarshal(yamlFile, &c); err != nil {
		return c, err
	}
	return c.WithDefaults(), nil
}

func ParseServerAppConfig(path string) ServerAppConfig {
	c, err := LoadServerAppConfig(path)
	if err != nil {
		log.Fatal("fail to load server app config: ", err.Error())
	}
	return c
}
