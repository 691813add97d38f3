package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultFeedURI is the feed generator the bridge answers for.
const DefaultFeedURI = "at://did:plc:oio4hkxaop4ao4wz2pp3f4cr/app.bsky.feed.generator/mastodon"

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DefaultPDS is the backend origin for anonymous callers and users
	// without an override.
	DefaultPDS string

	// FeedURI is the feed generator whose getFeed calls are answered from
	// the caller's Mastodon home timeline.
	FeedURI string

	// UsersFile is the YAML user directory written by the provisioning tool.
	UsersFile string

	// UsersDatabase, when set, is a SQLite user directory used instead of
	// UsersFile.
	UsersDatabase string

	// PublicURL is the gateway base URL written into session responses. When
	// empty it is derived from each request.
	PublicURL string

	// PLCURL is the did:plc directory.
	PLCURL string

	// Hostname is the public hostname where this service is reachable (used
	// for did:web). The DID document is only served when it is set.
	Hostname string

	// UpstreamTimeout bounds every call to a PDS, Mastodon server or
	// identity service.
	UpstreamTimeout time.Duration

	// LogLevel is the minimum level logged.
	LogLevel slog.Level
}

// ServiceDID returns the did:web for this service based on the hostname.
func (c *Config) ServiceDID() string {
	return "did:web:" + c.Hostname
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first, without
// overriding variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port := 3000
	if p := os.Getenv("PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
	}

	timeout := 30 * time.Second
	if t := os.Getenv("UPSTREAM_TIMEOUT"); t != "" {
		var err error
		timeout, err = time.ParseDuration(t)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT %q", t)
		}
	}

	level := slog.LevelInfo
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		if err := level.UnmarshalText([]byte(l)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	return &Config{
		Port:            port,
		DefaultPDS:      strings.TrimSuffix(getenv("BRIDGE_DEFAULT_PDS", "https://bsky.social"), "/"),
		FeedURI:         getenv("BRIDGE_FEED_URI", DefaultFeedURI),
		UsersFile:       getenv("BRIDGE_USERS_FILE", "config.yml"),
		UsersDatabase:   os.Getenv("BRIDGE_USERS_DATABASE"),
		PublicURL:       strings.TrimSuffix(os.Getenv("BRIDGE_PUBLIC_URL"), "/"),
		PLCURL:          getenv("BRIDGE_PLC_URL", "https://plc.directory"),
		Hostname:        os.Getenv("BRIDGE_HOSTNAME"),
		UpstreamTimeout: timeout,
		LogLevel:        level,
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
