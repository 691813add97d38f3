package domain

import "context"

// ConfigLoader produces a fresh user directory snapshot. Implementations must
// re-read their backing store on every call.
type ConfigLoader interface {
	LoadConfig(ctx context.Context) (*Config, error)
}

// MastodonClient is the subset of the Mastodon REST API the bridge uses. The
// server argument is the bare host of the caller's linked account.
type MastodonClient interface {
	// HomeTimeline fetches the caller's home timeline, newest first.
	HomeTimeline(ctx context.Context, server, accessToken string, limit int) ([]MastodonStatus, error)

	// GetStatus fetches a single status by id.
	GetStatus(ctx context.Context, server, accessToken, id string) (*MastodonStatus, error)

	// PostStatus publishes a new status.
	PostStatus(ctx context.Context, server, accessToken string, status NewStatus) (*MastodonStatus, error)
}
