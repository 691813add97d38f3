package domain

// MastodonAccount is the account block of a Mastodon status.
type MastodonAccount struct {
	ID           string `json:"id"`
	Acct         string `json:"acct"`
	DisplayName  string `json:"display_name"`
	Avatar       string `json:"avatar"`
	AvatarStatic string `json:"avatar_static"`
}

// AvatarURL prefers the static avatar so animated images don't leak into
// clients that can't play them.
func (a *MastodonAccount) AvatarURL() string {
	if a.AvatarStatic != "" {
		return a.AvatarStatic
	}
	return a.Avatar
}

// MastodonStatus is the subset of a Mastodon status the bridge reads.
type MastodonStatus struct {
	ID              string           `json:"id"`
	Account         *MastodonAccount `json:"account"`
	Content         string           `json:"content"`
	CreatedAt       string           `json:"created_at"`
	Language        string           `json:"language"`
	RepliesCount    int              `json:"replies_count"`
	ReblogsCount    int              `json:"reblogs_count"`
	FavouritesCount int              `json:"favourites_count"`
	Reblog          *MastodonStatus  `json:"reblog"`
	InReplyToID     string           `json:"in_reply_to_id"`
}

// NewStatus is the body of POST /api/v1/statuses.
type NewStatus struct {
	Status      string `json:"status"`
	InReplyToID string `json:"in_reply_to_id,omitempty"`
}
