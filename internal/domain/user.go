package domain

import "strings"

// UserRecord is a bridged account as persisted by the provisioning tool. The
// gateway only ever reads it.
type UserRecord struct {
	// SubjectID is the AT Protocol DID the record is keyed by (the "sub" of
	// the caller's access token).
	SubjectID string

	// MastodonHandle is the linked Mastodon account, e.g. "alice@example.social".
	MastodonHandle string

	// AccessToken is the OAuth token used against the Mastodon server.
	AccessToken string

	// PDS overrides the default backend origin when set.
	PDS string

	// MastodonUserID is the numeric account id on the Mastodon server, if known.
	MastodonUserID string
}

// MastodonServer returns the server part of the linked handle.
func (u *UserRecord) MastodonServer() string {
	h := u.MastodonHandle
	if i := strings.LastIndex(h, "@"); i >= 0 {
		return h[i+1:]
	}
	return h
}

// Config is an immutable snapshot of the user directory, loaded once per
// request.
type Config struct {
	Users map[string]UserRecord
}

// Lookup returns the record for subject, if one exists.
func (c *Config) Lookup(subject string) (*UserRecord, bool) {
	if c == nil || subject == "" {
		return nil, false
	}
	u, ok := c.Users[subject]
	if !ok {
		return nil, false
	}
	if u.SubjectID == "" {
		u.SubjectID = subject
	}
	return &u, true
}
