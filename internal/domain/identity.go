package domain

import (
	"fmt"
	"strings"
)

// SyntheticDIDPrefix prefixes every identifier minted for a Mastodon account.
const SyntheticDIDPrefix = "did:mstdn:"

// SyntheticIdentity is the AT Protocol identity fabricated for a Mastodon
// account. It is derived, never stored.
type SyntheticIdentity struct {
	DID    string
	Handle string
}

// NewSyntheticIdentity derives the identity for account. Accounts local to
// the caller's server have a bare acct, so localServer is appended to keep
// handles globally unique.
func NewSyntheticIdentity(account *MastodonAccount, localServer string) SyntheticIdentity {
	handle := strings.ToLower(strings.NewReplacer("@", ".", "_", "-").Replace(account.Acct))
	if !strings.Contains(handle, ".") && localServer != "" {
		handle += "." + strings.ToLower(localServer)
	}

	return SyntheticIdentity{
		DID:    SyntheticDIDPrefix + account.ID,
		Handle: handle,
	}
}

// IsSyntheticDID reports whether did was minted by the bridge.
func IsSyntheticDID(did string) bool {
	return strings.HasPrefix(did, SyntheticDIDPrefix)
}

// IsSyntheticPostURI reports whether uri points into a synthetic repo.
func IsSyntheticPostURI(uri string) bool {
	return strings.HasPrefix(uri, "at://"+SyntheticDIDPrefix)
}

// PostURI returns the at:// URI of a bridged status.
func PostURI(did, statusID string) string {
	return fmt.Sprintf("at://%s/%s/%s", did, PostCollection, statusID)
}

// StatusIDFromPostURI extracts the Mastodon status id (the record key) from
// a bridged post URI.
func StatusIDFromPostURI(uri string) (string, error) {
	if !IsSyntheticPostURI(uri) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPostURI, uri)
	}
	i := strings.LastIndex(uri, "/")
	id := uri[i+1:]
	if id == "" || strings.HasPrefix(id, SyntheticDIDPrefix) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPostURI, uri)
	}
	return id, nil
}
