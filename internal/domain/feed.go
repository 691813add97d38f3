package domain

// Feed is the response body for app.bsky.feed.getFeed.
type Feed struct {
	Feed []FeedViewPost `json:"feed"`
}

// FeedViewPost is a single feed entry.
type FeedViewPost struct {
	Post   PostView      `json:"post"`
	Reason *ReasonRepost `json:"reason,omitempty"`
}

// RecordResult is the response body for com.atproto.repo.getRecord.
type RecordResult struct {
	URI   string     `json:"uri"`
	CID   string     `json:"cid"`
	Value PostRecord `json:"value"`
}

// StrongRef is a reference to a specific version of a record. It doubles as
// the response body of com.atproto.repo.createRecord.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ReplyRef contains references to the parent and root of a reply chain.
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// Reply is a reply the caller wants to publish on Mastodon.
type Reply struct {
	// ParentURI is the at:// URI of the bridged post being replied to.
	ParentURI string

	// Text is the reply body.
	Text string
}
