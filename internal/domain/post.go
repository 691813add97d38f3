package domain

const (
	// PostCollection is the NSID of post records.
	PostCollection = "app.bsky.feed.post"

	// PlaceholderCID stands in for the content hash of every bridged post.
	// Bridged posts have no repository block, so there is nothing to hash.
	PlaceholderCID = "bafyreieg6naxuximr5hprhfb26z3mdpzvoztswo6pjrpbze7rngld4457y"

	// MaxPostTextLength is the number of characters kept from a status body.
	MaxPostTextLength = 300

	reasonRepostType = "app.bsky.feed.defs#reasonRepost"
)

// PostRecord is the app.bsky.feed.post record body.
type PostRecord struct {
	Type      string   `json:"$type"`
	CreatedAt string   `json:"createdAt"`
	Langs     []string `json:"langs"`
	Text      string   `json:"text"`
}

// Label is a moderation label. Bridged content never carries any, but the
// lexicon requires the array.
type Label struct {
	Src string `json:"src"`
	URI string `json:"uri"`
	Val string `json:"val"`
	Cts string `json:"cts"`
}

// ActorViewer is the viewer state attached to a profile.
type ActorViewer struct {
	Muted     bool `json:"muted"`
	BlockedBy bool `json:"blockedBy"`
}

// ProfileViewBasic is the author block of a post view.
type ProfileViewBasic struct {
	DID         string      `json:"did"`
	Handle      string      `json:"handle"`
	DisplayName string      `json:"displayName"`
	Avatar      string      `json:"avatar"`
	Viewer      ActorViewer `json:"viewer"`
	Labels      []Label     `json:"labels"`
}

// PostViewer is the viewer state attached to a post (always empty here).
type PostViewer struct{}

// PostView is app.bsky.feed.defs#postView.
type PostView struct {
	URI         string           `json:"uri"`
	CID         string           `json:"cid"`
	Author      ProfileViewBasic `json:"author"`
	Record      PostRecord       `json:"record"`
	ReplyCount  int              `json:"replyCount"`
	RepostCount int              `json:"repostCount"`
	LikeCount   int              `json:"likeCount"`
	IndexedAt   string           `json:"indexedAt"`
	Viewer      PostViewer       `json:"viewer"`
	Labels      []Label          `json:"labels"`
}

// ReasonRepost marks a feed entry that appears because someone reposted it.
type ReasonRepost struct {
	Type      string           `json:"$type"`
	By        ProfileViewBasic `json:"by"`
	IndexedAt string           `json:"indexedAt"`
}
