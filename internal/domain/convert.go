package domain

import (
	"fmt"
	"regexp"
)

var htmlTag = regexp.MustCompile(`<.+?>`)

// PostText strips markup from a status body and caps it at
// MaxPostTextLength characters. Entities are left as-is.
func PostText(content string) string {
	text := htmlTag.ReplaceAllString(content, "")
	runes := []rune(text)
	if len(runes) > MaxPostTextLength {
		return string(runes[:MaxPostTextLength])
	}
	return text
}

// ConvertStatus turns a timeline status into a feed entry. A reblog is
// unwrapped one level: the post block describes the original, the reason
// block the reblogging account. localServer is the caller's own Mastodon
// server, used to qualify bare handles.
func ConvertStatus(status *MastodonStatus, localServer string) (FeedViewPost, error) {
	if status == nil {
		return FeedViewPost{}, fmt.Errorf("%w: nil status", ErrMalformedStatus)
	}

	post := status
	if status.Reblog != nil {
		post = status.Reblog
	}

	view, err := convertPost(post, localServer)
	if err != nil {
		return FeedViewPost{}, err
	}

	entry := FeedViewPost{Post: view}
	if status.Reblog != nil {
		if err := validate(status); err != nil {
			return FeedViewPost{}, err
		}
		entry.Reason = &ReasonRepost{
			Type:      reasonRepostType,
			By:        profileView(status.Account, localServer),
			IndexedAt: status.CreatedAt,
		}
	}

	return entry, nil
}

// ConvertStatusRecord turns a single status into a getRecord response.
func ConvertStatusRecord(status *MastodonStatus, localServer string) (*RecordResult, error) {
	if status == nil {
		return nil, fmt.Errorf("%w: nil status", ErrMalformedStatus)
	}
	post := status
	if status.Reblog != nil {
		post = status.Reblog
	}
	if err := validate(post); err != nil {
		return nil, err
	}

	author := NewSyntheticIdentity(post.Account, localServer)
	return &RecordResult{
		URI:   PostURI(author.DID, post.ID),
		CID:   PlaceholderCID,
		Value: postRecord(post),
	}, nil
}

func convertPost(post *MastodonStatus, localServer string) (PostView, error) {
	if err := validate(post); err != nil {
		return PostView{}, err
	}

	author := profileView(post.Account, localServer)
	return PostView{
		URI:         PostURI(author.DID, post.ID),
		CID:         PlaceholderCID,
		Author:      author,
		Record:      postRecord(post),
		ReplyCount:  post.RepliesCount,
		RepostCount: post.ReblogsCount,
		LikeCount:   post.FavouritesCount,
		IndexedAt:   post.CreatedAt,
		Labels:      []Label{},
	}, nil
}

func profileView(account *MastodonAccount, localServer string) ProfileViewBasic {
	id := NewSyntheticIdentity(account, localServer)
	return ProfileViewBasic{
		DID:         id.DID,
		Handle:      id.Handle,
		DisplayName: account.DisplayName,
		Avatar:      account.AvatarURL(),
		Labels:      []Label{},
	}
}

func postRecord(post *MastodonStatus) PostRecord {
	langs := []string{}
	if post.Language != "" {
		langs = append(langs, post.Language)
	}
	return PostRecord{
		Type:      PostCollection,
		CreatedAt: post.CreatedAt,
		Langs:     langs,
		Text:      PostText(post.Content),
	}
}

func validate(status *MastodonStatus) error {
	switch {
	case status.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedStatus)
	case status.Account == nil:
		return fmt.Errorf("%w: status %s has no account", ErrMalformedStatus, status.ID)
	case status.Account.ID == "":
		return fmt.Errorf("%w: status %s has an account without id", ErrMalformedStatus, status.ID)
	}
	return nil
}
