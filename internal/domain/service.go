package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultTimelineLimit is the page size used when the caller doesn't ask for one.
const DefaultTimelineLimit = 20

// BridgeService serves the translated endpoints. Every operation needs the
// caller's user record; a nil record fails with ErrUnauthorized before any
// network call is made.
type BridgeService struct {
	mastodon MastodonClient
	logger   *slog.Logger
}

// NewBridgeService creates a BridgeService backed by the given Mastodon client.
func NewBridgeService(mastodon MastodonClient, logger *slog.Logger) *BridgeService {
	return &BridgeService{
		mastodon: mastodon,
		logger:   logger,
	}
}

// Timeline returns the caller's Mastodon home timeline as a feed. A limit of
// zero means DefaultTimelineLimit.
func (s *BridgeService) Timeline(ctx context.Context, user *UserRecord, limit int) (*Feed, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}

	server := user.MastodonServer()
	statuses, err := s.mastodon.HomeTimeline(ctx, server, user.AccessToken, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch home timeline: %w", err)
	}

	feed := &Feed{Feed: make([]FeedViewPost, 0, len(statuses))}
	for i := range statuses {
		entry, err := ConvertStatus(&statuses[i], server)
		if err != nil {
			return nil, fmt.Errorf("convert timeline entry %d: %w", i, err)
		}
		feed.Feed = append(feed.Feed, entry)
	}

	s.logger.Debug("timeline translated", "subject", user.SubjectID, "server", server, "posts", len(feed.Feed))
	return feed, nil
}

// GetPost fetches a single status and returns it as a post record.
func (s *BridgeService) GetPost(ctx context.Context, user *UserRecord, statusID string) (*RecordResult, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}

	server := user.MastodonServer()
	status, err := s.mastodon.GetStatus(ctx, server, user.AccessToken, statusID)
	if err != nil {
		return nil, fmt.Errorf("fetch status %s: %w", statusID, err)
	}

	return ConvertStatusRecord(status, server)
}

// CreateReply publishes reply on Mastodon as an answer to the status behind
// reply.ParentURI and returns a reference to the new post.
func (s *BridgeService) CreateReply(ctx context.Context, user *UserRecord, reply Reply) (*StrongRef, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}

	parentID, err := StatusIDFromPostURI(reply.ParentURI)
	if err != nil {
		return nil, err
	}

	server := user.MastodonServer()
	status, err := s.mastodon.PostStatus(ctx, server, user.AccessToken, NewStatus{
		Status:      reply.Text,
		InReplyToID: parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("post reply to %s: %w", parentID, err)
	}
	if err := validate(status); err != nil {
		return nil, err
	}

	author := NewSyntheticIdentity(status.Account, server)
	s.logger.Info("reply posted", "subject", user.SubjectID, "parent", parentID, "status", status.ID)

	return &StrongRef{
		URI: PostURI(author.DID, status.ID),
		CID: PlaceholderCID,
	}, nil
}
