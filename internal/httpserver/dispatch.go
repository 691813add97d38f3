package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/blackmichael/mastodon-bridge/internal/auth"
	"github.com/blackmichael/mastodon-bridge/internal/bluesky"
	"github.com/blackmichael/mastodon-bridge/internal/domain"
	"github.com/blackmichael/mastodon-bridge/internal/mastodon"
	"github.com/blackmichael/mastodon-bridge/internal/metrics"
	"github.com/blackmichael/mastodon-bridge/internal/resolver"
)

const (
	getFeedPath      = "/xrpc/app.bsky.feed.getFeed"
	getRecordPath    = "/xrpc/com.atproto.repo.getRecord"
	createRecordPath = "/xrpc/com.atproto.repo.createRecord"

	// maxTimelineLimit is the largest page Mastodon serves. Larger requests
	// are clamped rather than rejected.
	maxTimelineLimit = 40
)

// Translated operations, as reported to metrics.
const (
	opTimeline = "timeline"
	opGetPost  = "get_post"
	opReply    = "create_reply"
)

// call is everything derived from one inbound request before routing. The
// body is read once and shared by route matching and the proxy.
type call struct {
	r      *http.Request
	body   []byte
	claims *auth.Claims
	cfg    *domain.Config
}

// user returns the caller's record, or nil for anonymous and unknown callers.
func (c *call) user() *domain.UserRecord {
	if c.claims == nil {
		return nil
	}
	u, _ := c.cfg.Lookup(c.claims.Subject)
	return u
}

type route struct {
	name   string
	match  func(c *call) bool
	handle func(w http.ResponseWriter, c *call)
}

// translatedRoutes lists the intercepted calls in precedence order. A call
// that matches none of them is proxied.
func (s *Server) translatedRoutes() []route {
	return []route{
		{name: opTimeline, match: s.matchFeed, handle: s.handleFeed},
		{name: opGetPost, match: matchGetRecord, handle: s.handleGetRecord},
		{name: opReply, match: matchCreateRecord, handle: s.handleCreateRecord},
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("failed to read request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", "failed to read request body")
		return
	}

	claims, err := auth.FromRequest(r)
	if err != nil {
		s.logger.Warn("malformed bearer token", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "InvalidToken", "malformed bearer token")
		return
	}

	cfg, err := s.deps.Users.LoadConfig(r.Context())
	if err != nil {
		s.logger.Error("failed to load user directory", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "failed to load configuration")
		return
	}

	c := &call{r: r, body: body, claims: claims, cfg: cfg}
	for _, rt := range s.routes {
		if rt.match(c) {
			s.logger.Debug("translating request", "route", rt.name, "subject", subject(claims))
			rt.handle(w, c)
			return
		}
	}

	s.passthrough(w, c)
}

func (s *Server) passthrough(w http.ResponseWriter, c *call) {
	origin, err := s.deps.Resolver.Resolve(c.r.Context(), c.claims, c.cfg, resolver.Request{
		Method:      c.r.Method,
		ContentType: c.r.Header.Get("Content-Type"),
		Body:        c.body,
	})
	if err != nil {
		s.fail(w, c, "", err)
		return
	}

	s.logger.Debug("proxying request", "method", c.r.Method, "path", c.r.URL.Path, "origin", origin, "subject", subject(c.claims))
	s.deps.Proxy.Forward(w, c.r, origin, c.body)
}

func (s *Server) matchFeed(c *call) bool {
	return c.r.Method == http.MethodGet &&
		c.r.URL.Path == getFeedPath &&
		c.r.URL.Query().Get("feed") == s.cfg.FeedURI
}

func (s *Server) handleFeed(w http.ResponseWriter, c *call) {
	user := c.user()
	if user == nil {
		s.fail(w, c, opTimeline, domain.ErrUnauthorized)
		return
	}

	limit := 0
	if l := c.r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.logger.Warn("invalid limit parameter", "limit", l, "error", err)
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxTimelineLimit)
	}

	feed, err := s.deps.Bridge.Timeline(c.r.Context(), user, limit)
	if err != nil {
		s.fail(w, c, opTimeline, err)
		return
	}

	s.deps.Metrics.ObserveTranslation(opTimeline, metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, feed)
}

func matchGetRecord(c *call) bool {
	if c.r.Method != http.MethodGet || c.r.URL.Path != getRecordPath {
		return false
	}
	q := c.r.URL.Query()
	return q.Get("collection") == domain.PostCollection && domain.IsSyntheticDID(q.Get("repo"))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, c *call) {
	user := c.user()
	if user == nil {
		s.fail(w, c, opGetPost, domain.ErrUnauthorized)
		return
	}

	rkey := c.r.URL.Query().Get("rkey")
	if rkey == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "rkey parameter is required")
		return
	}

	record, err := s.deps.Bridge.GetPost(c.r.Context(), user, rkey)
	if err != nil {
		s.fail(w, c, opGetPost, err)
		return
	}

	s.deps.Metrics.ObserveTranslation(opGetPost, metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, record)
}

// createRecordInput is the part of a com.atproto.repo.createRecord body the
// bridge reads.
type createRecordInput struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     struct {
		Text  string           `json:"text"`
		Reply *domain.ReplyRef `json:"reply"`
	} `json:"record"`
}

func decodeCreateRecord(body []byte) (*createRecordInput, bool) {
	var in createRecordInput
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false
	}
	return &in, true
}

func matchCreateRecord(c *call) bool {
	if c.r.Method != http.MethodPost || c.r.URL.Path != createRecordPath {
		return false
	}
	in, ok := decodeCreateRecord(c.body)
	return ok &&
		in.Collection == domain.PostCollection &&
		in.Record.Reply != nil &&
		domain.IsSyntheticPostURI(in.Record.Reply.Parent.URI)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, c *call) {
	user := c.user()
	if user == nil {
		s.fail(w, c, opReply, domain.ErrUnauthorized)
		return
	}

	in, _ := decodeCreateRecord(c.body)
	ref, err := s.deps.Bridge.CreateReply(c.r.Context(), user, domain.Reply{
		ParentURI: in.Record.Reply.Parent.URI,
		Text:      in.Record.Text,
	})
	if err != nil {
		s.fail(w, c, opReply, err)
		return
	}

	s.deps.Metrics.ObserveTranslation(opReply, metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, ref)
}

// fail maps err onto an XRPC error response. op names the translated
// operation for metrics and is empty for passthrough failures.
func (s *Server) fail(w http.ResponseWriter, c *call, op string, err error) {
	var (
		apiErr  *mastodon.APIError
		status  int
		errType string
		message string
		outcome string
	)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, errType, message, outcome = http.StatusUnauthorized, "AuthenticationRequired", "no bridged account for this caller", metrics.OutcomeUnauthorized
	case errors.Is(err, domain.ErrInvalidPostURI), errors.Is(err, bluesky.ErrInvalidIdentifier):
		status, errType, message, outcome = http.StatusBadRequest, "InvalidRequest", err.Error(), metrics.OutcomeError
	case errors.As(err, &apiErr):
		status, errType, message, outcome = apiErr.StatusCode, "UpstreamFailure", "mastodon request failed", metrics.OutcomeUpstream
	default:
		status, errType, message, outcome = http.StatusInternalServerError, "InternalServerError", "internal error", metrics.OutcomeError
	}

	logger := s.logger.With("method", c.r.Method, "path", c.r.URL.Path, "subject", subject(c.claims), "error", err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status)
	} else {
		logger.Warn("request rejected", "status", status)
	}

	if op != "" {
		s.deps.Metrics.ObserveTranslation(op, outcome)
	}
	writeError(w, status, errType, message)
}

func subject(claims *auth.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}
