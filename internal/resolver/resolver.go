package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/blackmichael/mastodon-bridge/internal/auth"
	"github.com/blackmichael/mastodon-bridge/internal/domain"
)

// DefaultPDS is the public backend used when nothing more specific applies.
const DefaultPDS = "https://bsky.social"

// Identifier kinds reported to the metrics observer.
const (
	KindEmail  = "email"
	KindDID    = "did"
	KindHandle = "handle"
)

var emailLike = regexp.MustCompile(`.+@.+`)

// DIDResolver looks up the PDS behind a DID or handle.
type DIDResolver interface {
	ResolvePDSForDID(ctx context.Context, did string) (string, error)
	ResolvePDSForHandle(ctx context.Context, handle string) (string, error)
}

// Observer records identifier resolutions. *metrics.Metrics implements it.
type Observer interface {
	ObserveResolution(kind string, err error)
}

// Request is the part of an inbound request the resolver inspects.
type Request struct {
	Method      string
	ContentType string
	Body        []byte
}

// Resolver picks the backend origin for a request.
type Resolver struct {
	defaultPDS string
	dids       DIDResolver
	observer   Observer
	logger     *slog.Logger
}

// New creates a Resolver. An empty defaultPDS means DefaultPDS.
func New(defaultPDS string, dids DIDResolver, observer Observer, logger *slog.Logger) *Resolver {
	if defaultPDS == "" {
		defaultPDS = DefaultPDS
	}
	return &Resolver{
		defaultPDS: strings.TrimSuffix(defaultPDS, "/"),
		dids:       dids,
		observer:   observer,
		logger:     logger,
	}
}

// DefaultPDS returns the configured default backend origin.
func (r *Resolver) DefaultPDS() string {
	return r.defaultPDS
}

// Resolve returns the origin req should be forwarded to.
//
// A caller presenting claims for a subject missing from cfg fails with
// domain.ErrUnauthorized before the body is looked at. Anonymous writes with
// a JSON body carrying an "identifier" are routed to that account's PDS.
// This applies to every write, not only session creation.
func (r *Resolver) Resolve(ctx context.Context, claims *auth.Claims, cfg *domain.Config, req Request) (string, error) {
	if claims != nil {
		user, ok := cfg.Lookup(claims.Subject)
		if !ok {
			return "", domain.ErrUnauthorized
		}
		if user.PDS != "" {
			return strings.TrimSuffix(user.PDS, "/"), nil
		}
		return r.defaultPDS, nil
	}

	id, ok := sniffIdentifier(req)
	if !ok {
		return r.defaultPDS, nil
	}

	var (
		kind     string
		endpoint string
		err      error
	)
	switch {
	case emailLike.MatchString(id):
		kind, endpoint = KindEmail, r.defaultPDS
	case strings.HasPrefix(id, "did:"):
		kind = KindDID
		endpoint, err = r.dids.ResolvePDSForDID(ctx, id)
	default:
		kind = KindHandle
		endpoint, err = r.dids.ResolvePDSForHandle(ctx, id)
	}
	if r.observer != nil {
		r.observer.ObserveResolution(kind, err)
	}
	if err != nil {
		return "", fmt.Errorf("resolve pds for %s: %w", id, err)
	}

	r.logger.Debug("identifier resolved", "identifier", id, "kind", kind, "pds", endpoint)
	return strings.TrimSuffix(endpoint, "/"), nil
}

func sniffIdentifier(req Request) (string, bool) {
	if !isWrite(req.Method) || len(req.Body) == 0 {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(req.ContentType), "application/json") {
		return "", false
	}

	var body struct {
		Identifier string `json:"identifier"`
	}
	// Bodies that aren't a JSON object are left alone.
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return "", false
	}
	if body.Identifier == "" {
		return "", false
	}
	return body.Identifier, true
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
