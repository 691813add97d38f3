package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bluesky-social/indigo/atproto/identity"
	"github.com/bluesky-social/indigo/atproto/syntax"
)

const (
	// PDSServiceID is the DID document service id of an account's PDS.
	PDSServiceID = "#atproto_pds"

	defaultPLCURL = "https://plc.directory"
)

var (
	// ErrNoPDS means a DID document lists no PDS service.
	ErrNoPDS = errors.New("did document has no atproto_pds service")

	// ErrInvalidIdentifier means a DID or handle failed syntax validation.
	// Nothing is fetched for such identifiers.
	ErrInvalidIdentifier = errors.New("invalid atproto identifier")
)

// DIDDocument is the subset of a DID document the session response embeds.
type DIDDocument struct {
	ID          string       `json:"id"`
	AlsoKnownAs []string     `json:"alsoKnownAs,omitempty"`
	Service     []DIDService `json:"service"`
}

// DIDService is a single service entry of a DID document.
type DIDService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// PDSEndpoint returns the endpoint of the #atproto_pds service, or "".
func (d *DIDDocument) PDSEndpoint() string {
	for _, s := range d.Service {
		if s.ID == PDSServiceID || strings.HasSuffix(s.ID, PDSServiceID) {
			return s.ServiceEndpoint
		}
	}
	return ""
}

// IdentityResolver finds the PDS behind a DID or handle. Lookups are not
// cached.
type IdentityResolver struct {
	dir identity.Directory
}

// NewIdentityResolver creates a resolver using the given PLC directory. An
// empty plcURL means https://plc.directory.
func NewIdentityResolver(plcURL string, httpClient *http.Client) *IdentityResolver {
	if plcURL == "" {
		plcURL = defaultPLCURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IdentityResolver{
		dir: &identity.BaseDirectory{
			PLCURL:              strings.TrimSuffix(plcURL, "/"),
			HTTPClient:          *httpClient,
			TryAuthoritativeDNS: true,
			// Only the PDS matters for routing; the declared handle is not.
			SkipHandleVerification: true,
		},
	}
}

// ResolvePDSForDID returns the PDS endpoint of did.
func (r *IdentityResolver) ResolvePDSForDID(ctx context.Context, did string) (string, error) {
	parsed, err := syntax.ParseDID(did)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}

	ident, err := r.dir.LookupDID(ctx, parsed)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", did, err)
	}
	return pdsOf(ident)
}

// ResolvePDSForHandle returns the PDS endpoint of the account behind handle.
// The handle must be syntactically valid before any lookup is made.
func (r *IdentityResolver) ResolvePDSForHandle(ctx context.Context, handle string) (string, error) {
	parsed, err := syntax.ParseHandle(strings.TrimPrefix(handle, "@"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}

	ident, err := r.dir.LookupHandle(ctx, parsed.Normalize())
	if err != nil {
		return "", fmt.Errorf("resolve handle %s: %w", parsed, err)
	}
	return pdsOf(ident)
}

func pdsOf(ident *identity.Identity) (string, error) {
	pds := ident.PDSEndpoint()
	if pds == "" {
		return "", fmt.Errorf("%s: %w", ident.DID, ErrNoPDS)
	}
	return pds, nil
}
