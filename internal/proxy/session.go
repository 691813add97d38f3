package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/blackmichael/mastodon-bridge/internal/bluesky"
)

// SessionPath is the endpoint whose response is rewritten.
const SessionPath = "/xrpc/com.atproto.server.createSession"

func isSessionCreate(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == SessionPath
}

// gatewayBaseURL is the URL clients use to reach this gateway.
func (p *Proxy) gatewayBaseURL(r *http.Request) string {
	if p.publicURL != "" {
		return p.publicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fp := firstValue(r.Header.Get("X-Forwarded-Proto")); fp != "" {
		scheme = fp
	}

	host := r.Host
	if fh := firstValue(r.Header.Get("X-Forwarded-Host")); fh != "" {
		host = fh
	}
	return scheme + "://" + host
}

func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// rewriteSessionEndpoint points the #atproto_pds service of the session's
// DID document at base. Bodies without such a service are returned as they
// are; every other field is kept.
func rewriteSessionEndpoint(body []byte, base string) ([]byte, error) {
	var session map[string]json.RawMessage
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	rawDoc, ok := session["didDoc"]
	if !ok {
		return body, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(rawDoc, &doc); err != nil {
		return nil, fmt.Errorf("decode didDoc: %w", err)
	}
	rawServices, ok := doc["service"]
	if !ok {
		return body, nil
	}

	var services []map[string]json.RawMessage
	if err := json.Unmarshal(rawServices, &services); err != nil {
		return nil, fmt.Errorf("decode didDoc services: %w", err)
	}

	found := false
	for _, svc := range services {
		var id string
		if err := json.Unmarshal(svc["id"], &id); err != nil || id != bluesky.PDSServiceID {
			continue
		}
		endpoint, err := marshal(base)
		if err != nil {
			return nil, err
		}
		svc["serviceEndpoint"] = endpoint
		found = true
		break
	}
	if !found {
		return body, nil
	}

	var err error
	if doc["service"], err = marshal(services); err != nil {
		return nil, err
	}
	if session["didDoc"], err = marshal(doc); err != nil {
		return nil, err
	}
	return marshal(session)
}

// marshal encodes v without HTML escaping, so URLs survive untouched.
func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
