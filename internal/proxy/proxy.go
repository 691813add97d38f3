package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Observer records relayed requests. *metrics.Metrics implements it.
type Observer interface {
	ObserveProxy(method string, status int, duration time.Duration)
}

// Headers never copied onto the upstream request. Content-Type is set
// explicitly and Content-Length follows the buffered body.
var requestSkip = map[string]bool{
	"Host":            true,
	"Accept-Encoding": true,
	"Content-Type":    true,
	"Content-Length":  true,
}

// Headers never relayed back to the caller. The body is fully buffered, so
// framing headers are recomputed.
var responseSkip = map[string]bool{
	"Content-Length": true,
}

// Hop-by-hop headers, RFC 9110 section 7.6.1.
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Connection":    true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Proxy forwards requests to a resolved origin and relays the response.
type Proxy struct {
	client    *http.Client
	dialer    *websocket.Dialer
	upgrader  websocket.Upgrader
	observer  Observer
	publicURL string
	logger    *slog.Logger
}

// New creates a Proxy. Redirects are relayed to the caller, never followed.
// publicURL, when set, is the gateway base URL written into session
// responses; otherwise it is derived from each request.
func New(client *http.Client, observer Observer, publicURL string, logger *slog.Logger) *Proxy {
	if client == nil {
		client = &http.Client{}
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Proxy{
		client: &c,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
		upgrader: websocket.Upgrader{
			// Browser clients connect from their own origins; the upstream
			// decides what it accepts.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		observer:  observer,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		logger:    logger,
	}
}

// Forward sends r to origin with the given body and writes the upstream
// response to w. body replaces r.Body, which callers have usually consumed
// already. Upstream non-2xx responses are relayed as they are.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, origin string, body []byte) {
	if websocket.IsWebSocketUpgrade(r) {
		p.relayStream(w, r, origin)
		return
	}

	start := time.Now()
	target := strings.TrimSuffix(origin, "/") + r.URL.RequestURI()

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to build upstream request", "target", target, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamFailure", "invalid upstream target")
		return
	}
	req.Header = ForwardHeaders(r.Header)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.observe(r.Method, 0, start)
		p.logger.Error("upstream request failed", "method", r.Method, "target", target, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamFailure", "upstream request failed")
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.observe(r.Method, 0, start)
		p.logger.Error("failed to read upstream response", "method", r.Method, "target", target, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamFailure", "failed to read upstream response")
		return
	}

	if isSessionCreate(r) && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		base := p.gatewayBaseURL(r)
		rewritten, err := rewriteSessionEndpoint(respBody, base)
		if err != nil {
			p.logger.Warn("failed to rewrite session endpoint", "error", err)
		} else {
			respBody = rewritten
			p.logger.Debug("session endpoint rewritten", "endpoint", base)
		}
	}

	dst := w.Header()
	for k, vv := range resp.Header {
		if hopByHop[k] || responseSkip[k] {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
	dst.Set("Content-Length", strconv.Itoa(len(respBody)))

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(respBody); err != nil {
		p.logger.Warn("failed to write response", "error", err)
	}

	p.observe(r.Method, resp.StatusCode, start)
	p.logger.Debug("request relayed", "method", r.Method, "target", target, "status", resp.StatusCode)
}

// ForwardHeaders returns the subset of in that is copied onto an upstream
// request: everything except Host, Accept-Encoding, Content-Type,
// Content-Length and hop-by-hop headers, including any listed in Connection.
func ForwardHeaders(in http.Header) http.Header {
	connection := map[string]bool{}
	for _, v := range in.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				connection[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	out := make(http.Header, len(in))
	for k, vv := range in {
		ck := http.CanonicalHeaderKey(k)
		if requestSkip[ck] || hopByHop[ck] || connection[ck] {
			continue
		}
		out[ck] = append(out[ck], vv...)
	}
	return out
}

func (p *Proxy) observe(method string, status int, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveProxy(method, status, time.Since(start))
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   errType,
		"message": message,
	})
}
