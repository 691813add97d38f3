package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Headers the websocket dialer sets itself and rejects when duplicated.
var dialerManaged = []string{
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Extensions",
}

// relayStream bridges a websocket subscription (e.g.
// com.atproto.sync.subscribeRepos) to the same path on origin. Frames are
// copied in both directions until either side closes.
func (p *Proxy) relayStream(w http.ResponseWriter, r *http.Request, origin string) {
	start := time.Now()
	logger := p.logger.With("path", r.URL.Path)

	target, err := streamURL(origin, r.URL.RequestURI())
	if err != nil {
		logger.Error("invalid stream origin", "origin", origin, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamFailure", "invalid upstream target")
		return
	}

	header := ForwardHeaders(r.Header)
	for _, k := range dialerManaged {
		header.Del(k)
	}

	upstream, resp, err := p.dialer.DialContext(r.Context(), target, header)
	if err != nil {
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		p.observe(r.Method, status, start)
		logger.Error("failed to dial upstream stream", "target", target, "status", status, "error", err)
		writeError(w, status, "UpstreamFailure", "upstream stream unavailable")
		return
	}
	defer upstream.Close()

	var respHeader http.Header
	if proto := upstream.Subprotocol(); proto != "" {
		respHeader = http.Header{"Sec-Websocket-Protocol": {proto}}
	}

	// Upgrade writes its own error response on failure.
	client, err := p.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		logger.Warn("failed to upgrade client connection", "error", err)
		return
	}
	defer client.Close()

	p.observe(r.Method, http.StatusSwitchingProtocols, start)
	logger.Info("stream opened", "target", target)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return pump(upstream, client) })
	g.Go(func() error { return pump(client, upstream) })
	g.Go(func() error {
		<-ctx.Done()
		client.Close()
		upstream.Close()
		return nil
	})

	err = g.Wait()
	if isNormalClose(err) {
		logger.Info("stream closed", "duration", time.Since(start))
		return
	}
	logger.Warn("stream closed with error", "duration", time.Since(start), "error", err)
}

// pump copies messages from src to dst. It always returns a non-nil error,
// forwarding a close frame from src before returning.
func pump(dst, src *websocket.Conn) error {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				msg := websocket.FormatCloseMessage(ce.Code, ce.Text)
				_ = dst.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			}
			return err
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			return err
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func streamURL(origin, requestURI string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(origin, "/") + requestURI)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
