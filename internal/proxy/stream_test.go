package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForward_RelaysWebsocket(t *testing.T) {
	type upstreamSeen struct {
		uri    string
		auth   string
		closed *websocket.CloseError
	}
	seen := make(chan upstreamSeen, 1)

	upgrader := websocket.Upgrader{Subprotocols: []string{"atproto"}}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		s := upstreamSeen{uri: r.URL.RequestURI(), auth: r.Header.Get("Authorization")}
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				s.closed, _ = err.(*websocket.CloseError)
				seen <- s
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("echo:"), data...)); err != nil {
				seen <- s
				return
			}
		}
	}))
	defer upstream.Close()

	obs := &recordingObserver{}
	p := New(nil, obs, "", testLogger())
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Forward(w, r, upstream.URL, nil)
	}))
	defer gateway.Close()

	dialer := websocket.Dialer{Subprotocols: []string{"atproto"}}
	wsURL := "ws" + strings.TrimPrefix(gateway.URL, "http") + "/xrpc/com.atproto.sync.subscribeRepos?cursor=5"
	conn, resp, err := dialer.Dial(wsURL, http.Header{"Authorization": {"Bearer abc"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "atproto", resp.Header.Get("Sec-Websocket-Protocol"))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frame")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, "echo:frame", string(data))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	select {
	case s := <-seen:
		assert.Equal(t, "/xrpc/com.atproto.sync.subscribeRepos?cursor=5", s.uri)
		assert.Equal(t, "Bearer abc", s.auth)
		require.NotNil(t, s.closed)
		assert.Equal(t, websocket.CloseNormalClosure, s.closed.Code)
		assert.Equal(t, "bye", s.closed.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never saw the close")
	}
}

func TestForward_WebsocketDialFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no streams here", http.StatusNotImplemented)
	}))
	defer upstream.Close()

	p := New(nil, nil, "", testLogger())
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Forward(w, r, upstream.URL, nil)
	}))
	defer gateway.Close()

	wsURL := "ws" + strings.TrimPrefix(gateway.URL, "http") + "/xrpc/com.atproto.sync.subscribeRepos"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		origin  string
		want    string
		wantErr bool
	}{
		{origin: "https://bsky.social", want: "wss://bsky.social/xrpc/x?a=1"},
		{origin: "http://localhost:2583/", want: "ws://localhost:2583/xrpc/x?a=1"},
		{origin: "ftp://example.com", wantErr: true},
	}
	for _, tt := range tests {
		got, err := streamURL(tt.origin, "/xrpc/x?a=1")
		if tt.wantErr {
			assert.Error(t, err, tt.origin)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
