package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingObserver struct {
	statuses []int
}

func (o *recordingObserver) ObserveProxy(_ string, status int, _ time.Duration) {
	o.statuses = append(o.statuses, status)
}

func TestForward_Passthrough(t *testing.T) {
	var got *http.Request
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got, gotBody = r.Clone(r.Context()), string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Atproto-Repo-Rev", "3kabc")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"uri":"at://did:plc:alice/app.bsky.feed.post/1"}`)
	}))
	defer upstream.Close()

	obs := &recordingObserver{}
	p := New(upstream.Client(), obs, "", testLogger())

	body := `{"collection":"app.bsky.feed.post"}`
	req := httptest.NewRequest(http.MethodPost, "/xrpc/com.atproto.repo.createRecord?x=1", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Atproto-Proxy", "did:web:api.bsky.app#bsky_appview")
	req.Header.Set("Connection", "keep-alive, X-Hop")
	req.Header.Set("X-Hop", "1")
	rr := httptest.NewRecorder()

	p.Forward(rr, req, upstream.URL+"/", []byte(body))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/xrpc/com.atproto.repo.createRecord?x=1", got.URL.RequestURI())
	assert.Equal(t, body, gotBody)
	assert.Equal(t, "Bearer abc", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "did:web:api.bsky.app#bsky_appview", got.Header.Get("Atproto-Proxy"))
	assert.NotEqual(t, "br", got.Header.Get("Accept-Encoding"))
	assert.Empty(t, got.Header.Get("X-Hop"))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, `{"uri":"at://did:plc:alice/app.bsky.feed.post/1"}`, rr.Body.String())
	assert.Equal(t, "3kabc", rr.Header().Get("Atproto-Repo-Rev"))
	assert.Equal(t, "49", rr.Header().Get("Content-Length"))
	assert.Equal(t, []int{http.StatusCreated}, obs.statuses)
}

func TestForward_RelaysErrorsAndStripsFraming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		// Flushing forces a chunked response.
		io.WriteString(w, `{"error":"InvalidRequest",`)
		w.(http.Flusher).Flush()
		io.WriteString(w, `"message":"bad"}`)
	}))
	defer upstream.Close()

	p := New(upstream.Client(), nil, "", testLogger())
	rr := httptest.NewRecorder()
	p.Forward(rr, httptest.NewRequest(http.MethodGet, "/xrpc/app.bsky.actor.getProfile", nil), upstream.URL, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"InvalidRequest","message":"bad"}`, rr.Body.String())
	assert.Empty(t, rr.Header().Values("Transfer-Encoding"))
	assert.Equal(t, "42", rr.Header().Get("Content-Length"))
}

func TestForward_DoesNotFollowRedirects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example/", http.StatusFound)
	}))
	defer upstream.Close()

	p := New(upstream.Client(), nil, "", testLogger())
	rr := httptest.NewRecorder()
	p.Forward(rr, httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil), upstream.URL, nil)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://elsewhere.example/", rr.Header().Get("Location"))
}

func TestForward_UpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	origin := upstream.URL
	upstream.Close()

	obs := &recordingObserver{}
	p := New(nil, obs, "", testLogger())
	rr := httptest.NewRecorder()
	p.Forward(rr, httptest.NewRequest(http.MethodGet, "/xrpc/app.bsky.feed.getTimeline", nil), origin, nil)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "UpstreamFailure", body["error"])
	assert.Equal(t, []int{0}, obs.statuses)
}

const sessionResponse = `{
	"accessJwt": "a.b.c",
	"did": "did:plc:alice",
	"handle": "alice.example",
	"didDoc": {
		"id": "did:plc:alice",
		"service": [
			{"id": "#atproto_labeler", "type": "AtprotoLabeler", "serviceEndpoint": "https://labeler.example"},
			{"id": "#atproto_pds", "type": "AtprotoPersonalDataServer", "serviceEndpoint": "https://pds.example"}
		]
	}
}`

func TestForward_RewritesSessionEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, sessionResponse)
	}))
	defer upstream.Close()

	tests := []struct {
		name      string
		publicURL string
		header    map[string]string
		want      string
	}{
		{name: "from request host", want: "http://bridge.example"},
		{name: "from public url", publicURL: "https://public.example/", want: "https://public.example"},
		{
			name:   "from forwarded headers",
			header: map[string]string{"X-Forwarded-Proto": "https, http", "X-Forwarded-Host": "edge.example"},
			want:   "https://edge.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(upstream.Client(), nil, tt.publicURL, testLogger())

			body := `{"identifier":"alice.example","password":"pw"}`
			req := httptest.NewRequest(http.MethodPost, "http://bridge.example"+SessionPath, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			p.Forward(rr, req, upstream.URL, []byte(body))

			require.Equal(t, http.StatusOK, rr.Code)

			var got struct {
				AccessJwt string `json:"accessJwt"`
				Handle    string `json:"handle"`
				DIDDoc    struct {
					ID      string `json:"id"`
					Service []struct {
						ID              string `json:"id"`
						Type            string `json:"type"`
						ServiceEndpoint string `json:"serviceEndpoint"`
					} `json:"service"`
				} `json:"didDoc"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, "a.b.c", got.AccessJwt)
			assert.Equal(t, "alice.example", got.Handle)
			assert.Equal(t, "did:plc:alice", got.DIDDoc.ID)
			require.Len(t, got.DIDDoc.Service, 2)
			assert.Equal(t, "https://labeler.example", got.DIDDoc.Service[0].ServiceEndpoint)
			assert.Equal(t, "AtprotoPersonalDataServer", got.DIDDoc.Service[1].Type)
			assert.Equal(t, tt.want, got.DIDDoc.Service[1].ServiceEndpoint)
			assert.Equal(t, len(rr.Body.Bytes()), mustAtoi(t, rr.Header().Get("Content-Length")))
		})
	}
}

func TestForward_SessionErrorsUntouched(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`)
	}))
	defer upstream.Close()

	p := New(upstream.Client(), nil, "", testLogger())
	rr := httptest.NewRecorder()
	p.Forward(rr, httptest.NewRequest(http.MethodPost, SessionPath, nil), upstream.URL, nil)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`, rr.Body.String())
}

func TestRewriteSessionEndpoint(t *testing.T) {
	t.Run("keeps url characters unescaped", func(t *testing.T) {
		out, err := rewriteSessionEndpoint([]byte(sessionResponse), "https://bridge.example/a?b=1&c=2")
		require.NoError(t, err)
		assert.Contains(t, string(out), `"serviceEndpoint":"https://bridge.example/a?b=1&c=2"`)
	})

	t.Run("no did document", func(t *testing.T) {
		in := []byte(`{"did":"did:plc:alice"}`)
		out, err := rewriteSessionEndpoint(in, "https://bridge.example")
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("no pds service", func(t *testing.T) {
		in := []byte(`{"didDoc":{"service":[{"id":"#other","serviceEndpoint":"x"}]}}`)
		out, err := rewriteSessionEndpoint(in, "https://bridge.example")
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := rewriteSessionEndpoint([]byte(`<html>`), "https://bridge.example")
		assert.Error(t, err)
	})
}

func TestForwardHeaders(t *testing.T) {
	in := http.Header{
		"Authorization":           {"Bearer x"},
		"Accept-Encoding":         {"gzip"},
		"Content-Type":            {"application/json"},
		"Content-Length":          {"10"},
		"Connection":              {"Upgrade, X-Private"},
		"Upgrade":                 {"websocket"},
		"X-Private":               {"secret"},
		"Keep-Alive":              {"timeout=5"},
		"Te":                      {"trailers"},
		"Atproto-Accept-Labelers": {"did:plc:labeler"},
		"User-Agent":              {"client/1.0"},
	}

	out := ForwardHeaders(in)

	assert.Equal(t, http.Header{
		"Authorization":           {"Bearer x"},
		"Atproto-Accept-Labelers": {"did:plc:labeler"},
		"User-Agent":              {"client/1.0"},
	}, out)
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
