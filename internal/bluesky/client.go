package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultPDS = "https://bsky.social"

// XRPCError is a non-2xx XRPC response.
type XRPCError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *XRPCError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("XRPC error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("XRPC error (status %d): %s: %s", e.StatusCode, e.Name, e.Message)
}

// Client is a minimal AT Protocol client for managing the bridge's feed
// generator record.
type Client struct {
	pds        string
	httpClient *http.Client

	// populated after Login
	accessJwt string
	did       string
}

// NewClient creates a new client. If pds is empty, it defaults to
// https://bsky.social.
func NewClient(pds string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds: pds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login authenticates and stores the session token. Use an App Password, not
// your account password. When the session's DID document names a different
// PDS (the usual case when logging in through an entryway), subsequent calls
// go there.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	if resp.DIDDoc != nil {
		if pds := resp.DIDDoc.PDSEndpoint(); pds != "" {
			c.pds = pds
		}
	}
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	return c.did
}

// PDS returns the host the client currently talks to.
func (c *Client) PDS() string {
	return c.pds
}

// FeedGeneratorRecord is the record body for app.bsky.feed.generator.
type FeedGeneratorRecord struct {
	Type        string `json:"$type"`
	DID         string `json:"did"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// PublishFeedGenerator creates or updates a feed generator record in the
// authenticated user's repo via com.atproto.repo.putRecord.
func (c *Client) PublishFeedGenerator(ctx context.Context, rkey string, record FeedGeneratorRecord) error {
	if c.accessJwt == "" {
		return fmt.Errorf("not authenticated: call Login first")
	}
	record.Type = feedGeneratorCollection

	body := putRecordRequest{
		Repo:       c.did,
		Collection: feedGeneratorCollection,
		RKey:       rkey,
		Record:     record,
	}

	if err := c.post(ctx, "/xrpc/com.atproto.repo.putRecord", body, nil); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// UnpublishFeedGenerator deletes a feed generator record from the
// authenticated user's repo via com.atproto.repo.deleteRecord.
func (c *Client) UnpublishFeedGenerator(ctx context.Context, rkey string) error {
	if c.accessJwt == "" {
		return fmt.Errorf("not authenticated: call Login first")
	}

	body := deleteRecordRequest{
		Repo:       c.did,
		Collection: feedGeneratorCollection,
		RKey:       rkey,
	}

	if err := c.post(ctx, "/xrpc/com.atproto.repo.deleteRecord", body, nil); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

const feedGeneratorCollection = "app.bsky.feed.generator"

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		xerr := &XRPCError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != "" {
			xerr.Name = envelope.Error
			xerr.Message = envelope.Message
		}
		return xerr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

type createSessionResponse struct {
	AccessJwt string       `json:"accessJwt"`
	DID       string       `json:"did"`
	Handle    string       `json:"handle"`
	DIDDoc    *DIDDocument `json:"didDoc,omitempty"`
}

type putRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
	Record     any    `json:"record"`
}

type deleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
}
