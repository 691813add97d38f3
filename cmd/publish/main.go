package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blackmichael/mastodon-bridge/internal/bluesky"
	"github.com/blackmichael/mastodon-bridge/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		handle      string
		password    string
		pds         string
		serviceDID  string
		feedRKey    string
		displayName string
		description string
		unpublish   bool
	)

	feedURI := envOrDefault("BRIDGE_FEED_URI", config.DefaultFeedURI)
	defaultServiceDID := ""
	if h := os.Getenv("BRIDGE_HOSTNAME"); h != "" {
		defaultServiceDID = "did:web:" + h
	}

	flag.StringVar(&handle, "handle", envOrDefault("BLUESKY_HANDLE", ""), "BlueSky handle (e.g. user.bsky.social)")
	flag.StringVar(&password, "password", envOrDefault("BLUESKY_APP_PASSWORD", ""), "BlueSky app password")
	flag.StringVar(&pds, "pds", envOrDefault("BRIDGE_DEFAULT_PDS", "https://bsky.social"), "PDS service URL")
	flag.StringVar(&serviceDID, "service-did", defaultServiceDID, "Bridge service DID (defaults to did:web:$BRIDGE_HOSTNAME)")
	flag.StringVar(&feedRKey, "rkey", rkeyOf(feedURI), "Record key of the feed generator")
	flag.StringVar(&displayName, "name", "Mastodon", "Feed display name (max 24 graphemes)")
	flag.StringVar(&description, "description", "Your Mastodon home timeline, bridged.", "Feed description (max 300 graphemes)")
	flag.BoolVar(&unpublish, "unpublish", false, "Delete the feed generator record instead of publishing")
	flag.Parse()

	if handle == "" || password == "" {
		return fmt.Errorf("--handle and --password are required (or set BLUESKY_HANDLE and BLUESKY_APP_PASSWORD)")
	}
	if feedRKey == "" {
		return fmt.Errorf("--rkey is required")
	}

	ctx := context.Background()
	client := bluesky.NewClient(pds)

	fmt.Printf("Logging in as %s...\n", handle)
	if err := client.Login(ctx, handle, password); err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s (PDS %s)\n", client.DID(), client.PDS())

	published := fmt.Sprintf("at://%s/app.bsky.feed.generator/%s", client.DID(), feedRKey)

	if unpublish {
		fmt.Printf("Unpublishing feed %q...\n", feedRKey)
		if err := client.UnpublishFeedGenerator(ctx, feedRKey); err != nil {
			return err
		}
		fmt.Printf("Feed unpublished: %s\n", published)
		return nil
	}

	if serviceDID == "" {
		return fmt.Errorf("--service-did is required for publishing (or set BRIDGE_HOSTNAME)")
	}

	record := bluesky.FeedGeneratorRecord{
		DID:         serviceDID,
		DisplayName: displayName,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	fmt.Printf("Publishing feed %q...\n", feedRKey)
	if err := client.PublishFeedGenerator(ctx, feedRKey, record); err != nil {
		return err
	}
	fmt.Printf("Feed published: %s\n", published)

	if published != feedURI {
		fmt.Printf("Note: the gateway intercepts %s; set BRIDGE_FEED_URI=%s to serve this feed\n", feedURI, published)
	}
	return nil
}

// rkeyOf returns the record key (last path segment) of an at:// URI.
func rkeyOf(uri string) string {
	return uri[strings.LastIndex(uri, "/")+1:]
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
