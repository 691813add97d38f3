package domain

import "errors"

var (
	// ErrUnauthorized means no usable user record could be resolved for the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedStatus means a Mastodon payload was missing a required field.
	ErrMalformedStatus = errors.New("malformed mastodon status")

	// ErrInvalidPostURI means an at:// URI did not name a bridged post.
	ErrInvalidPostURI = errors.New("invalid bridged post uri")
)
