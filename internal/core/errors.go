package core

import "errors"

var (
	// ErrAlreadyPublishing is reported to the ingestion adapter, which decides whether to reject.
	ErrAlreadyPublishing = errors.New("stream already publishing")
	// ErrNotPublisher marks a stale or duplicate unpublish.
	ErrNotPublisher = errors.New("not the current publisher")
	// ErrNotFound is returned for a path the table has never seen.
	ErrNotFound = errors.New("stream not found")
)
