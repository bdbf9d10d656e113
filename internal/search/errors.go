package search

import "errors"

var (
	// ErrInvalidTarget marks URL validation and DNS resolution failures.
	ErrInvalidTarget = errors.New("invalid URL or DNS failure")
	// ErrRobotsDisallowed marks sites whose robots.txt forbids the root path.
	ErrRobotsDisallowed = errors.New("root disallowed by robots.txt")
	// ErrPageNotOK marks a missing or non-2xx document response.
	ErrPageNotOK = errors.New("page response not ok")
	// ErrNoContent marks a page without any indexable terms.
	ErrNoContent = errors.New("page has no indexable content")
	// ErrRendererUnavailable marks a renderer that was never started or was closed.
	ErrRendererUnavailable = errors.New("renderer unavailable")
)
