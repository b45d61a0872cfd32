package scraper

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is the cause of a FetchError refused by an open breaker
var ErrCircuitOpen = errors.New("circuit breaker open")

// FetchError reports a page that could not be retrieved after all attempts
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempt(s): status %d", e.URL, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a document that is not a recognizable resort page
type ParseError struct {
	Slug   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Slug, e.Reason)
}
