// Package publish submits rendered segments to the destination platform.
// The platform API itself stays behind the Publisher contract; the
// pipeline only cares about the returned reference and the failure class.
package publish

import (
	"context"
	"errors"
)

var (
	ErrRateLimited = errors.New("publish rate limited")
	ErrRejected    = errors.New("publish rejected")
	ErrAuthExpired = errors.New("publish credentials expired")
)

// Metadata describes one segment being published.
type Metadata struct {
	ItemID      string
	Part        int
	TotalParts  int
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
	SourceURL   string
}

type Publisher interface {
	// Publish uploads the file and returns an opaque external reference.
	Publish(ctx context.Context, localPath string, meta Metadata) (string, error)
}
