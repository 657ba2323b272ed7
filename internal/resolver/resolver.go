// Package resolver turns a subject into a playable media URL.
package resolver

import (
	"context"
	"errors"
	"strings"
)

// ErrNotLive is returned when the subject is not broadcasting.
var ErrNotLive = errors.New("subject is not live")

// Resolver looks up the current media URL of a subject. It returns
// ErrNotLive (possibly wrapped) when there is nothing to record; any
// other error is a lookup failure.
type Resolver interface {
	Resolve(ctx context.Context, subject string) (string, error)
}

// Static always resolves to the same URL.
type Static struct {
	URL string
}

// Resolve returns the configured URL, or ErrNotLive when it is empty.
func (s Static) Resolve(ctx context.Context, subject string) (string, error) {
	if strings.TrimSpace(s.URL) == "" {
		return "", ErrNotLive
	}
	return s.URL, nil
}
