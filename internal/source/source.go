// Package source locates and retrieves project documents by repository path.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Repo identifies a branch of a GitHub repository.
type Repo struct {
	Org    string
	Repo   string
	Branch string
}

func (r Repo) String() string { return r.Org + "/" + r.Repo + "@" + r.Branch }

// URL is the human-facing repository page.
func (r Repo) URL() string { return "https://github.com/" + r.Org + "/" + r.Repo }

// Location is a file inside a Repo.
type Location struct {
	Repo
	Path string
}

// BlobURL links to the rendered file on GitHub.
func (l Location) BlobURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", l.Org, l.Repo.Repo, l.Branch, strings.TrimLeft(l.Path, "/"))
}

func (l Location) String() string { return l.Repo.String() + ":" + l.Path }

// Fetcher returns the raw bytes of a document.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, loc Location) ([]byte, error)
}

// Kind classifies why a fetch failed.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindStatus      Kind = "status"
	KindCanceled    Kind = "canceled"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrRateLimited = errors.New("rate limited")
)

// FetchError describes a failed retrieval.
type FetchError struct {
	Loc    Location
	Kind   Kind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Loc, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	}
	return false
}

// Retryable reports whether a later run could succeed without changes to the repository.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindNetwork:
		return true
	case KindStatus:
		return e.Status >= 500
	}
	return false
}
