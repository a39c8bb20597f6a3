package source

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperifyio/catalogbuilder/internal/fetch"
)

// DefaultRawBaseURL serves branch files verbatim.
const DefaultRawBaseURL = "https://raw.githubusercontent.com"

// GitHub reads files from raw.githubusercontent.com (or a compatible mirror).
type GitHub struct {
	BaseURL string
	Client  *fetch.Client
}

func (g *GitHub) Name() string { return "github" }

// RawURL is the download address for loc.
func (g *GitHub) RawURL(loc Location) string {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = DefaultRawBaseURL
	}
	parts := []string{base, url.PathEscape(loc.Org), url.PathEscape(loc.Repo.Repo), url.PathEscape(loc.Branch)}
	for _, seg := range strings.Split(strings.TrimLeft(loc.Path, "/"), "/") {
		parts = append(parts, url.PathEscape(seg))
	}
	return strings.Join(parts, "/")
}

func (g *GitHub) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	if g.Client == nil {
		return nil, &FetchError{Loc: loc, Kind: KindNetwork, Err: errors.New("no HTTP client configured")}
	}
	body, _, err := g.Client.Get(ctx, g.RawURL(loc))
	if err != nil {
		return nil, classify(ctx, loc, err)
	}
	return body, nil
}

func classify(ctx context.Context, loc Location, err error) *FetchError {
	fe := &FetchError{Loc: loc, Err: err}
	var se *fetch.StatusError
	var ne net.Error
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		fe.Kind = KindCanceled
	case errors.As(err, &se):
		fe.Status = se.StatusCode
		switch {
		case se.StatusCode == http.StatusNotFound:
			fe.Kind = KindNotFound
		case se.RateLimited:
			fe.Kind = KindRateLimited
		default:
			fe.Kind = KindStatus
		}
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		fe.Kind = KindTimeout
	default:
		fe.Kind = KindNetwork
	}
	return fe
}
