package hls

import (
	"context"
	"net/url"
)

// Fetcher retrieves playlist text. *downloader.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// Load fetches u and parses the result.
func Load(ctx context.Context, f Fetcher, u *url.URL) (*Document, error) {
	text, err := f.Fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return Parse(text, u), nil
}
