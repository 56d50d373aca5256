package compositor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPFetcher retrieves media bytes. When Open is set it takes over the
// transport entirely; the server wires it to the storage collaborator,
// which routes deploy-controlled storage URLs through the same-origin
// proxy and everything else over plain HTTP.
type HTTPFetcher struct {
	Client *http.Client
	Open   func(ctx context.Context, url string) (io.ReadCloser, string, error)
}

func NewHTTPFetcher(open func(ctx context.Context, url string) (io.ReadCloser, string, error)) *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{Timeout: 2 * time.Minute},
		Open:   open,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.Open != nil {
		rc, _, err := f.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
