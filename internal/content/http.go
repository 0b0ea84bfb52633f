// ABOUTME: HTTP attachment fetcher with a response size cap
// ABOUTME: Serves plain http(s) attachment URLs for the normalizer

package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxAttachmentBytes caps a single attachment download.
const DefaultMaxAttachmentBytes = 20 << 20

// HTTPFetcher downloads attachments over HTTP.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: DefaultMaxAttachmentBytes,
	}
}

// FetchBytes implements Fetcher.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching attachment: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}

// FetchText implements Fetcher.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	data, err := f.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
