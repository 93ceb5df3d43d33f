// Package fetch retrieves submitted artifacts over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrEmptyBody is returned when the source responds with no content.
	ErrEmptyBody = errors.New("empty response body")
	// ErrTooLarge is returned when the body exceeds the configured limit.
	ErrTooLarge = errors.New("response body exceeds size limit")
)

// Client performs binary GETs against artifact sources.
type Client struct {
	http     *http.Client
	maxBytes int64
}

// New returns a Client. A nil httpClient uses http.DefaultClient; maxBytes <= 0
// disables the size limit.
func New(httpClient *http.Client, maxBytes int64) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, maxBytes: maxBytes}
}

// Fetch downloads the body at sourceURL. The request honours ctx's deadline.
func (c *Client) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", sourceURL, err)
	}
	req.Header.Set("Accept", "application/octet-stream, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("get %s: request failed with status code %d", sourceURL, resp.StatusCode)
	}

	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return nil, fmt.Errorf("get %s: %w (%d > %d bytes)", sourceURL, ErrTooLarge, resp.ContentLength, c.maxBytes)
	}

	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sourceURL, err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("get %s: %w (limit %d bytes)", sourceURL, ErrTooLarge, c.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("get %s: %w", sourceURL, ErrEmptyBody)
	}
	return data, nil
}
