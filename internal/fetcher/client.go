// Package fetcher performs every network read of the updater: release
// metadata, remote manifests, assets and CI artifact archives.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	// ErrEmptyResponse is returned when an endpoint answers with an empty body.
	ErrEmptyResponse = errors.New("endpoint returned an empty response")
	// ErrEmptyArtifact is returned when no module file exists at any depth of
	// an extracted artifact.
	ErrEmptyArtifact = errors.New("artifact contains no module files")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 512

// Client is an HTTP client that stamps the updater user agent on every
// request and turns unsuccessful responses into errors.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a client with the given user agent and per-request timeout.
func NewClient(userAgent string, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// NewRequest builds a GET request carrying the user agent.
func (c *Client) NewRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// Get performs req and returns the complete body.
func (c *Client) Get(req *http.Request) ([]byte, error) {
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}
	return data, nil
}

// Download performs req and streams the body into dest, which is created
// or truncated. A partially written file is removed on failure.
func (c *Client) Download(req *http.Request, dest string) (int64, error) {
	req.Header.Set("Accept", "application/octet-stream")
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("failed to download %s: %w", req.URL, err)
	}
	if n == 0 {
		os.Remove(dest)
		return 0, ErrEmptyResponse
	}
	return n, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
