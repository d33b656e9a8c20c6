package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/circleci-coverage/internal/models"
)

var (
	// ErrRejected is returned when the host answers a request with a non-2xx status.
	ErrRejected = errors.New("host rejected request")
)

// Client talks to a coverage host over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a Client for the host at baseURL (e.g. "http://127.0.0.1:8787").
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse host url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("host url must be http or https, got %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Deliver returns a DeliverFunc that posts records to the named task.
func (c *Client) Deliver(task string) DeliverFunc {
	return func(ctx context.Context, rec models.Record) error {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(task), body, nil)
	}
}

// Exposed fetches the host's exposed configuration.
func (c *Client) Exposed(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)
	if err := c.do(ctx, http.MethodGet, "/expose", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Complete tells the host every record has been delivered and the run is over.
func (c *Client) Complete(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/run/complete", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
