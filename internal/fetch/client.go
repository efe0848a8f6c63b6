package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/task"
)

// Default limits used when Config leaves them unset
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 1 << 20
	DefaultUserAgent    = "fanout/1.0"
)

// Common fetch errors
var (
	// ErrUnexpectedStatus is returned for any non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrBodyTooLarge is returned when a response body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// Config holds the HTTP settings of a Client.
type Config struct {
	// Timeout bounds a single fetch, including reading the body.
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// Client downloads documents over HTTP.
type Client struct {
	http         *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	userAgent    string
}

// NewClient creates a Client. If httpClient is nil, a client with no
// timeout of its own is used; cfg.Timeout is applied per request instead.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &Client{
		http:         httpClient,
		timeout:      cfg.Timeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		userAgent:    cfg.UserAgent,
	}
}

// Fetch downloads rawURL. The time spent waiting on the network is reported
// through task.Suspend when ctx belongs to a running batch.
func (c *Client) Fetch(ctx context.Context, rawURL string) (domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	var doc domain.Document
	err = task.Suspend(ctx, func(ctx context.Context) error {
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
		}

		// Read one byte past the limit to tell "exactly at" from "over"
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if int64(len(body)) > c.maxBodyBytes {
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, c.maxBodyBytes)
		}

		doc = domain.Document{
			URL:         rawURL,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
			FetchedAt:   time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}

	return doc, nil
}

// Producer returns a task producer that fetches rawURL.
func (c *Client) Producer(rawURL string) task.Producer[domain.Document] {
	return func(ctx context.Context) (domain.Document, error) {
		return c.Fetch(ctx, rawURL)
	}
}

// Producers returns one producer per URL, in the same order.
func (c *Client) Producers(urls []string) []task.Producer[domain.Document] {
	producers := make([]task.Producer[domain.Document], len(urls))
	for i, u := range urls {
		producers[i] = c.Producer(u)
	}
	return producers
}
