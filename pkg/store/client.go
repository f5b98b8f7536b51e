// Package store is the client for the remote events collection. Each call is a single request/response exchange and
// nothing is ever retried; Create in particular is not idempotent.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/astromechza/event-list-sync/pkg/event"
)

// ErrNotFound is matched by TransportErrors caused by a 404 from the store.
var ErrNotFound = errors.New("not found")

// TransportError is returned for network failures, non-success status codes and undecodable responses.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to %s %s: unexpected status code: %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d, Transport: c.http.Transport}
		}
	}
}

// Client talks to <base>/events.
type Client struct {
	baseUrl *url.URL
	http    *http.Client
}

func New(baseUrl string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("store url must be absolute: %q", baseUrl)
	}
	c := &Client{baseUrl: u, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) collectionUrl() string {
	return c.baseUrl.JoinPath("events").String()
}

func (c *Client) itemUrl(id event.ID) string {
	return c.baseUrl.JoinPath("events", id.String()).String()
}

// List fetches every event in store order.
func (c *Client) List(ctx context.Context) ([]event.Event, error) {
	var out []event.Event
	if err := c.do(ctx, "list", http.MethodGet, c.collectionUrl(), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []event.Event{}
	}
	return out, nil
}

// Create submits a new record and returns it with the identifier the store assigned.
func (c *Client) Create(ctx context.Context, draft event.Draft) (event.Event, error) {
	var out event.Event
	u := c.collectionUrl()
	if err := c.do(ctx, "create", http.MethodPost, u, draft.Normalize(), &out); err != nil {
		return event.Event{}, err
	}
	if out.ID.IsZero() {
		return event.Event{}, &TransportError{Op: "create", URL: u, Err: errors.New("response carried no id")}
	}
	return out, nil
}

// Remove deletes by identifier. The confirmation payload is read and discarded.
func (c *Client) Remove(ctx context.Context, id event.ID) error {
	return c.do(ctx, "remove", http.MethodDelete, c.itemUrl(id), nil, nil)
}

// Update applies a partial update and returns the stored record.
func (c *Client) Update(ctx context.Context, id event.ID, patch event.Patch) (event.Event, error) {
	var out event.Event
	if err := c.do(ctx, "update", http.MethodPatch, c.itemUrl(id), patch, &out); err != nil {
		return event.Event{}, err
	}
	if out.ID.IsZero() {
		out.ID = id
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, u string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s body: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &TransportError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("store request failed", "op", op, "url", u, "err", err)
		return &TransportError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()
	slog.Debug("store request", "op", op, "method", method, "url", u, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, URL: u, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
