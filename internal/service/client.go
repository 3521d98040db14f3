package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a bean service over JSON/HTTP. It implements Service.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// Ensure Client implements Service at compile time.
var _ Service = (*Client)(nil)

const (
	defaultAPIBind   = "127.0.0.1:7490"
	defaultUserAgent = "captable/0.1"
	requestTimeout   = 30 * time.Second
)

// NewClient builds a Client using the provided apiBind host:port value.
func NewClient(apiBind string) (*Client, error) {
	base, err := parseBaseURL(apiBind)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// Read implements Reader.
func (c *Client) Read(ctx context.Context, q ReadQuery) ([]Bean, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload beansResponse
	if err := c.post(ctx, "/api/read", q, &payload); err != nil {
		return nil, err
	}
	return payload.Beans, nil
}

// Count implements Reader.
func (c *Client) Count(ctx context.Context, q CountQuery) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("client is nil")
	}
	var payload countResponse
	if err := c.post(ctx, "/api/count", q, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// Create implements Creator.
func (c *Client) Create(ctx context.Context, parentKeys []Key, data []BeanData) ([]Bean, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload beansResponse
	if err := c.post(ctx, "/api/create", createRequest{ParentKeys: parentKeys, Beans: data}, &payload); err != nil {
		return nil, err
	}
	return payload.Beans, nil
}

// Update implements Updater.
func (c *Client) Update(ctx context.Context, mods []BeanModification) ([]Bean, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload beansResponse
	if err := c.post(ctx, "/api/update", updateRequest{Modifications: mods}, &payload); err != nil {
		return nil, err
	}
	return payload.Beans, nil
}

// Refresh implements Refresher.
func (c *Client) Refresh(ctx context.Context, keys []Key) ([]Bean, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload beansResponse
	if err := c.post(ctx, "/api/refresh", keysRequest{Keys: keys}, &payload); err != nil {
		return nil, err
	}
	return payload.Beans, nil
}

// Delete implements Deleter.
func (c *Client) Delete(ctx context.Context, keys []Key) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.post(ctx, "/api/delete", keysRequest{Keys: keys}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	rel := &url.URL{Path: path}
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(rel, resp)
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if payload, ok := dest.(*beansResponse); ok {
		for i := range payload.Beans {
			decodeValues(payload.Beans[i].Values)
		}
	}
	return nil
}

func decodeError(rel *url.URL, resp *http.Response) error {
	var payload errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == "" {
		return fmt.Errorf("api %s returned status %d", rel.String(), resp.StatusCode)
	}
	if len(payload.Failures) > 0 {
		batch := &BatchError{Failures: make(map[string]error, len(payload.Failures))}
		for id, msg := range payload.Failures {
			batch.Failures[id] = wireError(payload.Kind, msg)
		}
		return fmt.Errorf("api %s: %w", rel.String(), batch)
	}
	return fmt.Errorf("api %s: %w", rel.String(), wireError(payload.Kind, payload.Error))
}

func wireError(kind, msg string) error {
	if sentinel := sentinelFor(kind); sentinel != nil {
		if msg == sentinel.Error() {
			return sentinel
		}
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return errors.New(msg)
}

func parseBaseURL(apiBind string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBind)
	if trimmed == "" {
		trimmed = defaultAPIBind
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_bind %q: %w", apiBind, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
