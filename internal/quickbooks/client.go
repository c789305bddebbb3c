package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TokenProvider returns a currently valid access token for the realm.
type TokenProvider func(ctx context.Context) (string, error)

// API is the surface used by resolvers and processors.
type API interface {
	Request(ctx context.Context, method, path string, body any) (*Response, error)
	Create(ctx context.Context, entity string, doc any, out any) error
	Read(ctx context.Context, entity, id string, out any) error
	Update(ctx context.Context, entity string, doc any, out any) error
	Query(ctx context.Context, query string) (*QueryResponse, error)
}

type ClientOptions struct {
	BaseURL       string
	RealmID       string
	MinorVersion  string
	TokenProvider TokenProvider
	HTTPClient    *http.Client
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

type Client struct {
	baseURL       string
	realmID       string
	minorVersion  string
	tokenProvider TokenProvider
	httpClient    *http.Client
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

// Response is the raw outcome of a ledger call.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

var _ API = (*Client)(nil)

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://sandbox-quickbooks.api.intuit.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Client{
		baseURL:       baseURL,
		realmID:       opts.RealmID,
		minorVersion:  strings.TrimSpace(opts.MinorVersion),
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
	}
}

// Request sends one call to /v3/company/{realm}{path}. Non-2xx responses are
// returned in Response, not as an error; transport and token failures are
// errors. Only GETs are retried.
func (c *Client) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	if c.tokenProvider == nil {
		return nil, fmt.Errorf("quickbooks token provider is required")
	}
	if c.realmID == "" {
		return nil, fmt.Errorf("quickbooks realm id is required")
	}
	endpoint, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode quickbooks request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.maxRetries
	}

	for attempt := 0; ; attempt++ {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < retries && ctx.Err() == nil {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, fmt.Errorf("quickbooks %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < retries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
	}
}

// Create POSTs a new entity and decodes the returned entity into out.
func (c *Client) Create(ctx context.Context, entity string, doc any, out any) error {
	return c.write(ctx, entity, doc, out)
}

// Update POSTs a full or sparse update; QBO uses the same endpoint as create.
func (c *Client) Update(ctx context.Context, entity string, doc any, out any) error {
	return c.write(ctx, entity, doc, out)
}

func (c *Client) Read(ctx context.Context, entity, id string, out any) error {
	path := "/" + strings.ToLower(entity) + "/" + url.PathEscape(id)
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return NewAPIError(http.MethodGet, path, resp, nil)
	}
	return decodeEntity(resp.Body, entity, out)
}

func (c *Client) Query(ctx context.Context, query string) (*QueryResponse, error) {
	path := "/query?query=" + url.QueryEscape(query)
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, NewAPIError(http.MethodGet, path, resp, nil)
	}
	var envelope struct {
		QueryResponse QueryResponse `json:"QueryResponse"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode quickbooks query response: %w", err)
	}
	return &envelope.QueryResponse, nil
}

func (c *Client) write(ctx context.Context, entity string, doc any, out any) error {
	path := "/" + strings.ToLower(entity)
	resp, err := c.Request(ctx, http.MethodPost, path, doc)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return NewAPIError(http.MethodPost, path, resp, doc)
	}
	if out == nil {
		return nil
	}
	return decodeEntity(resp.Body, entity, out)
}

func (c *Client) endpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v3/company/" + url.PathEscape(c.realmID) + path)
	if err != nil {
		return "", fmt.Errorf("invalid quickbooks path %q: %w", path, err)
	}
	if c.minorVersion != "" {
		q := u.Query()
		q.Set("minorversion", c.minorVersion)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodeEntity unwraps {"Invoice": {...}, "time": "..."} style envelopes.
func decodeEntity(body []byte, entity string, out any) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode quickbooks %s response: %w", entity, err)
	}
	raw, ok := envelope[entity]
	if !ok {
		return fmt.Errorf("quickbooks response has no %s object", entity)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode quickbooks %s: %w", entity, err)
	}
	return nil
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
