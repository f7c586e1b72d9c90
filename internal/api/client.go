package api

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
	"unicode/utf8"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	"github.com/sethvargo/go-retry"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client
	// when no custom client is provided.
	httpClientTimeout = 15 * time.Second

	// maxResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxResponseBytes = 4 * 1024 * 1024

	recipesPath = "/api/recipes"
)

// RetryPolicy bounds how server calls are retried. Consumed uniformly
// by every network call site.
type RetryPolicy struct {
	MaxAttempts    uint64
	InitialBackoff time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff
// starting at half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond}
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)

	return retry.WithMaxRetries(p.MaxAttempts, b)
}

// Client implements ServerAPI over HTTP with JSON bodies.
type Client struct {
	httpClient *http.Client
	baseURL    string
	policy     RetryPolicy
}

// NewClient creates an API client for the given base URL. If
// httpClient is nil, a client with a 15-second timeout is created.
func NewClient(baseURL string, httpClient *http.Client, policy RetryPolicy) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		policy:     policy,
	}
}

// Create posts a new record payload and returns the server-confirmed
// record with its assigned id.
func (c *Client) Create(ctx context.Context, payload json.RawMessage) (*ServerRecord, error) {
	var out ServerRecord
	if err := c.doJSON(ctx, http.MethodPost, recipesPath, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Update replaces a record's payload and returns the server's
// representation.
func (c *Client) Update(ctx context.Context, id string, payload json.RawMessage) (*ServerRecord, error) {
	var out ServerRecord
	if err := c.doJSON(ctx, http.MethodPut, recipesPath+"/"+url.PathEscape(id), payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Delete removes a record. A 404 from the server means the record is
// already gone and is reported as success.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.doJSON(ctx, http.MethodDelete, recipesPath+"/"+url.PathEscape(id), nil, nil)
	if syncerr.IsNotFound(err) {
		return nil
	}

	return err
}

// Get fetches one record by its server id.
func (c *Client) Get(ctx context.Context, id string) (*ServerRecord, error) {
	var out ServerRecord
	if err := c.doJSON(ctx, http.MethodGet, recipesPath+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

type listResponse struct {
	Records    []ServerRecord `json:"records"`
	Pagination Pagination     `json:"pagination"`
}

// List fetches one page of the authoritative record set.
func (c *Client) List(ctx context.Context, page, pageSize int) ([]ServerRecord, *Pagination, error) {
	path := fmt.Sprintf("%s?page=%s&page_size=%s",
		recipesPath, strconv.Itoa(page), strconv.Itoa(pageSize))

	var out listResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, nil, err
	}

	return out.Records, &out.Pagination, nil
}

// doJSON runs one request under the retry policy, decoding a JSON
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body json.RawMessage, out any) error {
	return retry.Do(ctx, c.policy.backoff(), func(ctx context.Context) error {
		err := c.doOnce(ctx, method, path, body, out)
		if syncerr.IsNetwork(err) {
			// Transport failures and 5xx responses are worth retrying.
			return retry.RetryableError(err)
		}

		return err
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body json.RawMessage, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &syncerr.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &syncerr.NetworkError{Err: err}
	}

	if err := classifyStatus(resp.StatusCode, path, data); err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}

	return nil
}

func classifyStatus(status int, path string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return &syncerr.NotFoundError{ID: path}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &syncerr.ValidationError{Field: "payload", Reason: sanitizeBody(body)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &syncerr.AuthenticationRequiredError{}
	case status >= 500:
		return &syncerr.NetworkError{Err: fmt.Errorf("server returned %d: %s", status, sanitizeBody(body))}
	default:
		return fmt.Errorf("unexpected status %d from %s: %s", status, path, sanitizeBody(body))
	}
}

// sanitizeBody truncates and sanitizes a response body for inclusion
// in error messages. Limits to 256 bytes and replaces non-printable
// characters to prevent log injection.
func sanitizeBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	if !utf8.Valid(body) {
		return fmt.Sprintf("(%d bytes of non-UTF-8 data)", len(body))
	}

	sanitized := strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return ' '
		}

		return r
	}, string(body))

	return strings.TrimSpace(sanitized)
}
