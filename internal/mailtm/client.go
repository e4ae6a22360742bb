package mailtm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 2048

// Client is a thin HTTP client for the mail.tm REST API.
// It handles Bearer token authentication and JSON marshaling, and
// surfaces 429 responses as RateLimitedError without retrying.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new provider client. The baseURL should be the
// root URL of the API (e.g., https://api.mail.tm).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL turns a provider-relative path such as an attachment
// download URL into an absolute URL.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return c.baseURL + "/" + strings.TrimLeft(ref, "/")
}

// Domains lists the domains new accounts can be created on.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	var res Collection[Domain]
	if err := c.Get(ctx, "/domains", "", &res); err != nil {
		return nil, err
	}
	return res.Members, nil
}

// CreateAccount registers a new mailbox.
func (c *Client) CreateAccount(
	ctx context.Context,
	address, password string,
) (*Account, error) {
	var acc Account
	body := Credentials{Address: address, Password: password}
	if err := c.Post(ctx, "/accounts", "", body, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// Token exchanges mailbox credentials for a bearer token.
func (c *Client) Token(
	ctx context.Context,
	address, password string,
) (string, error) {
	var res TokenResponse
	body := Credentials{Address: address, Password: password}
	if err := c.Post(ctx, "/token", "", body, &res); err != nil {
		return "", err
	}
	if res.Token == "" {
		return "", fmt.Errorf("token response for %s carried no token", address)
	}
	return res.Token, nil
}

// Messages fetches one page of the message collection.
func (c *Client) Messages(
	ctx context.Context,
	token string,
	page int,
) ([]MessageRecord, error) {
	if page < 1 {
		page = 1
	}
	var res Collection[MessageRecord]
	path := fmt.Sprintf("/messages?page=%d", page)
	if err := c.Get(ctx, path, token, &res); err != nil {
		return nil, err
	}
	return res.Members, nil
}

// Message fetches the full record of a single message.
func (c *Client) Message(
	ctx context.Context,
	token, id string,
) (*MessageRecord, error) {
	var msg MessageRecord
	if err := c.Get(ctx, "/messages/"+url.PathEscape(id), token, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Source fetches the raw RFC 5322 source of a message.
func (c *Client) Source(
	ctx context.Context,
	token, id string,
) (*Source, error) {
	var src Source
	if err := c.Get(ctx, "/sources/"+url.PathEscape(id), token, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// Get performs an HTTP GET request and unmarshals the JSON response.
// An empty token sends the request unauthenticated.
func (c *Client) Get(
	ctx context.Context,
	path string,
	token string,
	result interface{},
) error {
	return c.do(ctx, http.MethodGet, path, token, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(
	ctx context.Context,
	path string,
	token string,
	body interface{},
	result interface{},
) error {
	return c.do(ctx, http.MethodPost, path, token, body, result)
}

// do is the core HTTP method that builds the request, handles auth,
// error classification, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	token string,
	body interface{},
	result interface{},
) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp, method, path)
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf(
			"unmarshaling response from %s %s: %w",
			method, path, err,
		)
	}

	return nil
}

// statusError reads the error body and classifies the failure.
func (c *Client) statusError(resp *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := strings.TrimSpace(string(raw))

	slog.Warn("provider request failed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"body", body,
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{
			Method:     method,
			Path:       path,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			Body:       body,
		}
	}

	return &ProviderError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
		Body:       body,
	}
}
