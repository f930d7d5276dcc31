// Package client is the HTTP client for the learning-app backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"kidchat/internal/core"
	"kidchat/internal/idgen"
)

const (
	defaultTimeout  = 30 * time.Second
	RequestIDHeader = "X-Request-ID"
)

// TokenSource returns the bearer token for the current session, or "" when
// logged out
type TokenSource func(ctx context.Context) string

// Client is a client for the backend REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource attaches a bearer token to every request
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// New creates a new API client
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger.With("component", "api-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChildLogin authenticates a child account
func (c *Client) ChildLogin(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	req := LoginRequest{Username: username, Password: password}
	if err := c.doRequest(ctx, http.MethodPost, "/child-login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ParentLogin authenticates a parent account by email
func (c *Client) ParentLogin(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	req := LoginRequest{Email: email, Password: password}
	if err := c.doRequest(ctx, http.MethodPost, "/parent-login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPasswordChild sends a recovery OTP for a child username
func (c *Client) ForgotPasswordChild(ctx context.Context, username string) (*MessageResponse, error) {
	var resp MessageResponse
	req := ForgotPasswordRequest{Username: username}
	if err := c.doRequest(ctx, http.MethodPost, "/forgot-password-child", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPasswordParent sends a recovery OTP to a parent email
func (c *Client) ForgotPasswordParent(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	req := ForgotPasswordRequest{Email: email}
	if err := c.doRequest(ctx, http.MethodPost, "/forgot-password-parent", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyForgotPassword completes recovery with the OTP and a new password
func (c *Client) VerifyForgotPassword(ctx context.Context, req VerifyForgotPasswordRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/verify-forgot-password", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangeParentPassword changes the password of a logged-in parent
func (c *Client) ChangeParentPassword(ctx context.Context, req ChangeParentPasswordRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/change-parent-password", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SelectLevel asks the backend to start level for the child. The raw body is
// returned because callers persist it verbatim.
func (c *Client) SelectLevel(ctx context.Context, variant core.GameVariant, childID int64, level int) (json.RawMessage, error) {
	path, err := GamePath(variant, RouteSelectLevel, childID, level)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// StartGame starts the variant at the level the backend picks
func (c *Client) StartGame(ctx context.Context, variant core.GameVariant, childID int64) (json.RawMessage, error) {
	path, err := GamePath(variant, RouteStart, childID, 0)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Progress retrieves the child's progress in a variant
func (c *Client) Progress(ctx context.Context, variant core.GameVariant, childID int64) (*core.ProgressSnapshot, error) {
	path, err := GamePath(variant, RouteProgress, childID, 0)
	if err != nil {
		return nil, err
	}
	var snap core.ProgressSnapshot
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// doRequest performs an HTTP request to the backend
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := idgen.NewRequest()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug("API request",
		"method", method,
		"path", path,
		"request_id", requestID,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode, Detail: parseDetail(respBody)}
		c.logger.Debug("API error response",
			"method", method,
			"path", path,
			"request_id", requestID,
			"status", resp.StatusCode,
			"detail", apiErr.Detail,
		)
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
