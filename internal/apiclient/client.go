// Package apiclient provides the authenticated HTTP client every backend call
// goes through. It owns the access-token lifecycle: bearer injection,
// compliance headers, a connectivity precondition, single-flight refresh on
// 401 with exactly one replay, and normalization of all failures into a small
// error taxonomy.
package apiclient

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

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yurberz/AccessibleHealthcare/internal/credentials"
	"github.com/yurberz/AccessibleHealthcare/pkg/logger"
)

// Config holds configuration for the API client.
type Config struct {
	// BaseURL is the API origin, e.g. "https://api.example.com".
	BaseURL string
	// AppVersion is sent on every request as X-App-Version.
	AppVersion string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// ProbeTimeout bounds the connectivity precondition check. Defaults to 2s.
	ProbeTimeout time.Duration
	// HTTPClient overrides the underlying transport. Defaults to a client
	// with Timeout applied.
	HTTPClient *http.Client
	// Connectivity overrides the reachability check. Defaults to a TCP probe
	// against the API host.
	Connectivity Connectivity
}

// Client is the API gateway client. Every instance carries its own refresh
// gate, so independent clients never share refresh state.
type Client struct {
	baseURL      string
	appVersion   string
	httpClient   *http.Client
	connectivity Connectivity
	store        *credentials.Store
	logger       *slog.Logger

	// refresh coordinates the single-flight token refresh: at most one
	// refresh call is outstanding, and every concurrent 401 observer awaits
	// that same call's outcome.
	refresh singleflight.Group
}

// New creates an API client over the given credential store.
func New(cfg *Config, store *credentials.Store, log *slog.Logger) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	connectivity := cfg.Connectivity
	if connectivity == nil {
		connectivity = newDialProbe(cfg.BaseURL, cfg.ProbeTimeout)
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		appVersion:   cfg.AppVersion,
		httpClient:   httpClient,
		connectivity: connectivity,
		store:        store,
		logger:       log,
	}, nil
}

// Response is a completed HTTP response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Do sends one logical request through the full pipeline. On a 401 it
// triggers (or joins) the single-flight refresh and replays the request
// exactly once with the refreshed token; a second 401 is a hard
// authentication failure. All failures are returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	if !c.connectivity.Online(ctx) {
		return nil, NewNetworkError("network unreachable")
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, NewClientError("encoding request body: " + err.Error())
		}
		payload = data
	}

	resp, err := c.dispatch(ctx, method, path, payload, "")
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return c.normalize(resp)
	}

	// Replay with the exact token this refresh produced, not whatever a
	// later refresh may have written by replay time.
	token, err := c.awaitRefresh(ctx)
	if err != nil {
		return nil, err
	}

	replay, err := c.dispatch(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}
	if replay.Status == http.StatusUnauthorized {
		// The freshly refreshed token was rejected too. Retrying again would
		// loop, so fail hard and drop the session.
		c.clearSession(ctx)
		return nil, NewAuthRequiredError("request unauthorized after token refresh")
	}
	return c.normalize(replay)
}

// dispatch performs one request attempt. The access token is read from the
// credential store per attempt, never cached; a replay passes the refreshed
// token explicitly via tokenOverride.
func (c *Client) dispatch(ctx context.Context, method, path string, payload []byte, tokenOverride string) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, NewClientError("building request: " + err.Error())
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(ctx, req)
	if tokenOverride != "" {
		req.Header.Set("Authorization", "Bearer "+tokenOverride)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("no response from server: " + err.Error())
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, NewNetworkError("reading response: " + err.Error())
	}

	return &Response{Status: res.StatusCode, Header: res.Header, Body: data}, nil
}

// setHeaders attaches the bearer token (when one is stored; its absence is
// not an error) and the compliance headers.
func (c *Client) setHeaders(ctx context.Context, req *http.Request) {
	var sess Session
	if ok, err := c.store.GetObject(ctx, sessionKey, &sess); err == nil && ok {
		if sess.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		}
		if sess.UserID != "" {
			req.Header.Set("X-User-ID", sess.UserID)
		}
	}

	if c.appVersion != "" {
		req.Header.Set("X-App-Version", c.appVersion)
	}

	requestID := logger.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
}

// normalize converts non-2xx responses into API_ERROR values carrying the
// server's structured body when one is present.
func (c *Client) normalize(resp *Response) (*Response, error) {
	if resp.Status < 400 {
		return resp, nil
	}

	message := http.StatusText(resp.Status)
	details := map[string]any{}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		if body.Message != "" {
			message = body.Message
		}
		if body.Code != "" {
			details["server_code"] = body.Code
		}
	}
	if len(details) == 0 {
		details = nil
	}

	return nil, NewAPIError(resp.Status, message, details)
}

// awaitRefresh triggers a refresh or joins the one already in flight, and
// waits for its outcome. The refresh itself runs detached from this request's
// context: a cancelled waiter abandons the wait, but the refresh completes
// for everyone else.
func (c *Client) awaitRefresh(ctx context.Context) (string, error) {
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.refresh.DoChan(sessionKey, func() (any, error) {
		return c.performRefresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", NewClientError("cancelled while awaiting token refresh: " + ctx.Err().Error())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// performRefresh exchanges the stored refresh token for a new access token.
// It runs at most once per invalidation event. Any failure deletes the stored
// session so every waiter observes AUTH_REQUIRED.
func (c *Client) performRefresh(ctx context.Context) (string, error) {
	var sess Session
	ok, err := c.store.GetObject(ctx, sessionKey, &sess)
	if err != nil || !ok || sess.RefreshToken == "" {
		c.clearSession(ctx)
		return "", NewAuthRequiredError("no refresh token available")
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": sess.RefreshToken})
	if err != nil {
		c.clearSession(ctx)
		return "", NewClientError("encoding refresh request: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		c.clearSession(ctx)
		return "", NewClientError("building refresh request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.appVersion != "" {
		req.Header.Set("X-App-Version", c.appVersion)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.clearSession(ctx)
		return "", NewAuthRequiredError("token refresh failed: no response from server")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.clearSession(ctx)
		c.logger.Warn("token refresh rejected", "status", res.StatusCode)
		return "", NewAuthRequiredError("token refresh rejected by server")
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil || out.AccessToken == "" {
		c.clearSession(ctx)
		return "", NewAuthRequiredError("token refresh returned no access token")
	}

	sess.AccessToken = out.AccessToken
	sess.ExpiresAt = tokenExpiry(out.AccessToken)
	if err := c.store.SetObject(ctx, sessionKey, sess); err != nil {
		c.clearSession(ctx)
		return "", NewClientError("persisting refreshed session: " + err.Error())
	}

	c.logger.Info("access token refreshed")
	return sess.AccessToken, nil
}

// clearSession deletes the stored session. Best-effort: a failed delete is
// logged, not propagated, since the caller is already on an error path.
func (c *Client) clearSession(ctx context.Context) {
	if err := c.store.Delete(ctx, sessionKey); err != nil {
		c.logger.Warn("failed to delete stored session", "error", err)
	}
}
