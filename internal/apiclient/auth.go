package apiclient

import (
	"context"
	"net/http"
)

// authResponse is the body returned by the login and register endpoints.
type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// credentialsBody is the request body for login and register.
type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with the backend and persists the returned session.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/auth/login", email, password)
}

// Register creates an account and persists the returned session; the backend
// signs new accounts in directly.
func (c *Client) Register(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/auth/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*User, error) {
	resp, err := c.Do(ctx, http.MethodPost, path, credentialsBody{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var out authResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, NewClientError("decoding auth response: " + err.Error())
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, NewClientError("auth response missing tokens")
	}

	sess := newSession(out.AccessToken, out.RefreshToken, out.User.ID)
	if err := c.store.SetObject(ctx, sessionKey, sess); err != nil {
		return nil, NewClientError("persisting session: " + err.Error())
	}

	c.logger.Info("session established", "user_id", out.User.ID)
	return &out.User, nil
}

// Logout tells the server to end the session and deletes the stored tokens.
// The server call is best-effort; local deletion happens regardless of its
// outcome.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.Do(ctx, http.MethodPost, "/auth/logout", nil); err != nil {
		c.logger.Debug("server logout failed, deleting local session anyway", "error", err)
	}

	if err := c.store.Delete(ctx, sessionKey); err != nil {
		return NewClientError("deleting stored session: " + err.Error())
	}
	return nil
}

// Me validates the stored session against the server and returns the current
// account. Callers use it to check a restored session on startup.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := resp.DecodeJSON(&user); err != nil {
		return nil, NewClientError("decoding account response: " + err.Error())
	}
	return &user, nil
}

// Session returns the stored session, or nil when none is stored or it is no
// longer readable.
func (c *Client) Session(ctx context.Context) *Session {
	var sess Session
	ok, err := c.store.GetObject(ctx, sessionKey, &sess)
	if err != nil || !ok {
		return nil
	}
	return &sess
}
