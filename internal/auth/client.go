// Package auth talks to the backend authentication endpoints.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/httpclient"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	refreshPath  = "/auth/refresh"
	logoutPath   = "/auth/logout"
	googlePath   = "/auth/google"
)

// Result is a normalized credential answer. RefreshToken and User may be
// empty when the backend leaves them out.
type Result struct {
	Token        string
	RefreshToken string
	User         *domain.User
}

type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Client struct {
	http *httpclient.Client
}

func NewClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

type authResponse struct {
	Success      bool            `json:"success"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user"`
	Message      string          `json:"message"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest omits the token when none is stored; the backend then
// falls back to its refresh cookie.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Login exchanges email and password for a token pair and the user record.
func (c *Client) Login(ctx context.Context, email, password string) (*Result, error) {
	var resp authResponse
	err := c.http.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      loginPath,
		Body:      credentialsRequest{Email: email, Password: password},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	res, err := resp.result()
	if err != nil {
		return nil, err
	}
	if res.Token == "" || res.User == nil {
		return nil, fmt.Errorf("%w: login answer without token or user", httpclient.ErrMalformedResponse)
	}
	return res, nil
}

// Register creates an account. The backend may or may not sign the user in;
// a Result without Token means the caller has to log in separately.
func (c *Client) Register(ctx context.Context, p Profile) (*Result, error) {
	var resp authResponse
	err := c.http.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      registerPath,
		Body:      p,
		Anonymous: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	res, err := resp.result()
	if err != nil {
		return nil, err
	}
	if res.Token != "" && res.User == nil {
		return nil, fmt.Errorf("%w: register answer with token but no user", httpclient.ErrMalformedResponse)
	}
	return res, nil
}

// Refresh trades a refresh token for a new access token. A 401/403 answer is
// reported as ErrRefreshRejected.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	var resp authResponse
	err := c.http.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      refreshPath,
		Body:      refreshRequest{RefreshToken: refreshToken},
		Anonymous: true,
	}, &resp)
	if err != nil {
		if errors.Is(err, httpclient.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %w", httpclient.ErrRefreshRejected, err)
		}
		return nil, err
	}

	res, err := resp.result()
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, fmt.Errorf("%w: refresh answer without token", httpclient.ErrMalformedResponse)
	}
	return res, nil
}

// Logout tells the backend to drop the session. Callers treat it as best effort.
func (c *Client) Logout(ctx context.Context) error {
	return c.http.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      logoutPath,
		NoRefresh: true,
	}, nil)
}

// GoogleURL is where the browser goes to start the Google sign-in handoff.
func (c *Client) GoogleURL() string {
	return c.http.URL(googlePath)
}

func (r authResponse) result() (*Result, error) {
	res := &Result{Token: r.Token, RefreshToken: r.RefreshToken}
	if len(r.User) == 0 || string(r.User) == "null" {
		return res, nil
	}

	u, err := domain.NormalizeUser(r.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", httpclient.ErrMalformedResponse, err)
	}
	res.User = u
	return res, nil
}
