// Package httpclient is the REST client for the storefront backend. It injects
// the bearer token and, on a 401, refreshes the access token once and retries.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20 // 1MB
)

// TokenSource supplies the current access token; "" means none.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// Refresher obtains a new access token. Implementations are expected to
// collapse concurrent calls into one refresh.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

type Options struct {
	BaseURL            string
	Timeout            time.Duration
	Transport          http.RoundTripper
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	Logger             *zap.Logger
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger

	mu        sync.RWMutex
	tokens    TokenSource
	refresher Refresher
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: base,
		logger:  logger,
		http: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(opts, logger),
		},
	}, nil
}

// SetTokenSource and SetRefresher close the loop with the session layer,
// which itself depends on this client.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

// URL returns the absolute URL for path
func (c *Client) URL(path string) string {
	return c.baseURL.JoinPath(path).String()
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Anonymous sends no bearer token and never refreshes (login, register, refresh).
	Anonymous bool
	// NoRefresh sends the bearer token but does not refresh on 401 (logout).
	NoRefresh bool
}

type response struct {
	status int
	body   []byte
}

// Do sends req and decodes a 2xx JSON body into out (which may be nil).
//
// A 401 on an ordinary request triggers exactly one refresh followed by one
// retry with the new token. A second 401/403 is returned to the caller as an
// *APIError matching ErrUnauthorized; it does not end the session by itself.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	c.mu.RLock()
	tokens, refresher := c.tokens, c.refresher
	c.mu.RUnlock()

	token := ""
	if !req.Anonymous && tokens != nil {
		token = tokens.AccessToken(ctx)
	}

	resp, err := c.send(ctx, req, body, token)
	if err != nil {
		return err
	}

	retried := false
	if resp.status == http.StatusUnauthorized && !req.Anonymous && !req.NoRefresh && refresher != nil {
		newToken, errRefresh := refresher.Refresh(ctx)
		if errRefresh != nil {
			c.logger.Info("refresh after 401 failed",
				zap.String("path", req.Path),
				zap.Error(errRefresh))
			return errors.Join(decodeError(resp), errRefresh)
		}

		retried = true
		resp, err = c.send(ctx, req, body, newToken)
		if err != nil {
			return err
		}
	}

	if err := decode(resp, out); err != nil {
		if retried && errors.Is(err, ErrUnauthorized) {
			c.logger.Info("request still unauthorized after refresh", zap.String("path", req.Path))
		}
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request, body []byte, token string) (*response, error) {
	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, req.Path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	return &response{status: httpResp.StatusCode, body: data}, nil
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return data, nil
}

// envelopeHead reads the common {success, message} fields of any backend answer.
type envelopeHead struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func decode(resp *response, out any) error {
	if resp.status < 200 || resp.status > 299 {
		return decodeError(resp)
	}

	var head envelopeHead
	if len(resp.body) > 0 && json.Unmarshal(resp.body, &head) == nil {
		if head.Success != nil && !*head.Success {
			return &APIError{Status: resp.status, Message: head.message()}
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func decodeError(resp *response) *APIError {
	var head envelopeHead
	_ = json.Unmarshal(resp.body, &head)
	msg := head.message()
	if msg == "" && len(resp.body) > 0 && len(resp.body) < 256 && !bytes.HasPrefix(bytes.TrimSpace(resp.body), []byte("{")) {
		msg = strings.TrimSpace(string(resp.body))
	}
	return &APIError{Status: resp.status, Message: msg}
}

func (p envelopeHead) message() string {
	if p.Message != "" {
		return p.Message
	}
	return p.Error
}
