package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/session"
)

const refreshPath = "token/refresh/"

// Client is the credentialed transport every backend call goes through. It
// attaches the stored access token as a bearer credential, and on a 401
// performs a bounded one-shot renewal (refresh token → new access token)
// before re-dispatching the original request exactly once.
//
// It is transport-level only: any non-401 response, including application
// errors, is passed through to the caller untouched.
type Client struct {
	base  string
	http  *http.Client
	store *session.Store
	log   zerolog.Logger

	// onAuthExpired forces the transition to the unauthenticated entry
	// point. Invoked after credentials are cleared, before the call fails.
	onAuthExpired func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuthExpiredHook registers a callback fired when stored credentials are
// cleared because renewal failed or no refresh token exists.
func WithAuthExpiredHook(fn func()) Option {
	return func(c *Client) { c.onAuthExpired = fn }
}

// New creates a credentialed transport rooted at baseURL.
func New(baseURL string, timeout time.Duration, store *session.Store, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimSuffix(baseURL, "/") + "/",
		http:  &http.Client{Timeout: timeout},
		store: store,
		log:   log.With().Str("component", "transport").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request is the immutable descriptor of one outbound call plus the
// retry-attempted flag carried alongside it through the pipeline.
type request struct {
	id      string
	method  string
	path    string
	body    []byte
	retried bool
}

// Do sends an API request and decodes the JSON response into out (skipped when
// out is nil). body is marshalled to JSON when non-nil.
//
// Invariants: at most one renewal exchange per failing request, at most one
// re-dispatch per original request. A 401 on the retried dispatch is returned
// to the caller without a second renewal.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	req := request{
		id:     uuid.New().String(),
		method: method,
		path:   path,
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		req.body = raw
	}

	status, respBody, err := c.send(ctx, &req)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !req.retried {
		req.retried = true
		status, respBody, err = c.renewAndRetry(ctx, &req)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		apiErr := apierr.FromStatus(status, respBody)
		c.log.Debug().
			Str("request_id", req.id).
			Str("method", method).
			Str("path", path).
			Int("status", status).
			Msg("Request failed")
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// send performs one dispatch of the descriptor. The access token is re-read
// from the store on every dispatch, so a retry automatically picks up the
// renewed token. Requests without a stored token go out unmodified.
func (c *Client) send(ctx context.Context, req *request) (int, []byte, error) {
	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.base+strings.TrimPrefix(req.path, "/"), bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if access := c.store.Access(); access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, apierr.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apierr.Network(err)
	}

	c.log.Trace().
		Str("request_id", req.id).
		Str("method", req.method).
		Str("path", req.path).
		Int("status", resp.StatusCode).
		Msg("Dispatched")

	return resp.StatusCode, raw, nil
}

// renewAndRetry handles the 401 path: exchange the refresh token for a new
// access token, then re-dispatch the original request once. Missing refresh
// token or a rejected exchange clears all credentials and surfaces
// AUTH_EXPIRED — no retry happens in either case.
func (c *Client) renewAndRetry(ctx context.Context, req *request) (int, []byte, error) {
	refresh := c.store.Refresh()
	if refresh == "" {
		c.log.Info().Str("request_id", req.id).Msg("401 with no refresh token, forcing logout")
		c.expire()
		return 0, nil, apierr.ErrAuthExpired
	}

	access, err := c.renew(ctx, refresh)
	if err != nil {
		c.log.Info().Err(err).Str("request_id", req.id).Msg("Token renewal rejected, forcing logout")
		c.expire()
		return 0, nil, apierr.ErrAuthExpired
	}

	c.store.SetAccess(access)
	c.log.Debug().Str("request_id", req.id).Msg("Access token renewed, retrying request")

	return c.send(ctx, req)
}

// renew performs the dedicated refresh exchange. It deliberately bypasses the
// 401 pipeline so a failing exchange can never trigger renewal recursively.
func (c *Client) renew(ctx context.Context, refresh string) (string, error) {
	raw, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+refreshPath, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", apierr.FromStatus(resp.StatusCode, body)
	}

	var payload struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if payload.Access == "" {
		return "", fmt.Errorf("refresh response missing access token")
	}
	return payload.Access, nil
}

func (c *Client) expire() {
	c.store.Clear()
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
}
