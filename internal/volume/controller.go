// SPDX-License-Identifier: MIT
/*
Package volume adjusts an external playback volume in response to the
measured ambient level.

Controller talks to the player's volume endpoint; Regulator decides when to
step the volume up or down.
*/
package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	applog "spotmeter/internal/log"
)

// ErrVolumeOutOfRange is returned for a percent outside 0..100. No request
// is made in that case.
var ErrVolumeOutOfRange = errors.New("volume percent out of range")

// ErrNoToken is returned when no access token has been set.
var ErrNoToken = errors.New("no access token")

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// tokenSource serves the current bearer token. The token can be replaced
// while requests are in flight.
type tokenSource struct {
	token atomic.Pointer[string]
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok := s.token.Load()
	if tok == nil || *tok == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{AccessToken: *tok, TokenType: "Bearer"}, nil
}

// ResultFunc observes the outcome of every volume request.
type ResultFunc func(ctx context.Context, percent int, err error)

// Controller sets the playback volume through an HTTP PUT.
type Controller struct {
	endpoint   *url.URL
	tokens     *tokenSource
	httpClient *http.Client
	onResult   ResultFunc
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	baseClient *http.Client
	onResult   ResultFunc
}

// WithHTTPClient sets the client that carries the authorized requests.
func WithHTTPClient(c *http.Client) ControllerOption {
	return func(o *controllerOptions) { o.baseClient = c }
}

// WithResultHook registers fn to observe request outcomes.
func WithResultHook(fn ResultFunc) ControllerOption {
	return func(o *controllerOptions) { o.onResult = fn }
}

// NewController creates a controller for endpoint. token may be empty and
// set later with SetToken.
func NewController(endpoint, token string, timeout time.Duration, opts ...ControllerOption) (*Controller, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid volume endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid volume endpoint %q: scheme must be http or https", endpoint)
	}

	o := controllerOptions{
		baseClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(&o)
	}

	src := &tokenSource{}
	src.token.Store(&token)

	// The source is consulted on every request, so SetToken takes effect
	// immediately.
	return &Controller{
		endpoint: u,
		tokens:   src,
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: src, Base: o.baseClient.Transport},
			Timeout:   o.baseClient.Timeout,
		},
		onResult: o.onResult,
	}, nil
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Controller) SetToken(token string) {
	c.tokens.token.Store(&token)
}

// SetVolume sets the playback volume to percent.
func (c *Controller) SetVolume(ctx context.Context, percent int) (err error) {
	if c.onResult != nil {
		defer func() { c.onResult(ctx, percent, err) }()
	}

	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %d", ErrVolumeOutOfRange, percent)
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("volume_percent", strconv.Itoa(percent))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build volume request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to set volume to %d%%: %w", percent, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("failed to set volume to %d%%: %s: %s", percent, resp.Status, body)
	}
	io.Copy(io.Discard, resp.Body)

	applog.Debugf("Volume: set to %d%%", percent)
	return nil
}
