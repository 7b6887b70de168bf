// Package telco is the outbound client for provider token endpoints. It
// classifies every outcome into success, unauthorized, or unavailable so
// the orchestrator never sees transport detail.
package telco

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/telcobridge/telcobridge/internal/directory"
	"github.com/telcobridge/telcobridge/internal/token"
)

var (
	// ErrUnauthorized is returned when the provider rejects the
	// authorization code (HTTP 401). Never retried.
	ErrUnauthorized = errors.New("telco rejected the authorization code")

	// ErrUnavailable is returned for connection failures, timeouts,
	// malformed bodies, and unexpected statuses
	ErrUnavailable = errors.New("telco service unavailable")
)

// tokenPath is the token endpoint path shared by all providers
const tokenPath = "/api/demo/token"

const (
	// DefaultRequestTimeout bounds a single attempt
	DefaultRequestTimeout = 10 * time.Second

	// DefaultLatencyCeiling bounds a whole call including the retry
	DefaultLatencyCeiling = 15 * time.Second
)

// Client calls provider token endpoints with a bounded timeout and at most
// one retry for transport errors, never exceeding the total latency ceiling.
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	requestTimeout time.Duration
	latencyCeiling time.Duration
}

// ClientConfig configures the telco client
type ClientConfig struct {
	// RequestTimeout bounds a single attempt (default 10s)
	RequestTimeout time.Duration

	// LatencyCeiling bounds the whole call including the retry
	// (default 15s)
	LatencyCeiling time.Duration

	// HTTPClient is an optional transport override (used in tests)
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewClient creates a telco client
func NewClient(cfg ClientConfig) *Client {
	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = DefaultRequestTimeout
	}
	latencyCeiling := cfg.LatencyCeiling
	if latencyCeiling == 0 {
		latencyCeiling = DefaultLatencyCeiling
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient:     httpClient,
		logger:         logger.With("component", "telco_client"),
		requestTimeout: requestTimeout,
		latencyCeiling: latencyCeiling,
	}
}

// RequestToken posts the authorization code to the resolved provider and
// returns its token. The provider's access_token is treated as opaque.
func (c *Client) RequestToken(ctx context.Context, desc *directory.Descriptor, mcc, sn, authCode string) (*token.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.latencyCeiling)
	defer cancel()

	endpoint, err := c.buildEndpoint(desc, mcc, sn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	form, err := buildForm(desc, authCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	const maxAttempts = 2
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tok, err := c.attempt(ctx, endpoint, form)
		if err == nil {
			return tok, nil
		}

		// Only transport failures are retried; a provider verdict
		// (401, bad body, unexpected status) is final
		if !errors.Is(err, errTransport) {
			return nil, err
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		c.logger.WarnContext(ctx, "telco request failed, retrying once",
			"endpoint", endpoint,
			"attempt", attempt,
			"error", err)
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// errTransport marks retryable connection-level failures internally
var errTransport = errors.New("transport failure")

func (c *Client) attempt(ctx context.Context, endpoint, form string) (*token.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var tok token.Token
		if err := json.Unmarshal(body, &tok); err != nil {
			return nil, fmt.Errorf("%w: malformed token body: %v", ErrUnavailable, err)
		}
		if tok.AccessToken == "" {
			return nil, fmt.Errorf("%w: token body missing access_token", ErrUnavailable)
		}
		return &tok, nil

	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
}

func (c *Client) buildEndpoint(desc *directory.Descriptor, mcc, sn string) (string, error) {
	u, err := url.Parse(desc.BaseURL + tokenPath)
	if err != nil {
		return "", fmt.Errorf("invalid provider base URL %s: %v", desc.BaseURL, err)
	}

	query := url.Values{}
	query.Set("mcc", mcc)
	query.Set("sn", sn)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// buildForm encodes the provider credentials and authorization code the way
// providers expect them: a JSON credential object in the telco_auth field
// alongside the raw auth_code
func buildForm(desc *directory.Descriptor, authCode string) (string, error) {
	auth, err := json.Marshal(map[string]string{
		"client_id":     desc.ClientID,
		"client_secret": desc.ClientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("encoding telco credentials: %v", err)
	}

	form := url.Values{}
	form.Set("telco_auth", string(auth))
	form.Set("auth_code", authCode)
	return form.Encode(), nil
}
