// Package gitea implements the forge client contract against the Gitea REST API
package gitea

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"starchart/internal/forge"
	perr "starchart/internal/platform/errors"
	"starchart/internal/platform/logger"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 10 * time.Second
	defaultPerPage = 50
	maxBodyBytes   = 1 << 20
)

// Options configures the Client
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
}

// Client is a Gitea REST client implementing forge.Client
// It maps remote failures to project error codes and surfaces rate limit
// backoff hints; retry policy belongs to the caller
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
}

var _ forge.Client = (*Client)(nil)

// New constructs a Client for one Gitea instance
func New(o Options) *Client {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	h := o.HTTPClient
	if h == nil {
		h = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		http: h,
		opts: o,
		log:  *logger.Named("gitea"),
	}
}

// FromDescriptor is the registry constructor for the gitea kind
func FromDescriptor(d forge.Descriptor) (forge.Client, error) {
	if d.BaseURL == "" {
		return nil, perr.InvalidArgf("gitea descriptor has no base url")
	}
	return New(Options{BaseURL: d.BaseURL, Token: d.Token}), nil
}

// get issues a GET with auth headers and maps the response status to project errors
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.opts.BaseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "gitea new request failed")
	}
	req.Header.Set("User-Agent", forge.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "token "+c.opts.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "gitea unreachable")
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Error().Err(cerr).Str("path", path).Msg("gitea close body failed")
		}
	}()

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("gitea http response")

	switch resp.StatusCode {
	case http.StatusOK:
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "gitea read body failed")
		}
		return b, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, perr.Unauthorizedf("gitea rejected credentials for %s", path)

	case http.StatusNotFound:
		return nil, perr.NotFoundf("gitea %s not found", path)

	case http.StatusTooManyRequests:
		return nil, perr.RateLimitedf(retryAfterOf(resp.Header), "gitea rate limited on %s", path)

	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, perr.Unavailablef("gitea transient server error %d on %s", resp.StatusCode, path)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, perr.Internalf("gitea unexpected status %d body %s", resp.StatusCode, string(body))
	}
}

// retryAfterOf parses the Retry-After header as a minimum backoff hint
func retryAfterOf(h http.Header) time.Duration {
	s := h.Get("Retry-After")
	if s == "" {
		return 0
	}
	if sec, err := strconv.Atoi(s); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	if t, err := http.ParseTime(s); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func decode[T any](b []byte) (T, error) {
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return out, perr.Wrapf(err, perr.ErrorCodeJSON, "gitea decode failed")
	}
	return out, nil
}
