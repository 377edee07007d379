package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
	"github.com/felixgeelhaar/ckdreg/internal/log"
	"github.com/felixgeelhaar/ckdreg/internal/metrics"
	"github.com/felixgeelhaar/ckdreg/internal/version"
)

const (
	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	maxResponseSize = 8 << 20
	maxErrorBody    = 512
)

// Policy selects how a request interacts with the response cache.
type Policy int

const (
	// CacheFirst answers from the cache when possible and stores successful
	// responses.
	CacheFirst Policy = iota
	// NetworkOnly always hits the server and never touches the cache.
	NetworkOnly
)

// Request is a single GraphQL operation.
type Request struct {
	Query         string
	Variables     map[string]any
	OperationName string
	Policy        Policy
}

type payload struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorEntry    `json:"errors"`
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Options configures a Client.
type Options struct {
	Endpoint string
	Timeout  time.Duration

	// RetryMax is the number of retries after the first attempt.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RateLimit is the sustained request rate per second; 0 disables pacing.
	RateLimit float64

	// CacheSize is the number of cached query responses; 0 disables caching.
	CacheSize int

	Tokens  TokenSource
	Logger  *log.Logger
	Metrics *metrics.Metrics

	// HTTPClient replaces the underlying client used by the retrying client.
	HTTPClient *http.Client
}

// Client executes GraphQL operations against the registry API.
type Client struct {
	endpoint  string
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	cache     *responseCache
	tokens    TokenSource
	logger    *log.Logger
	metrics   *metrics.Metrics
	userAgent string
}

// NewClient creates a GraphQL client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("graphql endpoint is required")
	}

	rc := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	// Hand the last response back after the final attempt so 5xx bodies can
	// still be inspected for a GraphQL envelope.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Logger != nil {
		rc.Logger = opts.Logger.With("component", "graphql")
	} else {
		rc.Logger = nil
	}

	c := &Client{
		endpoint:  opts.Endpoint,
		http:      rc,
		tokens:    opts.Tokens,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		userAgent: version.GetInfo().UserAgent(),
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if opts.CacheSize > 0 {
		cache, err := newResponseCache(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		c.cache = cache
	}

	return c, nil
}

// Endpoint returns the GraphQL endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Purge drops every cached response.
func (c *Client) Purge() {
	if c.cache != nil {
		c.cache.purge()
	}
}

// Do executes req and decodes the response's "data" member into out.
// out may be nil when the caller does not need the result.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	op := operationName(req)
	token := c.token()

	var (
		key      cacheKey
		cachable = c.cache != nil && req.Policy == CacheFirst
	)
	if cachable {
		k, err := c.cache.key(req, token)
		if err != nil {
			return regerrors.Wrap(regerrors.ErrCodeGraphQLDecode, "failed to encode variables", err)
		}
		key = k
		if data, ok := c.cache.get(key); ok {
			c.metrics.RecordCache(true)
			return decodeData(op, data, out)
		}
		c.metrics.RecordCache(false)
	}

	start := time.Now()
	data, err := c.send(ctx, req, token)
	c.metrics.RecordRequest(op, requestStatus(err), time.Since(start))
	if err != nil {
		return err
	}

	if err := decodeData(op, data, out); err != nil {
		return err
	}
	if cachable {
		c.cache.add(key, data)
	}
	return nil
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) send(ctx context.Context, req Request, token string) (json.RawMessage, error) {
	body, err := json.Marshal(payload{
		Query:         req.Query,
		Variables:     req.Variables,
		OperationName: req.OperationName,
	})
	if err != nil {
		return nil, regerrors.Wrap(regerrors.ErrCodeGraphQLDecode, "failed to marshal request body", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, regerrors.NewTransportError(c.endpoint, err)
		}
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(RequestIDHeader, requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, regerrors.NewTransportError(c.endpoint, err)
	}

	return c.parseResponse(resp, requestID)
}

// parseResponse reads the GraphQL envelope. A body that is not an envelope
// is reported as an HTTPError when the status is not 2xx.
func (c *Client) parseResponse(resp *http.Response, requestID string) (json.RawMessage, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, regerrors.NewTransportError(c.endpoint, err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || (env.Data == nil && env.Errors == nil) {
		if !ok {
			return nil, &HTTPError{
				StatusCode: resp.StatusCode,
				RequestID:  requestID,
				Body:       truncate(strings.TrimSpace(string(raw)), maxErrorBody),
			}
		}
		if err == nil {
			err = errors.New("response has neither data nor errors")
		}
		return nil, regerrors.Wrap(regerrors.ErrCodeGraphQLDecode, "failed to decode response", err)
	}

	if len(env.Errors) > 0 {
		c.logger.Debug("graphql errors",
			"request_id", requestID,
			"status", resp.StatusCode,
			"messages", strings.Join((&Error{Entries: env.Errors}).Messages(), "; "))
		return nil, &Error{
			StatusCode: resp.StatusCode,
			RequestID:  requestID,
			Entries:    env.Errors,
		}
	}

	if !ok {
		return nil, &HTTPError{StatusCode: resp.StatusCode, RequestID: requestID}
	}

	return env.Data, nil
}

func decodeData(op string, data json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return regerrors.Wrap(regerrors.ErrCodeGraphQLDecode,
			fmt.Sprintf("failed to decode %s response", op), err)
	}
	return nil
}

func operationName(req Request) string {
	if req.OperationName != "" {
		return req.OperationName
	}
	return "anonymous"
}

func requestStatus(err error) string {
	var (
		gqlErr  *Error
		httpErr *HTTPError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &gqlErr):
		return "graphql_error"
	case errors.As(err, &httpErr):
		return "http_error"
	default:
		return "transport_error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
