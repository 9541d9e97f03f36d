// Package client provides HTTP client functionality for the Azure DevOps REST API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sirforce/devops-mcp/internal/auth"
	"github.com/sirforce/devops-mcp/internal/config"
	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
	"github.com/sirforce/devops-mcp/internal/security"
	"github.com/sirforce/devops-mcp/internal/tracing"
)

// Authenticator is the interface for adding authentication to requests
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// Recorder receives request-level metrics. *metrics.Metrics implements it.
type Recorder interface {
	RecordRequest(success bool, latency time.Duration, statusCode int)
	RecordRetry()
	RecordRateLimitHit()
	RecordWorkItemsFetched(n int)
}

// Client is an HTTP client for the Azure DevOps REST API
type Client struct {
	httpClient    *http.Client
	config        *config.Config
	logger        *zap.Logger
	rateLimiter   *rate.Limiter
	authenticator Authenticator
	recorder      Recorder
	baseURL       string
	version       string
}

// Option configures a Client.
type Option func(*Client)

// WithRecorder reports request metrics to r.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithAuthenticator replaces the credential-based authenticator.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		c.authenticator = a
	}
}

// New creates a new API client
func New(cfg *config.Config, logger *zap.Logger, version string, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if !cfg.TLSVerify {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- explicitly configured for test environments
		logger.Warn("TLS certificate verification is DISABLED - this is insecure and should only be used for testing",
			zap.String("organization_url", cfg.OrganizationURL),
		)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     tlsConfig,
	}

	var rateLimiter *rate.Limiter
	if cfg.EnableRateLimit {
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	}

	if version == "" {
		version = "dev"
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		config:      cfg,
		logger:      logger,
		rateLimiter: rateLimiter,
		baseURL:     strings.TrimRight(cfg.OrganizationURL, "/"),
		version:     version,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.authenticator == nil {
		authenticator, err := auth.New(auth.Credentials{PAT: cfg.PAT, BearerToken: cfg.BearerToken}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create authenticator: %w", err)
		}
		c.authenticator = authenticator
	}

	return c, nil
}

// Request represents an HTTP request. Path is relative to the organization URL.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        interface{}
	ContentType string // defaults to application/json
	Headers     map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do executes an HTTP request with retry logic. Transport failures and exhausted
// retries are returned as structured errors; context errors are returned as is.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff, shift capped to stay within time.Duration
			shift := min(attempt-1, 30)
			waitTime := c.config.RetryWaitMin * time.Duration(1<<shift)
			if waitTime > c.config.RetryWaitMax {
				waitTime = c.config.RetryWaitMax
			}

			c.logger.Debug("Retrying request",
				zap.Int("attempt", attempt),
				zap.Duration("wait", waitTime),
			)
			if c.recorder != nil {
				c.recorder.RecordRetry()
			}

			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.doRequest(ctx, req)
		if err != nil {
			lastErr, lastStatus = err, 0
			if isRetryable(err) {
				continue
			}
			return nil, transportError(err)
		}

		if shouldRetry(resp.StatusCode) {
			if resp.StatusCode == http.StatusTooManyRequests && c.recorder != nil {
				c.recorder.RecordRateLimitHit()
			}
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, security.MaskSensitiveData(string(resp.Body)))
			lastStatus = resp.StatusCode
			continue
		}

		return resp, nil
	}

	return nil, retriesExhausted(lastStatus, lastErr, c.config.MaxRetries+1)
}

// retriesExhausted maps the last failed attempt to a structured error. The last
// error text is kept, masked, in the details.
func retriesExhausted(status int, lastErr error, attempts int) error {
	var se *mcperrors.StructuredError
	switch {
	case status == http.StatusTooManyRequests:
		se = mcperrors.NewRateLimitExceeded()
	case status >= 500:
		se = mcperrors.NewServiceUnavailable()
	default:
		if ctxErr := contextError(lastErr); ctxErr != nil {
			return ctxErr
		}
		se, _ = mcperrors.As(transportError(lastErr))
	}
	return se.WithDetails(map[string]interface{}{
		"attempts":   attempts,
		"last_error": security.SanitizeError(lastErr),
	})
}

// transportError classifies a failed round trip. Structured and context errors
// pass through unchanged.
func transportError(err error) error {
	if _, ok := mcperrors.As(err); ok {
		return err
	}
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return mcperrors.NewTimeout("Azure DevOps request")
	}
	return mcperrors.NewNetworkError(security.SanitizeError(err))
}

func contextError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, req *Request) (resp *Response, err error) {
	if c.rateLimiter != nil {
		if c.rateLimiter.Tokens() < 1 && c.recorder != nil {
			c.recorder.RecordRateLimitHit()
		}
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("rate limit wait failed: %w", ctx.Err())
			}
			return nil, mcperrors.NewRateLimitExceeded()
		}
	}

	ctx, span := tracing.APISpan(ctx, req.Method, req.Path)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	query := url.Values{}
	for k, v := range req.Query {
		query[k] = v
	}
	if query.Get("api-version") == "" {
		query.Set("api-version", c.config.APIVersion)
	}
	requestURL := c.baseURL + "/" + strings.TrimLeft(req.Path, "/") + "?" + query.Encode()

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", fmt.Sprintf("devops-mcp/%s", c.version))
	for k, v := range tracing.FromContext(ctx).Headers() {
		httpReq.Header.Set(k, v)
	}

	if err := c.authenticator.Authenticate(httpReq); err != nil {
		return nil, mcperrors.NewAuthFailed(security.SanitizeError(err))
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	logURL := security.MaskURL(requestURL)
	c.logger.Debug("Executing HTTP request",
		zap.String("method", req.Method),
		zap.String("url", logURL),
		zap.Any("headers", security.MaskSensitiveHeaders(httpReq.Header)),
	)

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(startTime)

	if err != nil {
		if c.recorder != nil {
			c.recorder.RecordRequest(false, duration, 0)
		}
		c.logger.Error("HTTP request failed",
			zap.Error(err),
			zap.String("method", req.Method),
			zap.String("url", logURL),
			zap.Duration("duration", duration),
		)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	success := httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	if c.recorder != nil {
		c.recorder.RecordRequest(success, duration, httpResp.StatusCode)
	}

	c.logger.Debug("HTTP request completed",
		zap.String("method", req.Method),
		zap.String("url", logURL),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", duration),
		zap.Int("response_size", len(body)),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
	}, nil
}

// isRetryable determines if an error is retryable (transient network errors)
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH) ||
			errors.Is(opErr.Err, syscall.ETIMEDOUT) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset",
		"connection refused",
		"network is unreachable",
		"i/o timeout",
		"tls handshake timeout",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// shouldRetry determines if an HTTP status code should trigger a retry
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Close closes the client and releases resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
