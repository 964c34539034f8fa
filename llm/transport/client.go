// =============================================================================
// structflow Streaming Transport
// =============================================================================
// Opens one streaming HTTP request and hands back the raw response body.
// Everything that can go wrong before the first body byte is reported here as
// a transport failure; reading the body is the decoder's job.
// =============================================================================

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/structflow/internal/tlsutil"
	"github.com/BaSui01/structflow/types"
)

// Request describes one streaming call.
type Request struct {
	Method  string
	URL     string
	Body    any // JSON-encoded; nil sends no body
	Headers map[string]string

	// Provider names the upstream in errors and logs.
	Provider string
}

// StreamingClient opens a streaming request and returns the response body.
// The caller owns the returned body and must close it.
type StreamingClient interface {
	Stream(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithRateLimit limits outgoing requests to rps with the given burst.
// Non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *HTTPClient) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithPropagator injects trace context from the request context into the
// outgoing headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(h *HTTPClient) {
		h.propagator = p
	}
}

// HTTPClient is the net/http implementation of StreamingClient.
type HTTPClient struct {
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	propagator propagation.TextMapPropagator
}

// NewHTTPClient creates a streaming client. headerTimeout bounds the wait for
// response headers; zero means 30s.
func NewHTTPClient(headerTimeout time.Duration, opts ...Option) *HTTPClient {
	if headerTimeout <= 0 {
		headerTimeout = 30 * time.Second
	}
	h := &HTTPClient{
		client: tlsutil.StreamingHTTPClient(headerTimeout),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "transport"))
	return h
}

// Stream sends req and returns the body of a 2xx response.
func (h *HTTPClient) Stream(ctx context.Context, req *Request) (io.ReadCloser, error) {
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request cannot be nil")
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, classifyDoError(err, req.Provider)
		}
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "failed to marshal request").
				WithCause(err).WithProvider(req.Provider)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).WithProvider(req.Provider)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if h.propagator != nil {
		h.propagator.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.logger.Error("streaming request error",
			zap.String("provider", req.Provider),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return nil, classifyDoError(err, req.Provider)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg := ReadErrorMessage(resp.Body)
		h.logger.Error("streaming request rejected",
			zap.String("provider", req.Provider),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, MapHTTPError(resp.StatusCode, msg, req.Provider)
	}

	h.logger.Debug("stream opened",
		zap.String("provider", req.Provider),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
	)
	return resp.Body, nil
}

func classifyDoError(err error, provider string) *types.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "upstream timeout").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	}
	return types.NewError(types.ErrUpstreamError, "request failed").
		WithCause(err).WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(provider)
}
