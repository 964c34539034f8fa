package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/types"
)

func TestHTTPClient_StreamReturnsBody(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "data: {\"a\":1}\n\n")
	}))
	defer server.Close()

	c := NewHTTPClient(5*time.Second, WithLogger(zap.NewNop()))
	body, err := c.Stream(context.Background(), &Request{
		URL:      server.URL,
		Body:     map[string]any{"stream": true},
		Headers:  map[string]string{"Authorization": "Bearer sk-test"},
		Provider: "openai",
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"a\":1}\n\n", string(data))
	assert.Equal(t, true, gotBody["stream"])
}

func TestHTTPClient_Non2xxIsTransportFailure(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, types.ErrUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, types.ErrRateLimited, true},
		{"quota", http.StatusBadRequest, `{"error":{"message":"quota exhausted"}}`, types.ErrQuotaExceeded, false},
		{"bad request", http.StatusBadRequest, `oops`, types.ErrInvalidRequest, false},
		{"unavailable", http.StatusServiceUnavailable, ``, types.ErrUpstreamError, true},
		{"overloaded", 529, `overloaded`, types.ErrModelOverloaded, true},
		{"teapot", http.StatusTeapot, ``, types.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c := NewHTTPClient(time.Second)
			body, err := c.Stream(context.Background(), &Request{URL: server.URL, Provider: "p"})
			require.Error(t, err)
			assert.Nil(t, body)
			assert.True(t, types.IsTransportFailure(err))

			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, "p", e.Provider)
		})
	}
}

func TestHTTPClient_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewHTTPClient(time.Second)
	_, err := c.Stream(context.Background(), &Request{URL: url})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
}

func TestHTTPClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewHTTPClient(5 * time.Second)
	_, err := c.Stream(ctx, &Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamTimeout))
}

func TestHTTPClient_RateLimit(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, "data: x\n")
	}))
	defer server.Close()

	// 1 request per hour with burst 1: the second call must wait and hit the deadline.
	c := NewHTTPClient(time.Second, WithRateLimit(1.0/3600, 1))

	body, err := c.Stream(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)
	body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Stream(ctx, &Request{URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHTTPClient_PropagatesTraceContext(t *testing.T) {
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = io.WriteString(w, "data: x\n")
	}))
	defer server.Close()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "extract")
	defer span.End()

	c := NewHTTPClient(time.Second, WithPropagator(propagation.TraceContext{}))
	body, err := c.Stream(ctx, &Request{URL: server.URL})
	require.NoError(t, err)
	body.Close()

	got := <-headers
	traceparent := got.Get("traceparent")
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestHTTPClient_NilRequest(t *testing.T) {
	_, err := NewHTTPClient(0).Stream(context.Background(), nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key (type: auth)", ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key","type":"auth"}}`)))
	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader("plain text\n")))
}

func TestMapHTTPError_EmptyMessage(t *testing.T) {
	e := MapHTTPError(http.StatusBadGateway, "", "x")
	assert.Equal(t, "upstream returned status 502", e.Message)
	assert.True(t, e.Retryable)
}
