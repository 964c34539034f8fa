package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrExtractionEmpty, "nothing parsed")
	wrapped := fmt.Errorf("attempt 2: %w", inner)

	assert.Equal(t, ErrExtractionEmpty, GetErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrExtractionEmpty))
	assert.False(t, IsCode(nil, ErrExtractionEmpty))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestIsTransportFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrUnauthorized, true},
		{ErrRateLimited, true},
		{ErrUpstreamError, true},
		{ErrUpstreamTimeout, true},
		{ErrStreamRead, true},
		{ErrStreamLineTooLong, true},
		{ErrExtractionEmpty, false},
		{ErrFragmentParse, false},
		{ErrValidationFailed, false},
		{ErrCallbackFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tt.code, "x"))
			assert.Equal(t, tt.want, IsTransportFailure(err))
		})
	}
	assert.False(t, IsTransportFailure(errors.New("plain")))
}

func TestError_MessageFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[STREAM_READ] read failed", NewError(ErrStreamRead, "read failed").Error())
	assert.Equal(t, "[STREAM_READ] read failed: boom",
		NewError(ErrStreamRead, "read failed").WithCause(errors.New("boom")).Error())
}
