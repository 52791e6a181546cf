package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypeOfWrapped(t *testing.T) {
	err := fmt.Errorf("fetch page: %w", RateLimited(429, 5*time.Second))

	assert.Equal(t, ErrorTypeRateLimit, TypeOf(err))
	assert.True(t, Is(err, ErrorTypeRateLimit))
	assert.Equal(t, 5*time.Second, RetryAfterOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(io.EOF))
	assert.False(t, Is(nil, ErrorTypeUnknown))
}

func TestTransportUnwraps(t *testing.T) {
	err := Transport(io.ErrUnexpectedEOF)

	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, 0, err.Code)
	assert.Contains(t, err.Error(), "transport error (code 0)")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		expected bool
	}{
		{ErrorTypeTransport, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeAPI, false},
		{ErrorTypeNotFound, false},
		{ErrorTypePermission, false},
		{ErrorTypeAuth, false},
		{ErrorTypeDownload, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.errType))
		})
	}
}

func TestDownloadFailedMessage(t *testing.T) {
	err := DownloadFailed("https://cdn.example/a.jpg", stderrors.New("status 403"))

	assert.Equal(t, "download error: https://cdn.example/a.jpg: status 403", err.Error())
}

func TestTransportExhausted(t *testing.T) {
	err := TransportExhausted(io.ErrUnexpectedEOF)

	assert.Equal(t, ErrorTypeAPI, TypeOf(err))
	assert.Equal(t, 0, err.Code)
	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, Is(err.Unwrap(), ErrorTypeTransport))
	assert.Equal(t, "api error (code 0): unexpected EOF", err.Error())
}
