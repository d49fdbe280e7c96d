package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "not_found error (code 404): user not found", New(ErrorTypeNotFound, 404, "user not found").Error())
	assert.Equal(t, "network error: dial failed", Wrap(ErrorTypeNetwork, stderrors.New("refused"), "dial failed").Error())
}

func TestTypeOfThroughWrapping(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("fetch profile: %w", Wrap(ErrorTypeNetwork, cause, "request failed"))

	assert.Equal(t, ErrorTypeNetwork, TypeOf(err))
	assert.True(t, Is(err, ErrorTypeNetwork))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
	assert.False(t, Is(nil, ErrorTypeUnknown))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		t    ErrorType
		want bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeServerError, true},
		{ErrorTypeRateLimit, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeAccessDenied, false},
		{ErrorTypeAuth, false},
		{ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.t), tt.t)
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(503))
	assert.False(t, IsRetryableStatusCode(429))
	assert.False(t, IsRetryableStatusCode(404))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Profile 'ghost' not found", UserMessage(New(ErrorTypeNotFound, 404, "Profile 'ghost' not found")))
	assert.Equal(t, "Profile 'alice' is private", UserMessage(New(ErrorTypeAccessDenied, 0, "Profile 'alice' is private")))
	assert.Contains(t, UserMessage(New(ErrorTypeRateLimit, 429, "slow down")), "wait a few minutes")
	assert.Equal(t, "Connection error: timeout", UserMessage(New(ErrorTypeNetwork, 0, "timeout")))
	assert.Equal(t, "boom", UserMessage(stderrors.New("boom")))
	assert.Empty(t, UserMessage(nil))
}
