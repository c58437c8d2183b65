package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYinxError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *YinxError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewError(BLOB_NOT_FOUND, "blob missing"),
			expected: "[BLOB_NOT_FOUND] blob missing",
		},
		{
			name:     "with cause",
			err:      WrapError(DB_QUERY_FAILED, "select failed", fmt.Errorf("disk I/O error")),
			expected: "[DB_QUERY_FAILED] select failed: disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestYinxError_Is(t *testing.T) {
	err := WrapError(BLOB_NOT_FOUND, "blob missing", nil)

	assert.True(t, errors.Is(err, NewError(BLOB_NOT_FOUND, "anything")))
	assert.False(t, errors.Is(err, NewError(BLOB_CORRUPTED, "anything")))
}

func TestYinxError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := WrapError(BLOB_READ_FAILED, "read failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryableError(BLOB_WRITE_FAILED, "transient")))
	assert.False(t, IsRetryable(NewError(BLOB_WRITE_FAILED, "fatal")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewError(SESSION_NOT_FOUND, "no session"))
	assert.Equal(t, SESSION_NOT_FOUND, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}
