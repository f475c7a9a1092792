package query

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindInvalidInput, "prompt must not be empty")
	assert.Equal(t, "invalid_input: prompt must not be empty", err.Error())

	cause := errors.New("dial tcp: connection refused")
	wrapped := WrapError(KindServiceUnavailable, cause, "agent backend unavailable")
	assert.Contains(t, wrapped.Error(), "service_unavailable")
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(NewError(KindTimeout, "deadline exceeded")))
	assert.Equal(t, KindInternalError, KindOf(errors.New("plain error")))

	// Kind survives additional wrapping.
	wrapped := fmt.Errorf("request failed: %w", NewError(KindNotFound, "no such session"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}
