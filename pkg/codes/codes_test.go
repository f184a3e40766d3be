package codes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfUnwrapsWrappedError(t *testing.T) {
	base := New(ResourceExhausted, "segment full")
	wrapped := fmt.Errorf("append: %w", base)
	require.Equal(t, ResourceExhausted, Of(wrapped))
}

func TestOfDefaultsToInternalForForeignError(t *testing.T) {
	require.Equal(t, Internal, Of(fmt.Errorf("boom")))
}

func TestOfReturnsOKForNil(t *testing.T) {
	require.Equal(t, OK, Of(nil))
}

func TestRetryableClassifiesTransientCodes(t *testing.T) {
	require.True(t, Retryable(Unavailable))
	require.True(t, Retryable(ResourceExhausted))
	require.False(t, Retryable(InvalidArgument))
	require.False(t, Retryable(NotFound))
}
