package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeString(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected string
	}{
		{ESuccess, "E_SUCCESS"},
		{ENoMoreData, "E_NO_MORE_DATA"},
		{EProgramIsPurged, "E_PROGRAM_IS_PURGED"},
		{EInvalidParameter, "E_INVALID_PARAMETER"},
		{ETooManyOpenFiles, "E_TOO_MANY_OPEN_FILES"},
		{ErrorCode(99), "<unknown>(99)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.code.String())
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewError("could not open file object", EDoesNotExist)
	assert.Equal(t, "could not open file object: E_DOES_NOT_EXIST (133)", err.Error())
}

func TestErrorIsComparesByCode(t *testing.T) {
	err := NewError("could not open file object", EDoesNotExist)

	assert.True(t, errors.Is(err, NewError("something else", EDoesNotExist)))
	assert.False(t, errors.Is(err, NewError("something else", EAccessDenied)))
}

func TestIsCodeUnwraps(t *testing.T) {
	inner := NewError("could not read from file object", ENoMoreData)
	wrapped := fmt.Errorf("read loop: %w", inner)

	require.True(t, IsCode(wrapped, ENoMoreData))
	assert.False(t, IsCode(wrapped, EWouldBlock))
	assert.False(t, IsCode(errors.New("plain"), ENoMoreData))
}
