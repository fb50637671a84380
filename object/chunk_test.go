package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroPaddedChunkWidthAndContent(t *testing.T) {
	data := []byte("hello world")

	chunk, n := zeroPaddedChunk(data, 8, 0)
	require.Len(t, chunk, 8)
	assert.Equal(t, uint8(8), n)
	assert.Equal(t, []byte("hello wo"), chunk)

	chunk, n = zeroPaddedChunk(data, 8, 8)
	require.Len(t, chunk, 8)
	assert.Equal(t, uint8(3), n)
	assert.Equal(t, []byte("rld\x00\x00\x00\x00\x00"), chunk)

	chunk, n = zeroPaddedChunk(data, 8, 16)
	require.Len(t, chunk, 8)
	assert.Zero(t, n)
	assert.Equal(t, make([]byte, 8), chunk)
}

func TestZeroPaddedChunkRoundTrip(t *testing.T) {
	const max = 58

	// Concatenating the unpadded prefixes in offset order must reconstruct
	// the input for every boundary shape.
	lengths := []int{0, 1, max - 1, max, max + 1, 2 * max, 2*max + 17, 5 * max}

	for _, length := range lengths {
		data := make([]byte, length)
		for i := range data {
			data[i] = byte(i%255 + 1)
		}

		var rebuilt []byte
		for offset := 0; offset < len(data); offset += max {
			chunk, n := zeroPaddedChunk(data, max, offset)
			require.Len(t, chunk, max)
			rebuilt = append(rebuilt, chunk[:n]...)
		}

		assert.True(t, bytes.Equal(data, rebuilt), "length %d", length)
	}
}
