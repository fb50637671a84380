package object

// zeroPaddedChunk slices data at offset into a chunk of at most
// maxChunkLength bytes, zero-padded to exactly maxChunkLength for the fixed
// wire framing, and returns the number of meaningful bytes. An offset at or
// past the end of data yields an all-padding chunk of length zero.
//
// Concatenating the unpadded prefixes of consecutive chunks in offset order
// reconstructs the original data exactly.
func zeroPaddedChunk(data []byte, maxChunkLength, offset int) ([]byte, uint8) {
	chunk := make([]byte, maxChunkLength)

	if offset >= len(data) {
		return chunk, 0
	}

	n := copy(chunk, data[offset:])

	return chunk, uint8(n)
}
