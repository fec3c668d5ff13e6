package audio

import (
	"bytes"
	"fmt"
)

// Chunker accumulates sample buffers and cuts them into chunks of a fixed size.
// Chunk boundaries are independent of the boundaries of the buffers written in.
type Chunker struct {
	size int
	acc  bytes.Buffer

	// Statistics
	chunksCreated uint64
	bytesIn       uint64
	bytesOut      uint64
}

// ChunkerStats represents chunker statistics
type ChunkerStats struct {
	ChunkSize     int    `json:"chunk_size_bytes"`
	ChunksCreated uint64 `json:"chunks_created"`
	BytesIn       uint64 `json:"bytes_in"`
	BytesOut      uint64 `json:"bytes_out"`
	Pending       int    `json:"pending_bytes"`
}

// NewChunker creates a chunker producing chunks of size bytes.
func NewChunker(size int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidChunkSize, size)
	}

	return &Chunker{size: size}, nil
}

// Write appends p and returns every chunk that became complete, in order.
func (c *Chunker) Write(p []byte) [][]byte {
	c.acc.Write(p)
	c.bytesIn += uint64(len(p))

	var chunks [][]byte
	for c.acc.Len() >= c.size {
		chunks = append(chunks, c.take(c.size))
	}

	return chunks
}

// Flush returns the pending partial chunk, or nil if nothing is pending.
func (c *Chunker) Flush() []byte {
	if c.acc.Len() == 0 {
		return nil
	}

	return c.take(c.acc.Len())
}

// take copies n bytes out of the accumulator; the slice returned by
// bytes.Buffer.Next is only valid until the next write.
func (c *Chunker) take(n int) []byte {
	chunk := make([]byte, n)
	copy(chunk, c.acc.Next(n))

	c.chunksCreated++
	c.bytesOut += uint64(n)

	return chunk
}

// Size returns the configured chunk size in bytes.
func (c *Chunker) Size() int { return c.size }

// Pending returns the number of bytes waiting for a full chunk.
func (c *Chunker) Pending() int { return c.acc.Len() }

// HasPendingChunk returns whether a partial chunk is waiting to be flushed.
func (c *Chunker) HasPendingChunk() bool { return c.acc.Len() > 0 }

// GetStats returns current chunker statistics
func (c *Chunker) GetStats() ChunkerStats {
	return ChunkerStats{
		ChunkSize:     c.size,
		ChunksCreated: c.chunksCreated,
		BytesIn:       c.bytesIn,
		BytesOut:      c.bytesOut,
		Pending:       c.acc.Len(),
	}
}
