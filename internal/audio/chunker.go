package audio

import (
	"time"
)

// SamplesPerChunk returns the chunk length in samples for a sample rate
// and chunk duration. 16000 Hz at 100ms yields 1600.
func SamplesPerChunk(sampleRate int, duration time.Duration) int {
	return int(float64(sampleRate) * duration.Seconds())
}

// Chunker accumulates converted PCM16 samples and cuts them into
// fixed-size chunks. It is not safe for concurrent use; the capture
// pipeline goroutine is its only caller.
type Chunker struct {
	chunkSamples int
	pending      *RingBuffer
	dropped      uint64
}

// NewChunker creates a chunker emitting chunks of exactly chunkSamples
// samples.
func NewChunker(chunkSamples int) *Chunker {
	// Headroom for several chunks of backlog before samples are dropped.
	return &Chunker{
		chunkSamples: chunkSamples,
		pending:      NewRingBuffer(chunkSamples*8 + 1),
	}
}

// Write appends a frame of samples and returns zero or more complete
// chunks in production order. Each returned chunk has exactly
// chunkSamples samples.
func (c *Chunker) Write(samples []int16) [][]int16 {
	written := c.pending.Write(samples)
	if written < len(samples) {
		c.dropped += uint64(len(samples) - written)
	}

	var chunks [][]int16
	for c.pending.Available() >= c.chunkSamples {
		chunk := make([]int16, c.chunkSamples)
		c.pending.Read(chunk)
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Flush returns any partial chunk still pending, or nil when empty.
// The remainder is shorter than a full chunk.
func (c *Chunker) Flush() []int16 {
	n := c.pending.Available()
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	c.pending.Read(out)
	return out
}

// Pending returns the number of accumulated samples not yet emitted.
func (c *Chunker) Pending() int {
	return c.pending.Available()
}

// Dropped returns the number of samples discarded due to backlog.
func (c *Chunker) Dropped() uint64 {
	return c.dropped
}

// Reset discards pending samples without emitting them.
func (c *Chunker) Reset() {
	c.pending.Clear()
}
