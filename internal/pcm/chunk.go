// Package pcm holds helpers for 16-bit little-endian mono PCM audio.
package pcm

import (
	"fmt"
	"io"
	"time"
)

const BytesPerSample = 2

// ChunkSize returns the number of bytes that hold d of mono PCM16 audio.
func ChunkSize(sampleRate int, d time.Duration) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * BytesPerSample
}

// ChunkReader regroups an audio stream into fixed-size chunks. Only the last
// chunk before EOF may be shorter.
type ChunkReader struct {
	r         io.Reader
	buf       []byte
	tmp       []byte
	chunkSize int
	eof       bool
}

func NewChunkReader(r io.Reader, chunkSize int) *ChunkReader {
	return &ChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
		tmp:       make([]byte, chunkSize),
	}
}

// NewDurationReader emits chunks holding d of audio each.
func NewDurationReader(r io.Reader, sampleRate int, d time.Duration) *ChunkReader {
	return NewChunkReader(r, ChunkSize(sampleRate, d))
}

func (f *ChunkReader) ChunkSize() int {
	return f.chunkSize
}

func (f *ChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.chunkSize)
	}

	for len(f.buf) < f.chunkSize && !f.eof {
		n, err := f.r.Read(f.tmp)
		if n > 0 {
			f.buf = append(f.buf, f.tmp[:n]...)
		}
		if err == io.EOF {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	n := min(f.chunkSize, len(f.buf))
	copy(p, f.buf[:n])
	f.buf = f.buf[n:]

	return n, nil
}
