package channel

import (
	"context"
	"io"
	"sync/atomic"
)

// AudioStream is a live capture of mono PCM16 little-endian audio.
type AudioStream interface {
	io.ReadCloser
	SampleRate() int
}

// Microphone opens capture streams. Errors should wrap ErrPermissionDenied,
// ErrDeviceNotFound or ErrDeviceBusy where the cause is known.
type Microphone interface {
	Open(ctx context.Context) (AudioStream, error)
}

// MicrophoneFunc adapts a function to Microphone.
type MicrophoneFunc func(ctx context.Context) (AudioStream, error)

func (f MicrophoneFunc) Open(ctx context.Context) (AudioStream, error) {
	return f(ctx)
}

// gate keeps reading the capture stream while muted but hands out silence,
// so the outbound track keeps its timing.
type gate struct {
	src   io.Reader
	muted *atomic.Bool
}

func (g *gate) Read(p []byte) (int, error) {
	n, err := g.src.Read(p)
	if g.muted.Load() {
		clear(p[:n])
	}
	return n, err
}
