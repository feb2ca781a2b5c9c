package channel

import (
	"context"
	"io"
)

// TransportParams wires a transport to its session.
type TransportParams struct {
	// Audio is the microphone capture behind the mute gate, mono PCM16 at
	// SampleRate. It is nil when no microphone is attached.
	Audio      io.Reader
	SampleRate int

	// Playback receives remote audio as mono PCM16 at PlaybackRate.
	Playback      io.Writer
	PlaybackRate  int
	ClearPlayback func()

	// OnMessage is called with each structured message from the side channel.
	OnMessage func(data []byte)
	// OnClose is called when the remote side goes away.
	OnClose func()
}

// Transport carries one realtime session: outbound audio, inbound audio and
// the structured event side channel.
type Transport interface {
	// Connect negotiates the session and returns once the side channel is
	// ready for sending.
	Connect(ctx context.Context, params TransportParams) error
	Send(data []byte) error
	Ready() bool
	// Close tears the session down. It is safe to call more than once and on
	// a transport that never connected.
	Close() error
}
