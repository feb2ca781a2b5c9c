// Package channel owns the realtime session transport: microphone capture,
// remote audio playback and the structured event side channel.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/internal/loop"
	"github.com/codewandler/pharmacyrt-go/internal/pcm"
	"github.com/smallnest/ringbuffer"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

type Manager struct {
	transport      Transport
	microphone     Microphone
	logger         *slog.Logger
	queueSize      int
	playbackRate   int
	playbackBuffer time.Duration
	startMuted     bool

	muted atomic.Bool

	mu       sync.Mutex
	state    State
	loop     *loop.Loop
	stream   AudioStream
	playback *ringbuffer.RingBuffer
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMicrophone attaches a capture device. Without one the session is
// receive-only.
func WithMicrophone(mic Microphone) Option {
	return func(m *Manager) {
		m.microphone = mic
	}
}

// WithStartMuted sets whether the microphone is muted right after Initialize.
// Defaults to true.
func WithStartMuted(muted bool) Option {
	return func(m *Manager) {
		m.startMuted = muted
	}
}

func WithQueueSize(size int) Option {
	return func(m *Manager) {
		m.queueSize = size
	}
}

// WithPlayback sets the sample rate of the audio handed out by Playback and
// how much of it is buffered before new audio is dropped.
func WithPlayback(sampleRate int, buffer time.Duration) Option {
	return func(m *Manager) {
		m.playbackRate = sampleRate
		m.playbackBuffer = buffer
	}
}

func NewManager(transport Transport, opts ...Option) *Manager {
	m := &Manager{
		transport:      transport,
		logger:         slog.New(slog.DiscardHandler),
		playbackRate:   24_000,
		playbackBuffer: 60 * time.Second,
		startMuted:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.muted.Store(m.startMuted)
	return m
}

// Initialize opens the microphone and connects the transport. onMessage is
// called on the session's event loop, one message at a time and in arrival
// order. On failure all partially acquired resources are released.
func (m *Manager) Initialize(ctx context.Context, onMessage func(events.Envelope)) error {
	m.mu.Lock()
	if m.state != Disconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = Connecting
	l := loop.New(m.queueSize)
	playback := ringbuffer.New(pcm.ChunkSize(m.playbackRate, m.playbackBuffer)).SetBlocking(true)
	m.loop = l
	m.playback = playback
	m.mu.Unlock()

	m.logger.Info("initializing channel")
	m.muted.Store(m.startMuted)

	params := TransportParams{
		Playback:      &playbackSink{rb: playback, logger: m.logger},
		PlaybackRate:  m.playbackRate,
		ClearPlayback: playback.Reset,
		OnMessage: func(data []byte) {
			m.receive(l, data, onMessage)
		},
		OnClose: func() {
			m.logger.Warn("transport closed by remote")
		},
	}

	if m.microphone != nil {
		stream, err := m.microphone.Open(ctx)
		if err != nil {
			mErr := classifyMediaError(err)
			m.logger.Error("microphone access failed", slog.String("kind", mErr.Kind.String()), slog.Any("err", err))
			m.Cleanup()
			return mErr
		}
		m.mu.Lock()
		m.stream = stream
		m.mu.Unlock()

		params.Audio = &gate{src: stream, muted: &m.muted}
		params.SampleRate = stream.SampleRate()
		m.logger.Info("microphone ready", slog.Int("sample_rate", stream.SampleRate()), slog.Bool("muted", m.muted.Load()))
	}

	if err := m.transport.Connect(ctx, params); err != nil {
		m.logger.Error("transport connect failed", slog.Any("err", err))
		m.Cleanup()
		return fmt.Errorf("connect: %w", err)
	}

	m.mu.Lock()
	if m.loop != l {
		// cleaned up while connecting
		m.mu.Unlock()
		_ = m.transport.Close()
		return fmt.Errorf("connect: %w", ErrNotConnected)
	}
	m.state = Connected
	m.mu.Unlock()

	m.logger.Info("channel connected")
	return nil
}

func (m *Manager) receive(l *loop.Loop, data []byte, onMessage func(events.Envelope)) {
	env, err := events.Decode(data)
	if err != nil {
		m.logger.Error("dropping malformed message", slog.Any("err", err))
		return
	}
	if onMessage == nil {
		return
	}
	if !l.Post(func() { onMessage(env) }) {
		m.logger.Debug("event loop stopped, dropping message", slog.String("type", env.Type))
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the session is established and its side
// channel can send.
func (m *Manager) IsConnected() bool {
	return m.State() == Connected && m.transport.Ready()
}

// SendEvent serializes evt and sends it over the side channel. It returns
// false if the channel is not open or the send fails.
func (m *Manager) SendEvent(evt any) bool {
	eventType := "unknown"
	if e, ok := evt.(interface{ EventType() string }); ok {
		eventType = e.EventType()
	}

	switch {
	case m.State() != Connected:
		return m.sendFailed(eventType, ErrNotConnected)
	case !m.transport.Ready():
		return m.sendFailed(eventType, ErrSideChannelClosed)
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return m.sendFailed(eventType, err)
	}
	if err := m.transport.Send(data); err != nil {
		return m.sendFailed(eventType, err)
	}
	return true
}

func (m *Manager) sendFailed(eventType string, err error) bool {
	m.logger.Error("cannot send event", slog.Any("err", &SendError{EventType: eventType, Err: err}))
	return false
}

// SendTextMessage adds a user text message and asks for a response.
func (m *Manager) SendTextMessage(text string) bool {
	sent := m.SendEvent(events.NewUserText(text))
	return m.SendEvent(events.NewResponseCreate()) && sent
}

// SendFunctionResult closes a function call with result and asks for a
// response.
func (m *Manager) SendFunctionResult(callID string, result any) bool {
	output, err := json.Marshal(result)
	if err != nil {
		m.logger.Error("function result not serializable", slog.String("call_id", callID), slog.Any("err", err))
		output, _ = json.Marshal(map[string]any{"error": err.Error()})
	}
	sent := m.SendEvent(events.NewFunctionCallOutput(callID, string(output)))
	return m.SendEvent(events.NewResponseCreate()) && sent
}

func (m *Manager) UpdateSession(session events.SessionUpdate) bool {
	return m.SendEvent(events.NewSessionUpdate(session))
}

func (m *Manager) MuteMicrophone() {
	m.muted.Store(true)
	m.logger.Info("microphone muted")
}

func (m *Manager) UnmuteMicrophone() {
	m.muted.Store(false)
	m.logger.Info("microphone unmuted")
}

// IsMicrophoneMuted reports true when no microphone is capturing.
func (m *Manager) IsMicrophoneMuted() bool {
	m.mu.Lock()
	hasStream := m.stream != nil
	m.mu.Unlock()
	return !hasStream || m.muted.Load()
}

// Post runs f on the session's event loop. It returns false when there is no
// running session.
func (m *Manager) Post(f func()) bool {
	m.mu.Lock()
	l := m.loop
	m.mu.Unlock()
	if l == nil {
		return false
	}
	return l.Post(f)
}

// Stopped is closed once the current session's event loop has exited after
// Cleanup. Without a session it is already closed.
func (m *Manager) Stopped() <-chan struct{} {
	m.mu.Lock()
	l := m.loop
	m.mu.Unlock()
	if l == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return l.Stopped()
}

// Playback returns the remote audio of the current session. The reader
// blocks until audio arrives and returns io.EOF after Cleanup.
func (m *Manager) Playback() io.Reader {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playback == nil {
		return bytes.NewReader(nil)
	}
	return m.playback
}

// PlaybackSampleRate is the sample rate of the audio returned by Playback.
func (m *Manager) PlaybackSampleRate() int {
	return m.playbackRate
}

// Cleanup releases the session. It is safe to call repeatedly.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.state == Disconnected && m.loop == nil {
		m.mu.Unlock()
		return
	}
	stream, l, playback := m.stream, m.loop, m.playback
	m.stream = nil
	m.loop = nil
	m.state = Disconnected
	m.mu.Unlock()

	m.logger.Info("cleaning up channel")

	if stream != nil {
		if err := stream.Close(); err != nil {
			m.logger.Warn("failed to stop microphone", slog.Any("err", err))
		}
	}
	if err := m.transport.Close(); err != nil {
		m.logger.Warn("failed to close transport", slog.Any("err", err))
	}
	if playback != nil {
		playback.CloseWithError(io.EOF)
	}
	if l != nil {
		l.Stop()
	}

	m.logger.Info("cleanup complete")
}

// playbackSink drops audio that does not fit instead of stalling the
// transport.
type playbackSink struct {
	rb     *ringbuffer.RingBuffer
	logger *slog.Logger
}

func (s *playbackSink) Write(p []byte) (int, error) {
	if s.rb.Free() < len(p) {
		s.logger.Debug("playback buffer full, dropping audio", slog.Int("len", len(p)))
		return len(p), nil
	}
	return s.rb.Write(p)
}
