// Package pharmacyrt is a realtime voice and text client for the pharmacy
// assistant. It joins a session through the backend, streams microphone audio,
// plays the assistant's voice and runs the pharmacy functions the model calls.
package pharmacyrt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codewandler/pharmacyrt-go/channel"
	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/processor"
	"github.com/codewandler/pharmacyrt-go/signaling"
	"github.com/codewandler/pharmacyrt-go/tool"
)

var ErrSessionUpdate = errors.New("failed to send session update")

type Client struct {
	config   *clientConfig
	manager  *channel.Manager
	executor tool.Executor
	logger   *slog.Logger

	// generation identifies the current session. Work left over from a
	// closed session carries an older value and is dropped.
	generation atomic.Uint64

	mu        sync.Mutex
	processor *processor.Processor
}

func New(opts ...ClientOption) *Client {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	logger := config.logger

	sig := config.signaling
	if sig == nil {
		sig = signaling.NewHTTPClient(config.backendURL, signaling.WithLogger(logger))
	}

	transport := config.transport
	if transport == nil {
		switch config.transportKind {
		case TransportWebSocket:
			transport = channel.NewWebSocketTransport(sig,
				channel.WithWebSocketLogger(logger),
				channel.WithRealtimeModel(config.model),
			)
		default:
			transport = channel.NewWebRTCTransport(sig, channel.WithWebRTCLogger(logger))
		}
	}

	executor := config.executor
	if executor == nil {
		executor = tool.NewHTTPExecutor(config.backendURL, tool.WithLogger(logger))
	}

	return &Client{
		config:   config,
		executor: executor,
		logger:   logger,
		manager: channel.NewManager(transport,
			channel.WithLogger(logger),
			channel.WithMicrophone(config.microphone),
			channel.WithStartMuted(config.startMuted),
			channel.WithPlayback(config.playbackRate, defaultPlaybackBuffer),
		),
	}
}

// Open connects a new session and sends the configured session.update.
// Handlers run on the session's event loop.
func (c *Client) Open(ctx context.Context) error {
	if c.manager.State() != channel.Disconnected {
		return channel.ErrAlreadyConnected
	}

	c.mu.Lock()
	prev, prevGen := c.processor, c.generation.Load()
	gen := c.generation.Add(1)
	proc := c.newProcessor(gen)
	c.processor = proc
	c.mu.Unlock()

	sessionCtx := context.WithoutCancel(ctx)
	err := c.manager.Initialize(ctx, func(env events.Envelope) {
		proc.Handle(sessionCtx, env)
	})
	if errors.Is(err, channel.ErrAlreadyConnected) {
		// another Open won; its session keeps running
		c.mu.Lock()
		if c.generation.CompareAndSwap(gen, prevGen) {
			c.processor = prev
		}
		c.mu.Unlock()
		return err
	}
	if err != nil {
		return err
	}

	if !c.manager.UpdateSession(c.config.session()) {
		c.Close()
		return ErrSessionUpdate
	}

	c.logger.Info("session opened", slog.String("transport", c.config.transportKind))
	return nil
}

func (c *Client) newProcessor(gen uint64) *processor.Processor {
	handlers := c.config.handlers
	if msg := c.config.initialMessage; msg != "" {
		onSessionCreated := handlers.OnSessionCreated
		handlers.OnSessionCreated = func(s events.Session) {
			if onSessionCreated != nil {
				onSessionCreated(s)
			}
			c.manager.SendTextMessage(msg)
		}
	}

	dispatch := func(f func()) bool {
		if c.generation.Load() != gen {
			return false
		}
		return c.manager.Post(f)
	}

	return processor.New(sessionSender{c: c, gen: gen}, c.executor, handlers,
		processor.WithLogger(c.logger),
		processor.WithDispatcher(dispatch),
		processor.WithCallTTL(c.config.callTTL),
	)
}

// SendText sends a typed user message and asks for a response.
func (c *Client) SendText(text string) bool {
	return c.manager.SendTextMessage(text)
}

func (c *Client) Mute() {
	c.manager.MuteMicrophone()
}

func (c *Client) Unmute() {
	c.manager.UnmuteMicrophone()
}

func (c *Client) IsMuted() bool {
	return c.manager.IsMicrophoneMuted()
}

func (c *Client) IsConnected() bool {
	return c.manager.IsConnected()
}

// Playback returns the assistant's voice as 16-bit mono PCM at the rate set
// with WithPlaybackSampleRate. The reader returns io.EOF once the session is
// closed.
func (c *Client) Playback() io.Reader {
	return c.manager.Playback()
}

func (c *Client) PlaybackSampleRate() int {
	return c.manager.PlaybackSampleRate()
}

// Close ends the session. It is safe to call more than once and from inside a
// handler.
func (c *Client) Close() {
	c.generation.Add(1)

	c.mu.Lock()
	proc := c.processor
	c.processor = nil
	c.mu.Unlock()

	stopped := c.manager.Stopped()
	c.manager.Cleanup()

	if proc != nil {
		// Close may run on the loop itself, so wait for it elsewhere.
		go func() {
			<-stopped
			proc.Reset()
		}()
	}
}

// sessionSender closes function calls only while its session is current.
type sessionSender struct {
	c   *Client
	gen uint64
}

func (s sessionSender) SendFunctionResult(callID string, result any) bool {
	if s.c.generation.Load() != s.gen {
		s.c.logger.Warn("dropping function result of a closed session", slog.String("call_id", callID))
		return false
	}
	return s.c.manager.SendFunctionResult(callID, result)
}
