package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/internal/pcm"
	"github.com/codewandler/pharmacyrt-go/internal/websocket"
	"github.com/codewandler/pharmacyrt-go/signaling"
)

const (
	DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"

	// realtime websocket sessions exchange pcm16 at 24kHz
	websocketSampleRate = 24_000
)

// WebSocketTransport runs the session over a websocket authenticated with an
// ephemeral token. Audio travels inside the event stream.
type WebSocketTransport struct {
	signaling    signaling.Client
	logger       *slog.Logger
	url          string
	model        string
	chunk        time.Duration
	closeTimeout time.Duration

	ready atomic.Bool

	mu     sync.Mutex
	client *websocket.Client
}

type WebSocketOption func(*WebSocketTransport)

func WithWebSocketLogger(logger *slog.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.logger = logger
	}
}

func WithRealtimeURL(u string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.url = u
	}
}

func WithRealtimeModel(model string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.model = model
	}
}

// WithAudioChunk sets how much microphone audio goes into one
// input_audio_buffer.append event.
func WithAudioChunk(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.chunk = d
	}
}

func NewWebSocketTransport(sig signaling.Client, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		signaling:    sig,
		logger:       slog.New(slog.DiscardHandler),
		url:          DefaultRealtimeURL,
		model:        "gpt-4o-realtime-preview-2024-12-17",
		chunk:        200 * time.Millisecond,
		closeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context, params TransportParams) error {
	token, err := t.signaling.Token(ctx)
	if err != nil {
		return err
	}

	u, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	q.Set("model", t.model)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	headers.Add("OpenAI-Beta", "realtime=v1")

	client, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:     u.String(),
		Headers: headers,
		Logger:  t.logger,
		OnText:  t.onText(params),
		OnClose: func() {
			wasReady := t.ready.Swap(false)
			if wasReady && params.OnClose != nil {
				params.OnClose()
			}
		},
	})
	if err != nil {
		return fmt.Errorf("dial realtime websocket: %w", err)
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	t.ready.Store(true)

	if params.Audio != nil {
		go t.writeLocalAudio(client, params.Audio, params.SampleRate)
	}

	t.logger.Info("websocket session established")
	return nil
}

// onText plays audio deltas directly and hands every other message on.
func (t *WebSocketTransport) onText(params TransportParams) websocket.HandlerFunc {
	return func(data []byte) error {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			if params.OnMessage != nil {
				params.OnMessage(data)
			}
			return nil
		}

		switch head.Type {
		case events.TypeResponseAudioDelta:
			return t.play(data, params)
		case events.TypeSpeechStarted:
			// the user talks over the assistant
			if params.ClearPlayback != nil {
				params.ClearPlayback()
			}
		}

		if params.OnMessage != nil {
			params.OnMessage(data)
		}
		return nil
	}
}

func (t *WebSocketTransport) play(data []byte, params TransportParams) error {
	if params.Playback == nil {
		return nil
	}
	evt, err := events.Parse[events.ResponseAudioDeltaEvent](data)
	if err != nil {
		return fmt.Errorf("parse audio delta: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(evt.Delta)
	if err != nil {
		return fmt.Errorf("decode audio delta: %w", err)
	}
	audio, err = pcm.Resample(audio, websocketSampleRate, params.PlaybackRate)
	if err != nil {
		return err
	}
	_, err = params.Playback.Write(audio)
	return err
}

func (t *WebSocketTransport) writeLocalAudio(client *websocket.Client, audio io.Reader, sampleRate int) {
	chunks := pcm.NewDurationReader(pcm.NewResampleReader(audio, sampleRate, websocketSampleRate), websocketSampleRate, t.chunk)
	buf := make([]byte, chunks.ChunkSize())

	for {
		n, err := chunks.Read(buf)
		if n > 0 {
			data, merr := json.Marshal(events.NewInputAudioBufferAppend(base64.StdEncoding.EncodeToString(buf[:n])))
			if merr != nil {
				t.logger.Error("failed to marshal input audio buffer append event", slog.Any("err", merr))
				return
			}
			if werr := client.WriteText(data); werr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("microphone stream ended", slog.Any("err", err))
			}
			return
		}
	}
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrSideChannelClosed
	}
	return client.WriteText(data)
}

func (t *WebSocketTransport) Ready() bool {
	return t.ready.Load()
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	t.ready.Store(false)
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.closeTimeout)
	defer cancel()
	return client.Close(ctx)
}
