package pharmacyrt

import (
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/pharmacyrt-go/channel"
	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/processor"
	"github.com/codewandler/pharmacyrt-go/signaling"
	"github.com/codewandler/pharmacyrt-go/tool"
)

const (
	BackendURLEnvVarName = "PHARMACYRT_BACKEND_URL"

	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"

	defaultPlaybackBuffer = 60 * time.Second
)

type clientConfig struct {
	backendURL         string
	transportKind      string
	model              string
	instruction        string
	language           string
	transcriptionModel string
	voice              string
	temperature        float64
	maxOutputTokens    int
	playbackRate       int
	startMuted         bool
	initialMessage     string
	callTTL            time.Duration
	logger             *slog.Logger
	tools              []tool.Tool
	handlers           processor.Handlers

	transport  channel.Transport
	signaling  signaling.Client
	executor   tool.Executor
	microphone channel.Microphone
}

func (c *clientConfig) session() events.SessionUpdate {
	toolChoice := tool.ChoiceNone
	if len(c.tools) > 0 {
		toolChoice = tool.ChoiceAuto
	}

	return events.SessionUpdate{
		Modalities:        []string{"text", "audio"},
		Instructions:      c.instruction,
		Voice:             c.voice,
		InputAudioFormat:  events.AudioFormatPCM16,
		OutputAudioFormat: events.AudioFormatPCM16,
		InputAudioTranscription: &events.InputAudioTranscription{
			Model:    c.transcriptionModel,
			Language: c.language,
		},
		TurnDetection: &events.TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 1200,
		},
		Temperature:             c.temperature,
		MaxResponseOutputTokens: c.maxOutputTokens,
		Tools:                   c.tools,
		ToolChoice:              toolChoice,
	}
}

type ClientOption func(*clientConfig)

func WithBackendURL(url string) ClientOption {
	return func(config *clientConfig) {
		config.backendURL = url
	}
}

// WithEnvBackendURL takes the backend URL from the first non-empty variable.
func WithEnvBackendURL(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if u := os.Getenv(envVarName); u != "" {
				o.backendURL = u
				return
			}
		}
	}
}

// WithTransportKind selects TransportWebRTC or TransportWebSocket.
func WithTransportKind(kind string) ClientOption {
	return func(config *clientConfig) {
		config.transportKind = kind
	}
}

// WithTransport replaces the built-in transports.
func WithTransport(t channel.Transport) ClientOption {
	return func(config *clientConfig) {
		config.transport = t
	}
}

func WithSignaling(s signaling.Client) ClientOption {
	return func(config *clientConfig) {
		config.signaling = s
	}
}

// WithExecutor runs tools in process instead of on the backend.
func WithExecutor(e tool.Executor) ClientOption {
	return func(config *clientConfig) {
		config.executor = e
	}
}

func WithMicrophone(mic channel.Microphone) ClientOption {
	return func(config *clientConfig) {
		config.microphone = mic
	}
}

func WithStartMuted(muted bool) ClientOption {
	return func(config *clientConfig) {
		config.startMuted = muted
	}
}

func WithHandlers(h processor.Handlers) ClientOption {
	return func(config *clientConfig) {
		config.handlers = h
	}
}

// WithInitialMessage is sent as a user message as soon as the session exists.
func WithInitialMessage(text string) ClientOption {
	return func(config *clientConfig) {
		config.initialMessage = text
	}
}

func WithTools(tools ...tool.Tool) ClientOption {
	return func(config *clientConfig) {
		config.tools = tools
	}
}

func WithVoice(voice string) ClientOption {
	return func(config *clientConfig) {
		config.voice = voice
	}
}

// WithPlaybackSampleRate sets the rate of the audio returned by Playback.
func WithPlaybackSampleRate(sr int) ClientOption {
	return func(config *clientConfig) {
		config.playbackRate = sr
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithTemperature(temperature float64) ClientOption {
	return func(o *clientConfig) {
		o.temperature = temperature
	}
}

func WithMaxOutputTokens(n int) ClientOption {
	return func(o *clientConfig) {
		o.maxOutputTokens = n
	}
}

func WithModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.model = model
	}
}

// WithCallTTL drops function calls whose arguments stopped streaming for
// longer than ttl.
func WithCallTTL(ttl time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.callTTL = ttl
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithBackendURL("http://localhost:8080"),
		WithEnvBackendURL(BackendURLEnvVarName),
		WithTransportKind(TransportWebRTC),
		WithLanguage("he"),
		WithTranscriptionModel("whisper-1"),
		WithVoice("alloy"),
		WithInstruction("You are a helpful pharmacy assistant."),
		WithTemperature(0.8),
		WithMaxOutputTokens(4096),
		WithPlaybackSampleRate(24_000),
		WithStartMuted(true),
		WithModel("gpt-4o-realtime-preview-2024-12-17"),
	)
}

func WithLanguage(language string) ClientOption {
	return func(o *clientConfig) {
		o.language = language
	}
}

func WithTranscriptionModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.transcriptionModel = model
	}
}

func WithInstruction(instruction string) ClientOption {
	return func(o *clientConfig) {
		o.instruction = instruction
	}
}
