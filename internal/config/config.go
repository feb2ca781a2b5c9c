// Package config loads the pharmacy assistant settings from a YAML file and
// PHARMACYRT_ environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/tool"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all pharmacy assistant environment
// variables.
const EnvPrefix = "PHARMACYRT_"

const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

// Config holds all application configuration. The OpenAI key is loaded from
// the environment only and never read from the config file.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	BackendURL    string `yaml:"backend_url"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	Transport     string `yaml:"transport"`

	Model              string  `yaml:"model"`
	Voice              string  `yaml:"voice"`
	Language           string  `yaml:"language"`
	TranscriptionModel string  `yaml:"transcription_model"`
	Temperature        float64 `yaml:"temperature"`
	MaxOutputTokens    int     `yaml:"max_response_output_tokens"`
	Instructions       string  `yaml:"instructions"`

	VADThreshold      float64 `yaml:"vad_threshold"`
	PrefixPaddingMS   int     `yaml:"prefix_padding_ms"`
	SilenceDurationMS int     `yaml:"silence_duration_ms"`

	MicSampleRate  int    `yaml:"mic_sample_rate"`
	StartMuted     bool   `yaml:"start_muted"`
	InitialMessage string `yaml:"initial_message"`
	CallTTL        string `yaml:"call_ttl"`

	OpenAIAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:         ":8080",
		BackendURL:         "http://localhost:8080",
		OpenAIBaseURL:      "https://api.openai.com/v1",
		Transport:          TransportWebRTC,
		Model:              "gpt-4o-realtime-preview-2024-12-17",
		Voice:              "alloy",
		Language:           "he",
		TranscriptionModel: "whisper-1",
		Temperature:        0.8,
		MaxOutputTokens:    4096,
		VADThreshold:       0.5,
		PrefixPaddingMS:    300,
		SilenceDurationMS:  1200,
		MicSampleRate:      24000,
		StartMuted:         true,
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedCallTTL returns CallTTL as a duration. Empty or invalid values
// disable eviction.
func (c *Config) ParsedCallTTL() time.Duration {
	if c.CallTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.CallTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	str := map[string]*string{
		"LISTEN_ADDR":         &cfg.ListenAddr,
		"BACKEND_URL":         &cfg.BackendURL,
		"OPENAI_BASE_URL":     &cfg.OpenAIBaseURL,
		"TRANSPORT":           &cfg.Transport,
		"MODEL":               &cfg.Model,
		"VOICE":               &cfg.Voice,
		"LANGUAGE":            &cfg.Language,
		"TRANSCRIPTION_MODEL": &cfg.TranscriptionModel,
		"INSTRUCTIONS":        &cfg.Instructions,
		"INITIAL_MESSAGE":     &cfg.InitialMessage,
		"CALL_TTL":            &cfg.CallTTL,
	}
	for key, dst := range str {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv(EnvPrefix + "START_MUTED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.StartMuted = b
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured: the backend cannot create realtime sessions. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	switch cfg.Transport {
	case TransportWebRTC, TransportWebSocket:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transport %q: using %s.", cfg.Transport, TransportWebRTC))
		cfg.Transport = TransportWebRTC
	}
	if cfg.CallTTL != "" {
		if d, err := time.ParseDuration(cfg.CallTTL); err != nil || d < 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid call_ttl %q: orphaned call eviction is disabled.", cfg.CallTTL))
		}
	}
	if cfg.MicSampleRate <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid mic_sample_rate %d: using 24000.", cfg.MicSampleRate))
		cfg.MicSampleRate = 24000
	}

	return warnings
}

// Session builds the realtime session configuration. format is the audio
// format the client transport exchanges.
func (c *Config) Session(instructions string, tools []tool.Tool, format events.AudioFormat) events.SessionUpdate {
	if c.Instructions != "" {
		instructions = c.Instructions
	}
	toolChoice := tool.ChoiceNone
	if len(tools) > 0 {
		toolChoice = tool.ChoiceAuto
	}

	return events.SessionUpdate{
		Model:             c.Model,
		Modalities:        []string{"text", "audio"},
		Instructions:      instructions,
		Voice:             c.Voice,
		InputAudioFormat:  format,
		OutputAudioFormat: format,
		InputAudioTranscription: &events.InputAudioTranscription{
			Model:    c.TranscriptionModel,
			Language: c.Language,
		},
		TurnDetection: &events.TurnDetection{
			Type:              "server_vad",
			Threshold:         c.VADThreshold,
			PrefixPaddingMs:   c.PrefixPaddingMS,
			SilenceDurationMs: c.SilenceDurationMS,
		},
		Tools:                   tools,
		ToolChoice:              toolChoice,
		Temperature:             c.Temperature,
		MaxResponseOutputTokens: c.MaxOutputTokens,
	}
}
