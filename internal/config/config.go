// Package config provides configuration loading for the Voice Live bridge.
//
// Settings come from three sources, later wins: built-in defaults, an
// optional YAML/JSON5 config file (with $include and ${ENV} expansion), and
// AZURE_VOICELIVE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/michalmar/azure-ai-voicelive/internal/observability"
)

// DefaultInstructions is the assistant system prompt used when no override
// is configured.
const DefaultInstructions = "You are a helpful AI assistant with access to functions. " +
	"Use the functions when appropriate to provide accurate, real-time information. " +
	"If you are asked about the weather, please respond with 'I will get the weather for you. Please wait a moment.' " +
	"and then call the get_current_weather function. " +
	"If you are asked about the time, please respond with 'I will get the time for you. Please wait a moment.' " +
	"and then call the get_current_time function. " +
	"Explain when you're using a function and include the results in your response naturally."

// Config is the root configuration for the service.
type Config struct {
	Server       ServerConfig            `yaml:"server"`
	VoiceLive    VoiceLiveConfig         `yaml:"voicelive"`
	FunctionCall FunctionCallConfig      `yaml:"function_call"`
	Log          observability.LogConfig `yaml:"log"`
}

// ServerConfig holds the HTTP gateway settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// VoiceLiveConfig holds the remote Voice Live connection settings.
type VoiceLiveConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`

	// ShowTranscriptions enables forwarding of user and assistant
	// transcripts to the client.
	ShowTranscriptions bool `yaml:"show_transcriptions"`

	// SampleRateHz is the PCM sample rate reported with outbound audio.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// InputTranscriptionModel enables input audio transcription when set
	// (e.g. "whisper-1").
	InputTranscriptionModel string `yaml:"input_transcription_model"`
}

// FunctionCallConfig bounds the function-call coordination waits.
type FunctionCallConfig struct {
	// TimeoutSeconds is the bound on each coordination wait.
	// Default: 10
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the coordination wait bound as a duration.
func (c FunctionCallConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		VoiceLive: VoiceLiveConfig{
			Endpoint:           "wss://api.voicelive.com/v1",
			Model:              "gpt-4o-realtime-preview",
			Voice:              "en-US-AvaNeural",
			Instructions:       DefaultInstructions,
			ShowTranscriptions: true,
			SampleRateHz:       24000,
		},
		FunctionCall: FunctionCallConfig{
			TimeoutSeconds: 10,
		},
		Log: observability.LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional config file, and
// the environment. Path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		data, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AZURE_VOICELIVE_ENDPOINT"); v != "" {
		cfg.VoiceLive.Endpoint = v
	}
	if v := os.Getenv("AZURE_VOICELIVE_MODEL"); v != "" {
		cfg.VoiceLive.Model = v
	}
	if v := os.Getenv("AZURE_VOICELIVE_API_KEY"); v != "" {
		cfg.VoiceLive.APIKey = v
	}
	if v := os.Getenv("AZURE_VOICELIVE_VOICE"); v != "" {
		cfg.VoiceLive.Voice = v
	}
	if v := os.Getenv("AZURE_VOICELIVE_INSTRUCTIONS"); v != "" {
		cfg.VoiceLive.Instructions = v
	}
	if v := os.Getenv("AZURE_VOICELIVE_SHOW_TRANSCRIPTIONS"); v != "" {
		cfg.VoiceLive.ShowTranscriptions = parseBool(v)
	}
	if v := os.Getenv("AZURE_VOICELIVE_TRANSCRIPTION_MODEL"); v != "" {
		cfg.VoiceLive.InputTranscriptionModel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.VoiceLive.SampleRateHz == 0 {
		cfg.VoiceLive.SampleRateHz = 24000
	}
	if cfg.VoiceLive.Instructions == "" {
		cfg.VoiceLive.Instructions = DefaultInstructions
	}
	if cfg.FunctionCall.TimeoutSeconds == 0 {
		cfg.FunctionCall.TimeoutSeconds = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks that the settings required to serve sessions are present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.VoiceLive.Endpoint) == "" {
		return fmt.Errorf("config: voicelive endpoint is required")
	}
	if strings.TrimSpace(c.VoiceLive.Model) == "" {
		return fmt.Errorf("config: voicelive model is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	return nil
}

// parseBool accepts the truthy spellings the original deployment used.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
