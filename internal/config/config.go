package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the mic bridge daemon.
type Config struct {
	// HTTP server (health + metrics)
	Port string `envconfig:"PORT" default:"8080"`

	// Upstream WebSocket endpoint receiving binary PCM16 frames
	ServerURL string `envconfig:"SERVER_URL" default:"ws://localhost:9090/audio"`

	// Client identity reported to the server and matched against turn
	// announcements. A random ID is generated when unset.
	ClientID string `envconfig:"CLIENT_ID" default:""`

	// Audio capture configuration
	EnableInput      bool    `envconfig:"ENABLE_INPUT" default:"true"`
	SampleRate       int     `envconfig:"SAMPLE_RATE" default:"16000"`
	ChunkDurationMs  int     `envconfig:"CHUNK_DURATION_MS" default:"100"`
	VADThreshold     float64 `envconfig:"VAD_THRESHOLD" default:"0.01"` // normalized RMS level in [0,1]
	EchoCancellation bool    `envconfig:"ECHO_CANCELLATION" default:"true"`
	NoiseSuppression bool    `envconfig:"NOISE_SUPPRESSION" default:"true"`
	AutoGainControl  bool    `envconfig:"AUTO_GAIN_CONTROL" default:"true"`
	AudioDeviceID    string  `envconfig:"AUDIO_DEVICE_ID" default:""` // empty selects the default input device

	// Streaming bridge configuration
	RespectTurnState  bool `envconfig:"RESPECT_TURN_STATE" default:"true"`
	StopOnSendFailure bool `envconfig:"STOP_ON_SEND_FAILURE" default:"false"` // default is fire-and-continue

	// Transport resilience
	ReconnectMaxAttempts int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoffMs   int `envconfig:"RECONNECT_BACKOFF" default:"1000"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // enable Prometheus metrics
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if one exists, then the
// environment.
func Load() (*Config, error) {
	// Ignore error if the .env file does not exist
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containerized
// deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.ChunkDurationMs <= 0 {
		return fmt.Errorf("CHUNK_DURATION_MS must be positive, got %d", c.ChunkDurationMs)
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		return fmt.Errorf("VAD_THRESHOLD must be within [0,1], got %f", c.VADThreshold)
	}
	if c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}
	return nil
}

// ChunkDuration returns the chunk cadence as a time.Duration.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkDurationMs) * time.Millisecond
}

// ReconnectBackoff returns the reconnect backoff as a time.Duration.
func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.ReconnectBackoffMs) * time.Millisecond
}
