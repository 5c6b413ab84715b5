package config

import (
	"errors"
	"net"
	"strconv"
	"time"
)

var (
	ErrInvalidPort        = errors.New("port must be between 0 and 65535")
	ErrMissingHost        = errors.New("host must be set")
	ErrMissingOutputDir   = errors.New("output directory must be set")
	ErrInvalidChunkSize   = errors.New("chunk size must be greater than 0")
	ErrInvalidMaxPayload  = errors.New("max payload bytes must be greater than 0")
	ErrInvalidSampleRatio = errors.New("telemetry sample ratio must be between 0.0 and 1.0")
)

// Config holds all application configuration
type Config struct {
	Transfer  TransferConfig  `json:"transfer"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// TransferConfig holds the transfer protocol configuration shared by the
// sender and receiver roles.
type TransferConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	OutputDir       string        `json:"output_dir"`
	ChunkSize       int           `json:"chunk_size"`
	MaxPayloadBytes int64         `json:"max_payload_bytes"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	DialTimeout     time.Duration `json:"dial_timeout"`
}

// TelemetryConfig holds tracing/metrics configuration
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled"`
	ServiceName string  `json:"service_name"`
	SampleRatio float64 `json:"sample_ratio"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Transfer: TransferConfig{
			Host:            "localhost",
			Port:            5050,
			OutputDir:       "server-out",
			ChunkSize:       8192,
			MaxPayloadBytes: 1 << 30, // 1 GiB compressed payload cap
			IdleTimeout:     5 * time.Minute,
			DialTimeout:     10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "fileferry",
			SampleRatio: 1.0,
		},
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Transfer.Host == "" {
		return ErrMissingHost
	}
	if c.Transfer.Port < 0 || c.Transfer.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Transfer.OutputDir == "" {
		return ErrMissingOutputDir
	}
	if c.Transfer.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.Transfer.MaxPayloadBytes <= 0 {
		return ErrInvalidMaxPayload
	}
	if c.Telemetry.SampleRatio < 0.0 || c.Telemetry.SampleRatio > 1.0 {
		return ErrInvalidSampleRatio
	}
	return nil
}

// Addr returns the host:port address for dialing or listening.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Transfer.Host, strconv.Itoa(c.Transfer.Port))
}
