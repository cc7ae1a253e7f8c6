package environment

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvConfig carries secrets and endpoints read from the process
// environment (optionally seeded from a .env file).
type EnvConfig struct {
	BackendURL string
	SandboxURL string

	AwsRegion   string
	S3Bucket    string
	AuditSqsUrl string

	NatsURL string
}

// ReadEnvConfig loads .env when present and assembles the endpoint
// configuration from the environment.
func ReadEnvConfig() *EnvConfig {
	// Missing .env is fine in production; variables come from the runtime.
	_ = godotenv.Load()

	return &EnvConfig{
		BackendURL:  os.Getenv("BACKEND_URL"),
		SandboxURL:  os.Getenv("SANDBOX_URL"),
		AwsRegion:   os.Getenv("AWS_REGION"),
		S3Bucket:    os.Getenv("RECORDINGS_S3_BUCKET"),
		AuditSqsUrl: os.Getenv("AUDIT_SQS_URL"),
		NatsURL:     os.Getenv("NATS_URL"),
	}
}

// FileConfig is the tunable (non-secret) part of the service
// configuration, read from a TOML file.
type FileConfig struct {
	ListenAddr string `toml:"listen_addr"`

	CanvasWidth  int `toml:"canvas_width"`
	CanvasHeight int `toml:"canvas_height"`
	FrameRate    int `toml:"frame_rate"`
	ChunkSeconds int `toml:"chunk_seconds"`

	SandboxTimeoutSec int `toml:"sandbox_timeout_sec"`
	ReportTimeoutSec  int `toml:"report_timeout_sec"`

	EventSubjectPrefix string `toml:"event_subject_prefix"`
}

// DefaultFileConfig carries the standard canvas resolution and one-second
// chunk interval.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		ListenAddr:         ":8080",
		CanvasWidth:        1280,
		CanvasHeight:       720,
		FrameRate:          15,
		ChunkSeconds:       1,
		SandboxTimeoutSec:  30,
		ReportTimeoutSec:   15,
		EventSubjectPrefix: "proctor.events",
	}
}

// ReadFileConfig parses the TOML config at path, overlaying defaults.
func ReadFileConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ChunkInterval returns the encoder flush interval.
func (c FileConfig) ChunkInterval() time.Duration {
	if c.ChunkSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.ChunkSeconds) * time.Second
}
