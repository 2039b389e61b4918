package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Realtime RealtimeConfig `json:"realtime"`
	Display  DisplayConfig  `json:"display"`
	Media    MediaConfig    `json:"media"`
	Log      LogConfig      `json:"log"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type ServerConfig struct {
	BaseURL string `env:"PICOCHAT_SERVER_BASE_URL" json:"base_url"`
	Timeout int    `env:"PICOCHAT_SERVER_TIMEOUT"  json:"timeout"` // seconds
}

type RealtimeConfig struct {
	URL              string  `env:"PICOCHAT_REALTIME_URL"               json:"url,omitempty"` // derived from server.base_url when empty
	HandshakeTimeout int     `env:"PICOCHAT_REALTIME_HANDSHAKE_TIMEOUT" json:"handshake_timeout"`
	PingInterval     int     `env:"PICOCHAT_REALTIME_PING_INTERVAL"     json:"ping_interval"`
	EmitRate         float64 `env:"PICOCHAT_REALTIME_EMIT_RATE"         json:"emit_rate"` // events per second, 0 disables pacing
	EmitBurst        int     `env:"PICOCHAT_REALTIME_EMIT_BURST"        json:"emit_burst"`
}

// DisplayConfig carries presentation preferences. It is handed to whatever
// renders the transcript and is never consulted by the synchronizer.
type DisplayConfig struct {
	Theme    string `env:"PICOCHAT_DISPLAY_THEME"     json:"theme"`     // "light" | "dark"
	FontSize string `env:"PICOCHAT_DISPLAY_FONT_SIZE" json:"font_size"` // "small" | "medium" | "large"
	TimeZone string `env:"PICOCHAT_DISPLAY_TIME_ZONE" json:"time_zone"`
}

var fontSizes = map[string]string{
	"small":  "14px",
	"medium": "16px",
	"large":  "20px",
}

// FontSizePx maps the configured size name to a pixel size, defaulting to medium.
func (d DisplayConfig) FontSizePx() string {
	if px, ok := fontSizes[d.FontSize]; ok {
		return px
	}
	return fontSizes["medium"]
}

func (d DisplayConfig) IsLight() bool {
	return d.Theme != "dark"
}

type MediaConfig struct {
	MaxUploadBytes  int64  `env:"PICOCHAT_MEDIA_MAX_UPLOAD_BYTES"  json:"max_upload_bytes"`
	AudioMIME       string `env:"PICOCHAT_MEDIA_AUDIO_MIME"        json:"audio_mime"`
	AudioChunkSize  int    `env:"PICOCHAT_MEDIA_AUDIO_CHUNK_SIZE"  json:"audio_chunk_size"`
	CaptureMaxWidth int    `env:"PICOCHAT_MEDIA_CAPTURE_MAX_WIDTH" json:"capture_max_width"`
	CaptureQuality  int    `env:"PICOCHAT_MEDIA_CAPTURE_QUALITY"   json:"capture_quality"`
}

type LogConfig struct {
	Level string `env:"PICOCHAT_LOG_LEVEL" json:"level"`
	File  string `env:"PICOCHAT_LOG_FILE"  json:"file,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `env:"PICOCHAT_METRICS_ENABLED" json:"enabled"`
	Listen  string `env:"PICOCHAT_METRICS_LISTEN"  json:"listen"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 15,
		},
		Realtime: RealtimeConfig{
			HandshakeTimeout: 10,
			PingInterval:     25,
			EmitRate:         20,
			EmitBurst:        5,
		},
		Display: DisplayConfig{
			Theme:    "light",
			FontSize: "medium",
			TimeZone: "Asia/Kolkata",
		},
		Media: MediaConfig{
			MaxUploadBytes:  25 << 20,
			AudioMIME:       "audio/webm",
			AudioChunkSize:  16 << 10,
			CaptureMaxWidth: 1280,
			CaptureQuality:  85,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
	}
}

// LoadConfig reads path (a missing file yields the defaults), then a .env
// file from the working directory, then PICOCHAT_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server.base_url: host is required")
	}
	if c.Realtime.URL != "" {
		ru, err := url.Parse(c.Realtime.URL)
		if err != nil {
			return fmt.Errorf("realtime.url: %w", err)
		}
		if ru.Scheme != "ws" && ru.Scheme != "wss" {
			return fmt.Errorf("realtime.url: unsupported scheme %q", ru.Scheme)
		}
	}
	if c.Realtime.EmitRate < 0 {
		return errors.New("realtime.emit_rate must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("display.time_zone: %w", err)
	}
	if c.Media.CaptureQuality < 0 || c.Media.CaptureQuality > 100 {
		return errors.New("media.capture_quality must be within 0..100")
	}
	return nil
}

// RealtimeURL returns the configured WebSocket endpoint, or the base URL
// rewritten to ws(s)://host/ws.
func (c *Config) RealtimeURL() string {
	if c.Realtime.URL != "" {
		return c.Realtime.URL
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String()
}

func (c *Config) Location() (*time.Location, error) {
	if c.Display.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Display.TimeZone)
}

func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.Timeout) * time.Second
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Realtime.HandshakeTimeout) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Realtime.PingInterval) * time.Second
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

// LogFilePath returns log.file with a leading ~ expanded.
func (c *Config) LogFilePath() string {
	return expandHome(c.Log.File)
}
