package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/linkollector/internal/protocol/frame"
	"github.com/danmuck/linkollector/internal/transport"
)

var ErrInvalid = errors.New("config: invalid value")

// Config is the runtime configuration shared by both modes.
type Config struct {
	Bind            string
	Port            int
	QueueDepth      int
	MaxPayloadBytes uint32
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ConnectTimeout  time.Duration
	AckTimeout      time.Duration
	ResponseBuffer  int
	MetricsAddr     string
	Inline          bool
}

type fileConfig struct {
	Bind            string `toml:"bind"`
	Port            int    `toml:"port"`
	QueueDepth      int    `toml:"queue_depth"`
	MaxPayloadBytes int64  `toml:"max_payload_bytes"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ConnectTimeout  string `toml:"connect_timeout"`
	AckTimeout      string `toml:"ack_timeout"`
	ResponseBuffer  int    `toml:"response_buffer"`
	MetricsAddr     string `toml:"metrics_addr"`
	Inline          bool   `toml:"inline"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bind:            "*",
		Port:            transport.DefaultPort,
		QueueDepth:      64,
		MaxPayloadBytes: frame.DefaultLimits().MaxPayloadBytes,
		WriteTimeout:    15 * time.Second,
		ConnectTimeout:  5 * time.Second,
		ResponseBuffer:  16,
	}
}

// Load overlays the keys present in the TOML file at path on Default and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("bind") {
		cfg.Bind = strings.TrimSpace(raw.Bind)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("queue_depth") {
		cfg.QueueDepth = raw.QueueDepth
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 || raw.MaxPayloadBytes > int64(^uint32(0)) {
			return Config{}, fmt.Errorf("%w: max_payload_bytes=%d", ErrInvalid, raw.MaxPayloadBytes)
		}
		cfg.MaxPayloadBytes = uint32(raw.MaxPayloadBytes)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"ack_timeout", raw.AckTimeout, &cfg.AckTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("response_buffer") {
		cfg.ResponseBuffer = raw.ResponseBuffer
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("inline") {
		cfg.Inline = raw.Inline
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Bind) == "" {
		return fmt.Errorf("%w: bind is empty", ErrInvalid)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port=%d", ErrInvalid, cfg.Port)
	}
	if cfg.QueueDepth < 1 {
		return fmt.Errorf("%w: queue_depth=%d", ErrInvalid, cfg.QueueDepth)
	}
	if cfg.MaxPayloadBytes == 0 {
		return fmt.Errorf("%w: max_payload_bytes=0", ErrInvalid)
	}
	if cfg.ResponseBuffer < 1 {
		return fmt.Errorf("%w: response_buffer=%d", ErrInvalid, cfg.ResponseBuffer)
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":    cfg.ReadTimeout,
		"write_timeout":   cfg.WriteTimeout,
		"connect_timeout": cfg.ConnectTimeout,
		"ack_timeout":     cfg.AckTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalid, name, d)
		}
	}
	return nil
}
