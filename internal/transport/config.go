package transport

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/linkollector/internal/protocol/frame"
)

// Config defines socket timeouts and limits.
type Config struct {
	ConnectTimeout time.Duration
	// ReadTimeout bounds a blocking reply read on the request side. Reply
	// connections may stay idle between requests. Zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// QueueDepth is the number of received requests a Reply buffers across
	// all connections.
	QueueDepth int
	Limits     frame.Limits
	Logger     zerolog.Logger
}

// DefaultConfig returns the built-in socket defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   15 * time.Second,
		QueueDepth:     64,
		Limits:         frame.DefaultLimits(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = d.Limits
	}
	return c
}
