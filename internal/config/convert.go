package config

import (
	"github.com/rs/zerolog"

	"github.com/danmuck/linkollector/internal/client"
	"github.com/danmuck/linkollector/internal/protocol/frame"
	"github.com/danmuck/linkollector/internal/server"
	"github.com/danmuck/linkollector/internal/transport"
)

func (c Config) Transport(logger zerolog.Logger) transport.Config {
	return transport.Config{
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		QueueDepth:     c.QueueDepth,
		Limits:         frame.Limits{MaxPayloadBytes: c.MaxPayloadBytes},
		Logger:         logger,
	}
}

func (c Config) Service(logger zerolog.Logger) server.ServiceConfig {
	cfg := server.DefaultServiceConfig()
	cfg.Endpoint = transport.BindEndpoint(c.Bind, c.Port)
	cfg.Transport = c.Transport(logger)
	cfg.ResponseBuffer = c.ResponseBuffer
	cfg.Inline = c.Inline
	cfg.Logger = logger
	return cfg
}

func (c Config) Client(logger zerolog.Logger) client.Config {
	cfg := client.DefaultConfig()
	cfg.Port = c.Port
	cfg.Transport = c.Transport(logger)
	cfg.AckTimeout = c.AckTimeout
	cfg.Logger = logger
	return cfg
}
