package server

import (
	"github.com/rs/zerolog"

	"github.com/danmuck/linkollector/internal/protocol"
)

// Observer receives every message the server decoded.
type Observer interface {
	Observe(msg protocol.Message)
}

type ObserverFunc func(msg protocol.Message)

func (f ObserverFunc) Observe(msg protocol.Message) { f(msg) }

// LogObserver reports messages as log lines.
func LogObserver(logger zerolog.Logger) Observer {
	return ObserverFunc(func(msg protocol.Message) {
		logger.Info().
			Stringer("activity", msg.Activity).
			Str("payload", msg.Payload).
			Msg("received")
	})
}
