package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/danmuck/linkollector/internal/observability"
	"github.com/danmuck/linkollector/internal/poll"
	"github.com/danmuck/linkollector/internal/protocol"
)

// ReplySocket is the request/reply socket a Loop answers on.
type ReplySocket interface {
	poll.Target
	TryRecv() ([]byte, error)
	Send(payload []byte) error
}

// StopSource is the control endpoint whose first message ends the loop.
type StopSource interface {
	poll.Target
	TryRecv() ([]byte, error)
}

// Forwarder passes decoded requests on as raw bytes.
type Forwarder interface {
	Send(ctx context.Context, msg []byte) error
}

// Loop answers requests on Reply until Stop delivers a message. Every
// request taken from Reply is acknowledged before anything else happens to
// it, and the loop only stops between requests.
type Loop struct {
	Reply    ReplySocket
	Stop     StopSource
	Forward  Forwarder
	Observer Observer
	// Logger's zero value discards.
	Logger zerolog.Logger
	// OnState, when set, is called on every state change from the Run
	// goroutine.
	OnState func(State)

	mu    sync.RWMutex
	state State
}

func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state == "" {
		return StateIdle
	}
	return l.state
}

// Run polls until the stop endpoint fires, which returns nil, or until a
// poll, receive, acknowledgement or forward failure, which is returned.
func (l *Loop) Run(ctx context.Context) error {
	if l.Reply == nil || l.Stop == nil {
		return ErrLoopConfig
	}
	for {
		l.setState(StateWaiting)
		ready, err := poll.Wait(ctx, l.Stop, l.Reply)
		if err != nil {
			return l.stop(StopPollFailed, fmt.Errorf("%w: %w", ErrPollFailed, err))
		}
		if len(ready) == 0 {
			continue
		}

		l.setState(StateDispatching)
		if poll.Ready(ready, l.Stop) {
			if _, err := l.Stop.TryRecv(); err != nil {
				l.Logger.Warn().Err(err).Msg("server.Loop drain stop signal failed")
			}
			return l.stop(StopShutdown, nil)
		}
		if reason, err := l.exchange(ctx); err != nil {
			return l.stop(reason, err)
		}
	}
}

func (l *Loop) exchange(ctx context.Context) (string, error) {
	raw, err := l.Reply.TryRecv()
	if errors.Is(err, poll.ErrWouldBlock) {
		return "", nil
	}
	if err != nil {
		return StopReceiveFailed, fmt.Errorf("%w: %w", ErrReceiveFailed, err)
	}
	if err := l.Reply.Send(nil); err != nil {
		return StopSendFailed, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	requestID := xid.New().String()
	observability.RecordRequest(len(raw))
	msg, err := protocol.Decode(raw)
	if err != nil {
		observability.RecordDecodeFailure()
		l.Logger.Warn().
			Err(err).
			Str("request_id", requestID).
			Int("bytes", len(raw)).
			Msg("server.Loop could not parse message from client")
		return "", nil
	}
	observability.RecordDecoded(msg.Activity.String())
	l.Logger.Debug().
		Str("request_id", requestID).
		Stringer("activity", msg.Activity).
		Int("bytes", len(raw)).
		Msg("server.Loop acknowledged")

	if l.Forward != nil {
		if err := l.Forward.Send(ctx, raw); err != nil {
			return StopForwardFailed, fmt.Errorf("%w: request_id=%s: %w", ErrForwardFailed, requestID, err)
		}
	}
	if l.Observer != nil {
		l.Observer.Observe(msg)
	}
	return "", nil
}

func (l *Loop) stop(reason string, err error) error {
	l.setState(StateStopped)
	observability.RecordLoopStop(reason)
	if err != nil {
		l.Logger.Error().Err(err).Str("reason", reason).Msg("server.Loop stopped")
		return err
	}
	l.Logger.Debug().Str("reason", reason).Msg("server.Loop stopped")
	return nil
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	changed := l.state != s
	l.state = s
	l.mu.Unlock()
	if changed && l.OnState != nil {
		l.OnState(s)
	}
}
