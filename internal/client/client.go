// Package client sends one activity-tagged message to a linkollector server
// and waits for its acknowledgement.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/linkollector/internal/control"
	"github.com/danmuck/linkollector/internal/interrupt"
	"github.com/danmuck/linkollector/internal/poll"
	"github.com/danmuck/linkollector/internal/protocol"
	"github.com/danmuck/linkollector/internal/transport"
)

var (
	ErrEmptyHost       = errors.New("client: host is empty")
	ErrEmptyMessage    = errors.New("client: message is empty")
	ErrUnknownActivity = errors.New("client: unknown activity")
	ErrCancelled       = errors.New("client: cancelled while waiting for acknowledgement")
	ErrAckTimeout      = errors.New("client: timed out waiting for acknowledgement")
)

// Request is one message as given on the command line.
type Request struct {
	Host     string
	Activity string
	Message  string
}

// Validate checks the request and returns its parsed activity.
func (r Request) Validate() (protocol.Activity, error) {
	if strings.TrimSpace(r.Host) == "" {
		return 0, ErrEmptyHost
	}
	activity, err := protocol.ParseActivity(r.Activity)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActivity, r.Activity)
	}
	if r.Message == "" {
		return 0, ErrEmptyMessage
	}
	return activity, nil
}

// Config configures a Client.
type Config struct {
	Port      int
	Transport transport.Config
	// AckTimeout bounds the wait for the acknowledgement. Zero waits until
	// the acknowledgement or an interruption.
	AckTimeout time.Duration
	// HandleInterrupts installs the interrupt bridge for the wait.
	HandleInterrupts bool
	// Logger's zero value discards; DefaultConfig uses the global logger.
	Logger zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Port:             transport.DefaultPort,
		Transport:        transport.DefaultConfig(),
		HandleInterrupts: true,
		Logger:           log.Logger,
	}
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Port <= 0 {
		cfg.Port = transport.DefaultPort
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	return &Client{cfg: cfg}
}

// Send validates req, delivers it and waits for the acknowledgement. An
// interruption during the wait returns ErrCancelled.
func (c *Client) Send(ctx context.Context, req Request) error {
	activity, err := req.Validate()
	if err != nil {
		return err
	}
	payload, err := protocol.Encode(activity, req.Message)
	if err != nil {
		return err
	}

	fabric := control.NewFabric()
	signals, err := fabric.Bind(control.SignalEndpoint, 1)
	if err != nil {
		return fmt.Errorf("client: setup: %w", err)
	}
	defer signals.Close()
	if c.cfg.HandleInterrupts {
		notifier, err := fabric.Connect(control.SignalEndpoint)
		if err != nil {
			return fmt.Errorf("client: setup: %w", err)
		}
		defer notifier.Close()
		reg, err := interrupt.Install(notifier, func(data any) {
			if ep, ok := data.(*control.Endpoint); ok {
				_ = ep.TrySend(nil)
			}
		})
		if err != nil {
			return fmt.Errorf("client: setup: %w", err)
		}
		defer reg.Close()
	}

	if c.cfg.AckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.cfg.AckTimeout, ErrAckTimeout)
		defer cancel()
	}

	endpoint := transport.TCPEndpoint(req.Host, c.cfg.Port)
	tcfg := c.cfg.Transport
	tcfg.Logger = c.cfg.Logger
	sock, err := transport.Dial(ctx, endpoint, tcfg)
	if err != nil {
		return err
	}
	defer sock.Close()

	if err := sock.Send(payload); err != nil {
		return err
	}
	c.cfg.Logger.Info().
		Stringer("activity", activity).
		Str("message", req.Message).
		Str("endpoint", endpoint).
		Msg("client.Send sent, waiting for acknowledgement")

	for {
		ready, err := poll.Wait(ctx, signals, sock)
		if err != nil {
			if errors.Is(err, ErrAckTimeout) {
				return fmt.Errorf("%w after %s", ErrAckTimeout, c.cfg.AckTimeout)
			}
			return fmt.Errorf("client: wait for acknowledgement: %w", err)
		}
		if poll.Ready(ready, signals) {
			_, _ = signals.TryRecv()
			c.cfg.Logger.Info().Msg("client.Send cancelled")
			return ErrCancelled
		}
		if !poll.Ready(ready, sock) {
			continue
		}
		if _, err := sock.TryRecv(); err != nil {
			if errors.Is(err, poll.ErrWouldBlock) {
				continue
			}
			return fmt.Errorf("client: receive acknowledgement: %w", err)
		}
		c.cfg.Logger.Debug().Str("endpoint", endpoint).Msg("client.Send acknowledged")
		return nil
	}
}
