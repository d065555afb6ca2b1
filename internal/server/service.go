package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/linkollector/internal/control"
	"github.com/danmuck/linkollector/internal/interrupt"
	"github.com/danmuck/linkollector/internal/poll"
	"github.com/danmuck/linkollector/internal/protocol"
	"github.com/danmuck/linkollector/internal/transport"
)

// ServiceConfig configures the receiving server.
type ServiceConfig struct {
	Endpoint       string
	Transport      transport.Config
	ResponseBuffer int
	// Inline runs the loop on the owner goroutine with the interrupt
	// endpoint as its stop source.
	Inline   bool
	Observer Observer
	// Logger's zero value discards; DefaultServiceConfig uses the global
	// logger.
	Logger zerolog.Logger
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Endpoint:       transport.BindEndpoint("*", transport.DefaultPort),
		Transport:      transport.DefaultConfig(),
		ResponseBuffer: 16,
		Logger:         log.Logger,
	}
}

// Service owns the server: it installs the interrupt bridge, runs the
// worker and reports what the worker forwards.
type Service struct {
	cfg      ServiceConfig
	observer Observer

	ready     chan struct{}
	readyOnce sync.Once
	mu        sync.RWMutex
	addr      net.Addr
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	cfg.Transport = cfg.Transport.WithDefaults()
	if cfg.ResponseBuffer <= 0 {
		cfg.ResponseBuffer = 1
	}
	observer := cfg.Observer
	if observer == nil {
		observer = LogObserver(cfg.Logger)
	}
	return &Service{
		cfg:      cfg,
		observer: observer,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the server listens, or once Run has given up
// during setup.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Addr is the bound TCP address once Ready is closed.
func (s *Service) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Run serves until an interruption arrives. The worker variant is used
// unless the config asks for inline mode.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Inline {
		return s.RunInline(ctx)
	}
	return s.run(ctx, s.serveWorker)
}

// RunInline serves on the calling goroutine. The interrupt endpoint is
// polled directly by the loop.
func (s *Service) RunInline(ctx context.Context) error {
	return s.run(ctx, s.serveInline)
}

func (s *Service) run(ctx context.Context, serve func(context.Context, *control.Fabric, *control.Endpoint) error) error {
	defer s.markReady()

	fabric := control.NewFabric()
	signals, err := fabric.Bind(control.SignalEndpoint, 1)
	if err != nil {
		return fmt.Errorf("server: setup: %w", err)
	}
	defer signals.Close()
	notifier, err := fabric.Connect(control.SignalEndpoint)
	if err != nil {
		return fmt.Errorf("server: setup: %w", err)
	}
	defer notifier.Close()

	reg, err := interrupt.Install(notifier, enqueueInterrupt)
	if err != nil {
		return fmt.Errorf("server: setup: %w", err)
	}
	defer reg.Close()

	return serve(ctx, fabric, signals)
}

// enqueueInterrupt runs on the interrupt dispatcher. A signal that finds
// the endpoint full is dropped; one queued signal is enough to stop.
func enqueueInterrupt(data any) {
	ep, ok := data.(*control.Endpoint)
	if !ok {
		return
	}
	_ = ep.TrySend(nil)
}

func (s *Service) serveWorker(ctx context.Context, fabric *control.Fabric, signals *control.Endpoint) error {
	logger := s.cfg.Logger

	shutdown, err := fabric.Bind(control.WorkerShutdownEndpoint, 1)
	if err != nil {
		return fmt.Errorf("server: setup: %w", err)
	}
	defer shutdown.Close()

	worker := StartWorker(ctx, fabric, WorkerConfig{
		Endpoint:       s.cfg.Endpoint,
		Transport:      s.cfg.Transport,
		ResponseBuffer: s.cfg.ResponseBuffer,
		Logger:         logger,
	})
	<-worker.Ready()
	if err := worker.Err(); err != nil {
		_ = worker.Wait()
		return err
	}

	responses, err := fabric.Connect(control.WorkerResponseEndpoint)
	if err != nil {
		_ = shutdown.TrySend(nil)
		return errors.Join(fmt.Errorf("server: setup: %w", err), worker.Wait())
	}
	defer responses.Close()
	s.listening(worker.Addr(), false)

	done := poll.Done(worker.Done())
	for {
		ready, err := poll.Wait(ctx, signals, responses, done)
		if err != nil {
			_ = shutdown.TrySend(nil)
			return errors.Join(fmt.Errorf("%w: %w", ErrPollFailed, err), worker.Wait())
		}
		if poll.Ready(ready, responses) {
			s.report(responses)
		}
		if poll.Ready(ready, done) {
			s.drain(responses)
			return worker.Err()
		}
		if poll.Ready(ready, signals) {
			_, _ = signals.TryRecv()
			logger.Info().Msg("server.Service shutdown requested")
			if err := shutdown.Send(ctx, nil); err != nil {
				return errors.Join(fmt.Errorf("server: request worker shutdown: %w", err), worker.Wait())
			}
			return s.awaitWorker(ctx, responses, worker)
		}
	}
}

// awaitWorker reports forwarded messages until the worker acknowledges the
// shutdown by exiting.
func (s *Service) awaitWorker(ctx context.Context, responses *control.Endpoint, worker *Worker) error {
	done := poll.Done(worker.Done())
	for {
		ready, err := poll.Wait(ctx, responses, done)
		if err != nil {
			return errors.Join(fmt.Errorf("%w: %w", ErrPollFailed, err), worker.Wait())
		}
		if poll.Ready(ready, responses) {
			s.report(responses)
			continue
		}
		if poll.Ready(ready, done) {
			s.drain(responses)
			return worker.Wait()
		}
	}
}

func (s *Service) serveInline(ctx context.Context, _ *control.Fabric, signals *control.Endpoint) error {
	tcfg := s.cfg.Transport
	tcfg.Logger = s.cfg.Logger
	reply, err := transport.Bind(ctx, s.cfg.Endpoint, tcfg)
	if err != nil {
		return fmt.Errorf("server: setup: %w", err)
	}
	defer reply.Close()
	s.listening(reply.Addr(), true)

	loop := &Loop{
		Reply:    reply,
		Stop:     signals,
		Observer: s.observer,
		Logger:   s.cfg.Logger,
	}
	return loop.Run(ctx)
}

func (s *Service) report(responses *control.Endpoint) {
	raw, err := responses.TryRecv()
	if err != nil {
		return
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Int("bytes", len(raw)).Msg("server.Service forwarded message did not decode")
		return
	}
	s.observer.Observe(msg)
}

func (s *Service) drain(responses *control.Endpoint) {
	for responses.Pending() {
		s.report(responses)
	}
}

func (s *Service) listening(addr net.Addr, inline bool) {
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
	s.cfg.Logger.Info().Str("addr", addr.String()).Bool("inline", inline).Msg("server.Service listening")
	s.cfg.Logger.Info().Msg("Press CTRL+C to cancel...")
	s.markReady()
}

func (s *Service) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}
