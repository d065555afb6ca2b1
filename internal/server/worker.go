package server

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/danmuck/linkollector/internal/control"
	"github.com/danmuck/linkollector/internal/transport"
)

// WorkerConfig configures the goroutine that owns the network socket.
type WorkerConfig struct {
	Endpoint       string
	Transport      transport.Config
	ResponseBuffer int
	Logger         zerolog.Logger
}

// Worker runs a Loop on its own goroutine. Ready is closed once the worker
// has bound its sockets (or failed to); Done is closed after the loop has
// returned and every socket is closed.
type Worker struct {
	cfg    WorkerConfig
	fabric *control.Fabric
	loop   Loop

	ready chan struct{}
	done  chan struct{}

	addr     net.Addr
	setupErr error
	err      error
}

// StartWorker starts the worker goroutine. The owner must have bound
// control.WorkerShutdownEndpoint on fabric.
func StartWorker(ctx context.Context, fabric *control.Fabric, cfg WorkerConfig) *Worker {
	w := &Worker{
		cfg:    cfg,
		fabric: fabric,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

func (w *Worker) Ready() <-chan struct{} { return w.ready }

func (w *Worker) Done() <-chan struct{} { return w.done }

// Addr is the bound TCP address. It is nil until Ready and after a setup
// failure.
func (w *Worker) Addr() net.Addr {
	select {
	case <-w.ready:
		return w.addr
	default:
		return nil
	}
}

// Err returns the setup error once Ready is closed and the loop result once
// Done is closed.
func (w *Worker) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
	}
	select {
	case <-w.ready:
		return w.setupErr
	default:
		return nil
	}
}

// State reports the worker loop's state.
func (w *Worker) State() State { return w.loop.State() }

// Wait blocks until the worker has exited. There is no timeout: a worker
// that never observes its shutdown request keeps the owner waiting.
func (w *Worker) Wait() error {
	<-w.done
	return w.err
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	reply, responses, shutdown, err := w.setup(ctx)
	w.setupErr = err
	w.err = err
	if err == nil {
		w.addr = reply.Addr()
	}
	close(w.ready)
	if err != nil {
		return
	}
	defer reply.Close()
	defer responses.Close()
	defer shutdown.Close()

	w.loop.Reply = reply
	w.loop.Stop = shutdown
	w.loop.Forward = responses
	w.loop.Logger = w.cfg.Logger
	if w.err = w.loop.Run(ctx); w.err == nil {
		w.cfg.Logger.Info().Msg("server.Worker clean shutdown")
	}
}

// setup binds the reply socket and the response endpoint, then connects the
// shutdown endpoint. Nothing is left open on failure.
func (w *Worker) setup(ctx context.Context) (*transport.Reply, *control.Endpoint, *control.Endpoint, error) {
	tcfg := w.cfg.Transport
	tcfg.Logger = w.cfg.Logger
	reply, err := transport.Bind(ctx, w.cfg.Endpoint, tcfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("server: worker setup: %w", err)
	}
	responses, err := w.fabric.Bind(control.WorkerResponseEndpoint, w.cfg.ResponseBuffer)
	if err != nil {
		_ = reply.Close()
		return nil, nil, nil, fmt.Errorf("server: worker setup: %w", err)
	}
	shutdown, err := w.fabric.Connect(control.WorkerShutdownEndpoint)
	if err != nil {
		_ = responses.Close()
		_ = reply.Close()
		return nil, nil, nil, fmt.Errorf("server: worker setup: %w", err)
	}
	return reply, responses, shutdown, nil
}
