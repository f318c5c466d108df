package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/letsplay/gateway/internal/config"
	"github.com/letsplay/gateway/internal/observability"
)

// maxHeaderBytes caps request header size.
const maxHeaderBytes = 1 << 20

// Listener is the gateway's HTTP server.
type Listener struct {
	config  config.ListenerConfig
	server  *http.Server
	handler http.Handler
	logger  observability.Logger
	addr    atomic.Value
	running atomic.Bool
	done    chan struct{}
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for the listener.
func WithListenerLogger(logger observability.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener creates a listener serving handler.
func NewListener(cfg config.ListenerConfig, handler http.Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		config:  cfg,
		handler: handler,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Address returns the bound address once started, or the configured one.
func (l *Listener) Address() string {
	if addr, ok := l.addr.Load().(string); ok {
		return addr
	}
	return l.config.Address()
}

// Start binds the socket and serves in the background.
func (l *Listener) Start(ctx context.Context) error {
	if l.running.Load() {
		return fmt.Errorf("listener %s is already running", l.Address())
	}

	l.server = &http.Server{
		Handler:           l.handler,
		ReadTimeout:       orDefault(l.config.ReadTimeout, config.DefaultReadTimeout),
		ReadHeaderTimeout: orDefault(l.config.ReadHeaderTimeout, config.DefaultReadHeaderTimeout),
		WriteTimeout:      orDefault(l.config.WriteTimeout, config.DefaultWriteTimeout),
		IdleTimeout:       orDefault(l.config.IdleTimeout, config.DefaultIdleTimeout),
		MaxHeaderBytes:    maxHeaderBytes,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.config.Address(), err)
	}

	l.addr.Store(ln.Addr().String())
	l.done = make(chan struct{})
	l.running.Store(true)

	l.logger.Info("listener started", observability.String("address", l.Address()))

	go l.serve(ln)
	return nil
}

func (l *Listener) serve(ln net.Listener) {
	defer close(l.done)

	if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("listener error",
			observability.String("address", l.Address()),
			observability.Error(err),
		)
	}
	l.running.Store(false)
}

// Stop drains in-flight requests until ctx expires, then closes remaining
// connections.
func (l *Listener) Stop(ctx context.Context) error {
	if !l.running.Load() {
		return nil
	}

	l.logger.Info("stopping listener", observability.String("address", l.Address()))

	if err := l.server.Shutdown(ctx); err != nil {
		if closeErr := l.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close listener: %w", closeErr)
		}
		return fmt.Errorf("failed to shutdown listener gracefully: %w", err)
	}
	<-l.done

	l.logger.Info("listener stopped", observability.String("address", l.Address()))
	return nil
}

// IsRunning returns true if the listener is serving.
func (l *Listener) IsRunning() bool {
	return l.running.Load()
}
