package internal

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/core/log"
)

// Service is the interface for services that can be started and stopped.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type server struct {
	name     string
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// Runtime manages the lifecycle of services and servers.
type Runtime struct {
	logger          log.Logger
	services        []Service
	servers         []*server
	shutdownTimeout time.Duration

	mu      sync.Mutex
	started []Service
}

// NewRuntime creates a new runtime instance.
func NewRuntime(logger log.Logger, services []Service, shutdownTimeout time.Duration) *Runtime {
	return &Runtime{
		logger:          logger,
		services:        services,
		shutdownTimeout: shutdownTimeout,
	}
}

// AddServer registers an HTTP server to be started with the runtime.
func (r *Runtime) AddServer(name, addr string, handler http.Handler) {
	r.servers = append(r.servers, &server{
		name: name,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	})
}

// Addr returns the bound address of the named server once started, or "".
func (r *Runtime) Addr(name string) string {
	for _, s := range r.servers {
		if s.name == name && s.listener != nil {
			return s.listener.Addr().String()
		}
	}
	return ""
}

// Start binds every server, then starts the services in order. On failure
// everything already started is stopped again and the error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	r.logger.Info("starting runtime")

	for _, s := range r.servers {
		ln, err := net.Listen("tcp", s.srv.Addr)
		if err != nil {
			r.closeListeners()
			return errors.Wrapf(errors.CodeUnavailable, "runtimex.Start", err, "%s server listen on %s", s.name, s.srv.Addr)
		}
		s.listener = ln
	}

	for i, svc := range r.services {
		if err := svc.Start(ctx); err != nil {
			r.logger.Error(err, "service start failed", log.Int("index", i))
			stopErr := r.stopServices(ctx)
			r.closeListeners()
			return multierr.Append(errors.Wrapf(errors.CodeInternal, "runtimex.Start", err, "service %d", i), stopErr)
		}
		r.mu.Lock()
		r.started = append(r.started, svc)
		r.mu.Unlock()
		r.logger.Info("service started", log.Int("index", i))
	}

	for _, s := range r.servers {
		s.done = make(chan struct{})
		go func(s *server) {
			defer close(s.done)
			r.logger.Info("serving", log.Str("server", s.name), log.Str("addr", s.listener.Addr().String()))
			if err := s.srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
				r.logger.Error(err, "server failed", log.Str("server", s.name))
			}
		}(s)
	}

	r.logger.Info("runtime started")
	return nil
}

// Stop stops the services in reverse start order, then shuts down the
// servers. All failures are returned combined.
func (r *Runtime) Stop(ctx context.Context) error {
	r.logger.Info("stopping runtime")

	shutdownCtx, cancel := context.WithTimeout(ctx, r.shutdownTimeout)
	defer cancel()

	err := r.stopServices(shutdownCtx)

	for _, s := range r.servers {
		if s.done == nil {
			continue
		}
		if serr := s.srv.Shutdown(shutdownCtx); serr != nil {
			r.logger.Error(serr, "server shutdown failed", log.Str("server", s.name))
			err = multierr.Append(err, serr)
		}
		<-s.done
	}

	r.logger.Info("runtime stopped")
	return err
}

func (r *Runtime) stopServices(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.started = nil
	r.mu.Unlock()

	var err error
	for i := len(started) - 1; i >= 0; i-- {
		if serr := started[i].Stop(ctx); serr != nil {
			r.logger.Error(serr, "service stop failed", log.Int("index", i))
			err = multierr.Append(err, serr)
		}
	}
	return err
}

func (r *Runtime) closeListeners() {
	for _, s := range r.servers {
		if s.listener != nil {
			_ = s.listener.Close()
		}
	}
}
