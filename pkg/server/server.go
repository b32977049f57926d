package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"kestrel-hq/kestrel/pkg/config"
	"kestrel-hq/kestrel/pkg/gateway"
	"kestrel-hq/kestrel/pkg/gateway/middleware"
)

// Server owns the gateway's listeners and their lifecycle.
type Server struct {
	store    *config.Store
	pipeline *gateway.Pipeline
	logger   *slog.Logger

	// admin is the optional admin mux built by the caller; nil disables
	// the admin listener regardless of configuration.
	admin http.Handler

	mainServer  *http.Server
	httpServer  *http.Server
	adminServer *http.Server

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server around the pipeline. adminHandler may be nil.
func NewServer(store *config.Store, pipeline *gateway.Pipeline, adminHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        store,
		pipeline:     pipeline,
		logger:       logger,
		admin:        adminHandler,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts all listeners and blocks until a shutdown signal, context
// cancellation, or a listener error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	cfg := s.store.Current()
	errChan := make(chan error, 3)

	if err := s.startMain(cfg, errChan); err != nil {
		return err
	}
	s.startRedirect(cfg, errChan)
	s.startAdmin(cfg, errChan)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.Shutdown(context.Background())
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// startMain builds the middleware chain around the pipeline and starts the
// proxy listener.
func (s *Server) startMain(cfg *config.Config, errChan chan<- error) error {
	var handler http.Handler = s.pipeline
	handler = middleware.MaxBodyMiddleware(cfg.Proxy.MaxBodyBytes)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	s.mainServer = &http.Server{
		Addr:           cfg.Server.ListenAddress,
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	if cfg.Server.TLS.Enabled {
		tlsConfig, err := configureTLS(cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.mainServer.TLSConfig = tlsConfig
	}

	go func() {
		s.logger.Info("starting proxy listener",
			"address", cfg.Server.ListenAddress,
			"tls_enabled", cfg.Server.TLS.Enabled)

		var err error
		if cfg.Server.TLS.Enabled {
			err = s.mainServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = s.mainServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("proxy listener error: %w", err)
		}
	}()
	return nil
}

// startRedirect starts the plain-HTTP listener when configured.
func (s *Server) startRedirect(cfg *config.Config, errChan chan<- error) {
	if cfg.Server.HTTPAddress == "" {
		return
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.HTTPAddress,
		Handler:      NewRedirectHandler(cfg.Server.ACMEWebroot),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		s.logger.Info("starting redirect listener", "address", cfg.Server.HTTPAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("redirect listener error: %w", err)
		}
	}()
}

// startAdmin starts the admin listener when enabled and a handler was
// provided.
func (s *Server) startAdmin(cfg *config.Config, errChan chan<- error) {
	if !cfg.Admin.Enabled || s.admin == nil {
		return
	}

	s.adminServer = &http.Server{
		Addr:         cfg.Admin.ListenAddress,
		Handler:      s.admin,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		s.logger.Info("starting admin listener", "address", cfg.Admin.ListenAddress)
		if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("admin listener error: %w", err)
		}
	}()
}

// Stop requests a shutdown from another goroutine.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// IsRunning reports whether Start is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Shutdown drains all listeners within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	timeout := s.store.Current().Server.ShutdownTimeout
	s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range []*http.Server{s.mainServer, s.httpServer, s.adminServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during listener shutdown", "address", srv.Addr, "error", err)
			shutdownErr = fmt.Errorf("listener shutdown error: %w", err)
		}
	}

	s.logger.Info("gateway stopped")
	return shutdownErr
}

// configureTLS builds the TLS settings for the main listener.
func configureTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" {
		return nil, fmt.Errorf("TLS cert file not specified")
	}
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("TLS key file not specified")
	}
	if _, err := os.Stat(cfg.CertFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS cert file not found: %s", cfg.CertFile)
	}
	if _, err := os.Stat(cfg.KeyFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS key file not found: %s", cfg.KeyFile)
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}, nil
}
