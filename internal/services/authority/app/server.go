// Package server wires the authority runtime: sqlite store, domain service,
// live-update fan-out, and the gRPC/HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/config"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/timeouts"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/channels"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/domain"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
	authoritysqlite "github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/storage/sqlite"
)

type serverEnv struct {
	DBPath       string `env:"KINGSHOT_ATLAS_AUTHORITY_DB_PATH"`
	HTTPAddr     string `env:"KINGSHOT_ATLAS_AUTHORITY_HTTP_ADDR"`
	DirectoryURL string `env:"KINGSHOT_ATLAS_AUTHORITY_DIRECTORY_URL"`
	MaxChannels  int    `env:"KINGSHOT_ATLAS_AUTHORITY_MAX_CHANNELS"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "authority.db")
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = ":8083"
	}
	return cfg
}

// Server hosts the authority runtime: a gRPC health endpoint for process
// supervision and the HTTP live-update surface. Domain operations are
// consumed in-process through Service.
type Server struct {
	listener     net.Listener
	httpListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server
	store        *authoritysqlite.Store
	service      *domain.Service
}

// New creates a configured authority server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured authority server for the provided gRPC
// address. The HTTP channel endpoint binds separately from env config.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srvEnv := loadServerEnv()

	httpListener, err := net.Listen("tcp", srvEnv.HTTPAddr)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", srvEnv.HTTPAddr, err)
	}

	store, err := openAuthorityStore(srvEnv.DBPath)
	if err != nil {
		_ = listener.Close()
		_ = httpListener.Close()
		return nil, err
	}

	signer, err := domain.NewGrantSignerFromEnv()
	if err != nil {
		closeAll(listener, httpListener, store)
		return nil, fmt.Errorf("load delegate grant signer: %w", err)
	}
	verifier, err := domain.NewGrantVerifierFromEnv()
	if err != nil {
		closeAll(listener, httpListener, store)
		return nil, fmt.Errorf("load delegate grant verifier: %w", err)
	}

	hub := channels.NewHub(channels.NewGuard(srvEnv.MaxChannels), log.Printf)
	dispatcher := fanout.NewDispatcher(log.Printf)
	dispatcher.Register("channels", hub)

	opts := domain.Options{
		Publisher: dispatcher,
		Signer:    signer,
		Verifier:  verifier,
	}
	if directory := newHTTPDirectory(srvEnv.DirectoryURL); directory != nil {
		opts.Directory = directory
		opts.Tiers = directory
	}
	service := domain.NewService(store, opts)

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Handler:           channels.NewHandler(hub),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		listener:     listener,
		httpListener: httpListener,
		grpcServer:   grpcServer,
		health:       healthServer,
		httpServer:   httpServer,
		store:        store,
		service:      service,
	}, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HTTPAddr returns the channel endpoint address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Service exposes the in-process authority operations the dashboard calls.
func (s *Server) Service() *domain.Service {
	if s == nil {
		return nil
	}
	return s.service
}

// Run creates and serves an authority server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC and HTTP servers until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("authority server listening at %v, channels at %v", s.listener.Addr(), s.httpListener.Addr())
	serveErr := make(chan error, 2)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()
	go func() {
		err := s.httpServer.Serve(s.httpListener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		httpErr := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		s.grpcServer.GracefulStop()
		for i := 0; i < 2; i++ {
			if err := <-serveErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve authority: %w", err)
			}
		}
		if httpErr != nil {
			return fmt.Errorf("shutdown channel endpoint: %w", httpErr)
		}
		return nil
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve authority: %w", err)
	}
}

// Close releases authority server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close authority store: %v", err)
		}
	}
}

func closeAll(listener net.Listener, httpListener net.Listener, store *authoritysqlite.Store) {
	_ = listener.Close()
	_ = httpListener.Close()
	_ = store.Close()
}

func openAuthorityStore(path string) (*authoritysqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := authoritysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open authority sqlite store: %w", err)
	}
	return store, nil
}
