// Package app wires the gateway: it boots the wallet session, then serves
// the JSON API over HTTP and a gRPC health endpoint until the context ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	platformgrpc "github.com/louisbranch/tileduel/internal/platform/grpc"
	"github.com/louisbranch/tileduel/internal/platform/timeouts"
	httpapi "github.com/louisbranch/tileduel/internal/services/gateway/api/http"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore/sqlite"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
)

// Config configures the gateway server.
type Config struct {
	HTTPAddr string
	// GRPCPort is the loopback port of the health server. Zero picks one.
	GRPCPort int
	Session  session.Config
	Profile  contract.Profile
	Gas      uint64
}

// StoreAt opens the SQLite key store at path. An empty path keeps keys in
// memory for the life of the process.
func StoreAt(path string) session.StoreOpener {
	return func(ctx context.Context) (keystore.Store, error) {
		if path == "" {
			return keystore.NewMemory(), nil
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Server hosts the gateway API and health endpoint.
type Server struct {
	manager      *session.Manager
	httpListener net.Listener
	httpServer   *http.Server
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
}

// New initializes the session and binds both listeners. A session that
// cannot initialize fails the boot.
func New(ctx context.Context, cfg Config, openStore session.StoreOpener) (*Server, error) {
	manager := session.NewManager(cfg.Session, openStore)
	if err := manager.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize session: %w", err)
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	grpcAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.GRPCPort))
	grpcListener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		_ = httpListener.Close()
		_ = manager.Close()
		return nil, fmt.Errorf("listen on %s: %w", grpcAddr, err)
	}

	facade := contract.New(manager, cfg.Profile, cfg.Gas)
	handler := httpapi.NewHandler(manager, facade)

	grpcServer, healthServer := platformgrpc.NewHealthServer()

	return &Server{
		manager:      manager,
		httpListener: httpListener,
		httpServer: &http.Server{
			Handler:           handler.Routes(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		grpcListener: grpcListener,
		grpcServer:   grpcServer,
		health:       healthServer,
	}, nil
}

// Run boots and serves the gateway until ctx ends.
func Run(ctx context.Context, cfg Config, openStore session.StoreOpener) error {
	server, err := New(ctx, cfg, openStore)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// HTTPAddr returns the bound API address.
func (s *Server) HTTPAddr() string {
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound health server address.
func (s *Server) GRPCAddr() string {
	return s.grpcListener.Addr().String()
}

// Serve blocks until ctx ends or a listener fails, then drains both servers
// and closes the key store.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("api listening at %v", s.httpListener.Addr())
	log.Printf("health listening at %v", s.grpcListener.Addr())

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()
	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- s.grpcServer.Serve(s.grpcListener)
	}()
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-httpErr:
		serveErr = handleHTTPErr(err)
		httpErr = nil
	case err := <-grpcErr:
		serveErr = handleGRPCErr(err)
		grpcErr = nil
	}

	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	s.grpcServer.GracefulStop()
	if httpErr != nil {
		serveErr = errors.Join(serveErr, handleHTTPErr(<-httpErr))
	}
	if grpcErr != nil {
		serveErr = errors.Join(serveErr, handleGRPCErr(<-grpcErr))
	}

	if err := s.manager.Close(); err != nil {
		log.Printf("close key store: %v", err)
	}
	log.Printf("gateway stopped")
	return serveErr
}

func handleHTTPErr(err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve HTTP: %w", err)
}

func handleGRPCErr(err error) error {
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}
