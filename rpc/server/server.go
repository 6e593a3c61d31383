package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dInv/lib/auth"
	"github.com/ValentinKolb/dInv/lib/queue"
	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/lib/store/sqlstore"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport"
	"github.com/ValentinKolb/dInv/rpc/transport/base"
	"github.com/ValentinKolb/dInv/rpc/transport/secure"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetLogger("server")

// Server wires the acceptor, the client sessions, the database worker and the backup timer
// around a single request mailbox.
type Server struct {
	config    common.ServerConfig
	requests  *queue.Mailbox[common.Request]
	transport transport.IServerTransport
	worker    *Worker
	timer     *Timer
	addr      net.Addr
}

// NewServer creates an inventory server. The store is the SQLite file of the configuration,
// passwords are bcrypt hashes. replicator may be nil, SYNC then always fails.
//
// Usage:
//
//	replicator, err := replication.NewController(config.Backup)
//	if err != nil {
//		return err
//	}
//	s, err := server.NewServer(config, replicator)
//	if err != nil {
//		return err
//	}
//	return s.Serve(ctx)
func NewServer(config common.ServerConfig, replicator IReplicator) (*Server, error) {
	return NewServerWithStore(config, sqlstore.NewSQLStore(config.DatabasePath), auth.NewBcryptVerifier(), replicator)
}

// NewServerWithStore creates an inventory server on an arbitrary store and password verifier
func NewServerWithStore(config common.ServerConfig, s store.IItemStore, verifier auth.IVerifier, replicator IReplicator) (*Server, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	connector, err := secure.NewTLSServerConnector(config.TLS, config.Socket)
	if err != nil {
		return nil, err
	}

	requests := queue.NewMailbox[common.Request]()
	common.RegisterQueueLength(requests.Len)

	t := base.NewBaseServerTransport(connector, base.ServerTransportConfig{
		MaxConns:         config.MaxSessions,
		HandshakeTimeout: config.Timeout(),
		Reject:           common.NewFailureReply(common.ReasonBusy).Payload,
		OnReject:         common.SessionRejected,
	})

	srv := &Server{
		config:    config,
		requests:  requests,
		transport: t,
		worker:    NewWorker(s, NewIItemStoreAdapter(verifier), replicator, requests),
		timer:     NewTimer(config.BackupInterval, requests),
	}

	idle := time.Duration(config.IdleTimeoutSecond) * time.Second
	t.RegisterHandler(func(ctx context.Context, conn net.Conn) {
		NewSession(conn, requests, config.Timeout(), idle).Run(ctx)
	})

	log.Infof("Created inventory server")
	log.Infof("%s", config.String())
	return srv, nil
}

// Listen binds the configured endpoint. Serve calls it if it was not called before.
func (s *Server) Listen() (net.Addr, error) {
	if s.addr != nil {
		return s.addr, nil
	}
	addr, err := s.transport.Listen(s.config.Endpoint)
	if err != nil {
		return nil, err
	}
	s.addr = addr
	return addr, nil
}

// Serve runs the server until ctx is done, a client sends TERM or a fatal error occurs.
// On return every session is closed, every queued request was answered and the store is closed.
func (s *Server) Serve(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.worker.OnTerm(cancel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// the worker ending for any reason ends the server
		defer cancel()
		return s.worker.Run(gctx)
	})
	g.Go(func() error {
		return s.timer.Run(gctx)
	})
	g.Go(func() error {
		return s.transport.Serve(gctx)
	})
	if s.config.MetricsEndpoint != "" {
		g.Go(func() error {
			return serveMetrics(gctx, s.config.MetricsEndpoint)
		})
	}

	err := g.Wait()
	log.Infof("inventory server stopped")
	return err
}

// serveMetrics exposes /metrics in Prometheus text format until ctx is done
func serveMetrics(ctx context.Context, endpoint string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		common.WriteMetrics(w)
	})
	srv := &http.Server{Addr: endpoint, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Infof("Serving metrics on http://%s/metrics", endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics endpoint failed: %w", err)
	}
	return nil
}
