package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dInv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("transport")

// -----------------------------------------------------------
// Configuration
// -----------------------------------------------------------

// ServerTransportConfig controls the accept loop
type ServerTransportConfig struct {
	// MaxConns bounds the number of connections served concurrently
	MaxConns int
	// HandshakeTimeout bounds the handshake of connections that are rejected
	HandshakeTimeout time.Duration
	// Reject is written to a connection that finds every slot taken, before it is closed.
	// Nil closes the connection without writing anything.
	Reject []byte
	// OnReject is called for every rejected connection (metrics)
	OnReject func()
	// DrainTimeout is the time handlers get to finish after shutdown started before their
	// connections are closed
	DrainTimeout time.Duration
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the accept loop independent of the specific transport medium (tcp, tls)
type serverTransport struct {
	connector transport.IServerConnector
	config    ServerTransportConfig
	handler   transport.ConnHandler
	listener  net.Listener

	// slots is a counting semaphore, one token per served connection
	slots chan struct{}
	// conns holds every open connection so shutdown can unblock handlers stuck in a read
	conns  *xsync.MapOf[uint64, net.Conn]
	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, tls)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new accept loop for the given connector
func NewBaseServerTransport(connector transport.IServerConnector, config ServerTransportConfig) transport.IServerTransport {
	if config.MaxConns < 1 {
		config.MaxConns = 1
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 2 * time.Second
	}
	return &serverTransport{
		connector: connector,
		config:    config,
		slots:     make(chan struct{}, config.MaxConns),
		conns:     xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ConnHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(endpoint string) (net.Addr, error) {
	listener, err := t.connector.Listen(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener
	return listener.Addr(), nil
}

func (t *serverTransport) Serve(ctx context.Context) error {
	if t.listener == nil {
		return errors.New("serve called before listen")
	}
	if t.handler == nil {
		return errors.New("no handler registered")
	}

	log.Infof("Starting %s server on %s with %d session slots",
		t.connector.GetName(), t.listener.Addr(), t.config.MaxConns)

	// closing the listener is the only way to unblock Accept.
	// Pending reads are interrupted, pending writes may still finish.
	stop := context.AfterFunc(ctx, func() {
		_ = t.listener.Close()
		t.conns.Range(func(_ uint64, conn net.Conn) bool {
			_ = conn.SetReadDeadline(time.Now())
			return true
		})
	})
	defer stop()

	var acceptErr error
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warningf("Accept error: %v", err)
				continue
			}
			acceptErr = fmt.Errorf("accept failed: %w", err)
			break
		}

		select {
		case t.slots <- struct{}{}:
			t.serve(ctx, conn)
		default:
			t.reject(conn)
		}
	}

	_ = t.listener.Close()
	t.drain()
	log.Infof("%s server on %s stopped", t.connector.GetName(), t.listener.Addr())
	return acceptErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serve runs the handler for conn in its own goroutine. The slot is already taken.
func (t *serverTransport) serve(ctx context.Context, conn net.Conn) {
	id := t.nextID.Add(1)
	t.conns.Store(id, conn)

	// the connection may have been accepted right before shutdown interrupted all registered conns
	if ctx.Err() != nil {
		_ = conn.SetReadDeadline(time.Now())
	}

	t.wg.Add(1)
	go func() {
		defer func() {
			t.conns.Delete(id)
			_ = conn.Close()
			<-t.slots // Release semaphore slot
			t.wg.Done()
		}()
		t.handler(ctx, conn)
	}()
}

// drain waits for all handlers. Connections still open after the drain timeout are closed.
func (t *serverTransport) drain() {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(t.config.DrainTimeout):
	}

	t.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	<-done
}

// reject turns a connection away because every slot is taken
func (t *serverTransport) reject(conn net.Conn) {
	log.Warningf("Rejecting connection from %s: all %d session slots are taken", conn.RemoteAddr(), t.config.MaxConns)
	if t.config.OnReject != nil {
		t.config.OnReject()
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), t.config.HandshakeTimeout)
		defer cancel()

		if err := Handshake(ctx, conn); err != nil {
			log.Debugf("Handshake of rejected connection failed: %v", err)
			return
		}
		if t.config.Reject != nil {
			if err := WriteReply(conn, t.config.Reject, t.config.HandshakeTimeout); err != nil {
				log.Debugf("Failed to write rejection: %v", err)
				return
			}
		}

		// a request the client sent meanwhile must not turn the close into a reset that discards the rejection
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
		_ = conn.SetReadDeadline(time.Now().Add(t.config.HandshakeTimeout))
		_, _ = io.Copy(io.Discard, io.LimitReader(conn, MaxRequestSize))
	}()
}
