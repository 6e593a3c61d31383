package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("transport")

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct {
	socket common.SocketConf
}

// tunedListener applies the socket configuration to every accepted connection
type tunedListener struct {
	net.Listener
	socket common.SocketConf
}

func (l *tunedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := UpgradeConnection(conn, l.socket); err != nil {
		// a connection with default socket options is still usable
		log.Warningf("failed to tune connection from %s: %v", conn.RemoteAddr(), err)
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(endpoint string) (net.Listener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp socket: %w", err)
	}
	return &tunedListener{Listener: listener, socket: c.socket}, nil
}

// UpgradeConnection applies performance optimizations to a TCP connection
// using configuration values from SocketConf
func UpgradeConnection(conn net.Conn, socket common.SocketConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(socket.TCPNoDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if socket.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(socket.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if socket.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(socket.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if socket.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}

		keepAlivePeriod := time.Duration(socket.TCPKeepAliveSec) * time.Second
		if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
	}

	// Set TCP linger option if configured (0 keeps the OS default)
	if socket.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(socket.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Server Connector Factory Method
// --------------------------------------------------------------------------

// NewTCPServerConnector creates a plain TCP server connector
func NewTCPServerConnector(socket common.SocketConf) transport.IServerConnector {
	return &serverConnector{socket: socket}
}
