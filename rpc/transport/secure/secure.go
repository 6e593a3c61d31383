package secure

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport"
	"github.com/ValentinKolb/dInv/rpc/transport/tcp"
)

// serverConnector implements the IServerConnector interface with TLS on top of the tcp connector
type serverConnector struct {
	inner  transport.IServerConnector
	config *tls.Config
}

// clientConnector implements the IClientConnector interface with TLS on top of the tcp connector
type clientConnector struct {
	inner  transport.IClientConnector
	config *tls.Config
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerConnector / transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tls"
}

// Listen returns a listener whose connections are *tls.Conn. The handshake runs on first I/O or
// when the acceptor calls HandshakeContext.
func (c *serverConnector) Listen(endpoint string) (net.Listener, error) {
	listener, err := c.inner.Listen(endpoint)
	if err != nil {
		return nil, err
	}
	return tls.NewListener(listener, c.config), nil
}

func (c *clientConnector) GetName() string {
	return "tls"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	raw, err := c.inner.Connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	config := c.config
	if config.ServerName == "" && !config.InsecureSkipVerify {
		host, _, err := net.SplitHostPort(endpoint)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		config = config.Clone()
		config.ServerName = host
	}

	conn := tls.Client(raw, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake with %s failed: %w", endpoint, err)
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Connector Factory Methods
// --------------------------------------------------------------------------

// NewTLSServerConnector creates a TLS server connector from certificate files
func NewTLSServerConnector(conf common.TLSConf, socket common.SocketConf) (transport.IServerConnector, error) {
	config, err := LoadServerConfig(conf)
	if err != nil {
		return nil, err
	}
	return &serverConnector{inner: tcp.NewTCPServerConnector(socket), config: config}, nil
}

// NewTLSClientConnector creates a TLS client connector from certificate files
func NewTLSClientConnector(conf common.TLSConf, socket common.SocketConf) (transport.IClientConnector, error) {
	config, err := LoadClientConfig(conf)
	if err != nil {
		return nil, err
	}
	return &clientConnector{inner: tcp.NewTCPClientConnector(socket), config: config}, nil
}

// --------------------------------------------------------------------------
// Certificate loading
// --------------------------------------------------------------------------

// LoadServerConfig builds the server side tls.Config. If CAFile is set, clients must present
// a certificate signed by it.
func LoadServerConfig(conf common.TLSConf) (*tls.Config, error) {
	if conf.CertFile == "" || conf.KeyFile == "" {
		return nil, fmt.Errorf("tls certificate and key file are required")
	}

	cert, err := tls.LoadX509KeyPair(conf.CertFile, conf.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if conf.CAFile != "" {
		pool, err := loadPool(conf.CAFile)
		if err != nil {
			return nil, err
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return config, nil
}

// LoadClientConfig builds the client side tls.Config. CAFile replaces the system roots,
// CertFile/KeyFile present a client certificate.
func LoadClientConfig(conf common.TLSConf) (*tls.Config, error) {
	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         conf.ServerName,
		InsecureSkipVerify: conf.InsecureSkipVerify,
	}

	if conf.CAFile != "" {
		pool, err := loadPool(conf.CAFile)
		if err != nil {
			return nil, err
		}
		config.RootCAs = pool
	}

	if conf.CertFile != "" || conf.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(conf.CertFile, conf.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}
	return config, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
