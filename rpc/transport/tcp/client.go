package tcp

import (
	"context"
	"net"

	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct {
	socket common.SocketConf
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	if err := UpgradeConnection(conn, c.socket); err != nil {
		log.Warningf("failed to tune connection to %s: %v", endpoint, err)
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Client Connector Factory Method
// --------------------------------------------------------------------------

// NewTCPClientConnector creates a plain TCP client connector
func NewTCPClientConnector(socket common.SocketConf) transport.IClientConnector {
	return &clientConnector{socket: socket}
}
