package replication

import (
	"context"
	"fmt"
	"net"

	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport"
	"github.com/ValentinKolb/dInv/rpc/transport/base"
	"github.com/ValentinKolb/dInv/rpc/transport/secure"
)

// Peer is a backup peer: a TLS server that installs every replication stream it receives
type Peer struct {
	config    common.BackupPeerConfig
	transport transport.IServerTransport
}

// NewBackupPeer creates a backup peer. Streams are installed one at a time, concurrent senders wait.
func NewBackupPeer(config common.BackupPeerConfig) (*Peer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	connector, err := secure.NewTLSServerConnector(config.TLS, config.Socket)
	if err != nil {
		return nil, err
	}

	t := base.NewBaseServerTransport(connector, base.ServerTransportConfig{
		MaxConns: 4,
		Reject:   common.NewFailureReply(common.ReasonBusy).Payload,
	})
	t.RegisterHandler(NewReceiver(config).Handle)

	log.Infof("Created backup peer")
	log.Infof("%s", config.String())
	return &Peer{config: config, transport: t}, nil
}

// Listen binds the configured endpoint
func (p *Peer) Listen() (net.Addr, error) {
	return p.transport.Listen(p.config.Endpoint)
}

// Serve accepts replication streams until ctx is done. Listen must be called first.
func (p *Peer) Serve(ctx context.Context) error {
	return p.transport.Serve(ctx)
}
