package transport

import (
	"context"
	"net"
)

// --------------------------------------------------------------------------
// Connectors (transport specific)
// --------------------------------------------------------------------------

// IServerConnector creates listeners for a specific transport type
type IServerConnector interface {
	// Listen creates a listener on endpoint. Accepted connections are ready for the application protocol
	// once their handshake (if any) completed.
	Listen(endpoint string) (net.Listener, error)
	// GetName returns the name of the transport type (e.g., "tcp", "tls")
	GetName() string
}

// IClientConnector establishes outbound connections for a specific transport type
type IClientConnector interface {
	// Connect dials endpoint and completes the handshake (if any) before returning
	Connect(ctx context.Context, endpoint string) (net.Conn, error)
	// GetName returns the name of the transport type (e.g., "tcp", "tls")
	GetName() string
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ConnHandler serves a single accepted connection. It owns conn and must close it before returning.
// ctx is canceled when the transport shuts down.
type ConnHandler func(ctx context.Context, conn net.Conn)

// IServerTransport accepts connections and hands each one to the registered handler
type IServerTransport interface {
	// RegisterHandler registers the handler called (in its own goroutine) for every accepted connection
	RegisterHandler(handler ConnHandler)
	// Listen binds the endpoint and returns the bound address
	Listen(endpoint string) (net.Addr, error)
	// Serve accepts connections until ctx is done, then closes the listener and every open connection
	// and waits for all handlers to return
	Serve(ctx context.Context) error
}
