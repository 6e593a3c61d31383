// Package base provides the accept loop shared by every server of the system (inventory server,
// backup peer), independent of the specific transport medium (tcp, tls). It serves as a base layer
// that is extended with protocol-specific connectors.
//
// The package focuses on:
//   - A bounded number of concurrently served connections (session slots)
//   - Explicit rejection of connections beyond that bound instead of silently dropping them
//   - Orderly shutdown: closing the listener and every open connection, then waiting for all handlers
//   - Small I/O helpers for the request/reply text protocol
//
// Key Components:
//
//   - serverTransport: accepts connections and runs the registered transport.ConnHandler in a
//     dedicated goroutine per connection. A buffered channel acts as counting semaphore for the
//     slots. Open connections are tracked in a concurrent map (xsync.MapOf) so that shutdown can
//     close connections whose handler is blocked in a read.
//
//   - Rejection: a connection that finds every slot taken still completes its handshake (so a TLS
//     client can read the answer), receives the configured rejection reply and is closed.
//
//   - RequestReader: frames requests on the byte stream with a protocol specific SplitFunc,
//     bounded by MaxRequestSize.
//
//   - ReadRequest / WriteReply / Handshake: deadline aware helpers for a single read or write.
//
// Thread Safety:
//
//	Serve must be called once. Handlers run concurrently, each owns its connection.
package base
