// Package transport defines the interfaces of the connection layer used by the inventory
// server, the backup peer and the client.
//
// The package focuses on:
//   - Separating the transport type (plain tcp, tls) from the accept loop
//   - Connection oriented serving: one handler per accepted connection
//
// Key Components:
//
//   - IServerConnector / IClientConnector: transport specific listen and dial operations.
//     Implemented by the tcp package (socket tuning) and the secure package (TLS on top of tcp).
//
//   - IServerTransport: accept loop with a bounded number of concurrently served
//     connections, implemented by the base package.
//
//   - ConnHandler: Function type called for every accepted connection.
package transport
