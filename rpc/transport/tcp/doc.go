// Package tcp implements TCP socket-based connectors for the transport package.
//
// Every accepted or dialed connection is tuned with the configured SocketConf
// (Nagle's algorithm, keep-alive, linger, buffer sizes). The tcp connectors carry
// no encryption; the inventory protocol only ever runs on top of the secure package,
// which wraps these connectors with TLS.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of transport.IClientConnector
//
//   - serverConnector: TCP-specific implementation of transport.IServerConnector
//
//   - UpgradeConnection: applies a SocketConf to an established connection
package tcp
