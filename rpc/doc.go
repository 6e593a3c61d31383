// Package rpc provides the network side of the inventory server: the request
// protocol, the connection layer, the server and a client library.
//
// The package is organized into several subpackages:
//
//   - common: The request and reply protocol (verbs, parsing, reply codes),
//     configuration structures, logging and metrics.
//
//   - transport: Connection layer abstractions with a tcp implementation, a TLS
//     implementation on top of it (secure) and a bounded accept loop (base).
//
//   - serializer: The newline / record separator text format of items.
//
//   - server: The inventory server with one session per client, the database
//     worker that owns the store and the replication timer.
//
//   - replication: Streams the database file to a backup peer and implements
//     the receiving backup peer.
//
//   - client: A client library for the inventory protocol.
package rpc
