// Package replication implements the backup sub-protocol of the inventory server.
//
// The sender opens a TLS connection to the backup peer, writes the framing line
//
//	REPLICATE <pre-shared key>\n
//
// followed by the raw bytes of the closed store file and half-closes the connection. The peer
// answers SUCCESS once the copy is durable, or FAILURE <reason> and closes.
//
// Key Components:
//
//   - Controller: The sending side, used by the database worker for SYNC.
//   - Receiver: The receiving side. It checks the pre-shared key in constant time, writes the stream
//     to a temporary file next to the target, validates it as a store and renames it over the target.
//   - Peer: A TLS server running a Receiver for every connection (dinv backup).
package replication
