// Package common provides the protocol types, configuration structures and utilities
// shared by the inventory server, the backup peer and the client.
//
// The package focuses on:
//   - Command parsing for the text protocol (one tagged Command per request)
//   - Reply construction, including the record framing of GET replies
//   - The Request message exchanged between sessions, the backup timer and the database worker
//   - Configuration structures for server, backup peer and client
//   - Custom logging implementation integrated with Dragonboat's logger facade
//   - Server metrics
//
// Key Components:
//
//   - Command / ParseCommand: the single parse step of the protocol. Every request yields a
//     Command; unknown verbs are CmdTUnknown and known verbs with bad arguments carry Err, so the
//     worker can always answer with an explicit FAILURE.
//
//   - Reply: the exact bytes written back to the client. Replies that carry records always end
//     with the group separator, so a reader knows when a fragmented response is complete.
//
//   - Request: a parsed Command plus the reply mailbox of the session that sent it. Requests
//     without a reply mailbox (timer-issued SYNC) are fire-and-forget.
//
//   - ServerConfig, BackupPeerConfig, ClientConfig: resolved configuration values with
//     validation and a human readable String().
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
