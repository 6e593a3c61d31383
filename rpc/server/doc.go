// Package server implements the inventory server: the acceptor, one session per client
// connection, the database worker that owns the SQLite store and the backup timer.
//
// All components communicate through mailboxes (see lib/queue). Sessions and the timer put
// requests on the single request mailbox; the worker consumes it in arrival order and answers on
// the reply mailbox carried by each request. Only the worker ever touches the store, so the
// database is never accessed concurrently.
//
// Key Components:
//
//   - Session: State machine of a client connection (CONNECTING, AUTHENTICATING, SERVING,
//     CLOSED). The first message must be a successful AUTH; every later request is forwarded to
//     the worker and its reply written back verbatim.
//
//   - Worker: Opens and validates the store, executes requests through an IServerAdapter, runs
//     SYNC via an IReplicator and answers TERM by shutting the server down. Requests still queued
//     when it stops are answered with FAILURE SHUTDOWN.
//
//   - Timer: Puts a fire-and-forget SYNC on the request mailbox every backup interval.
//
//   - NewIItemStoreAdapter: Translates parsed commands into store.IItemStore calls and formats
//     the replies.
//
//   - NewServer: Wires everything on top of the TLS transport and serves until the context is
//     done, a client sends TERM or the worker fails.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.TLS = common.TLSConf{CertFile: "cert.pem", KeyFile: "key.pem"}
//
//	replicator, err := replication.NewController(config.Backup)
//	if err != nil {
//	  log.Fatalf("Invalid backup configuration: %v", err)
//	}
//	s, err := server.NewServer(config, replicator)
//	if err != nil {
//	  log.Fatalf("Invalid configuration: %v", err)
//	}
//
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Sessions run concurrently, one goroutine each. The worker is the single consumer of the
//	request mailbox. Serve must be called only once.
package server
