// Package cmd implements the command-line interface of the dInv inventory
// server. It provides commands for running the server and the backup peer and
// for working with a running server as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the inventory server
//   - backup: Starts the backup peer that receives replications
//   - item: Client commands for inventory operations (get, put, mod, del, sync, term, perf)
//   - admin: Local setup commands (init-db, cert)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dinv -help for a list of all commands.
package cmd
