// Package store defines the data model and the storage abstraction of the inventory server.
//
// The package focuses on:
//   - The Item and Credential records
//   - A single interface (IItemStore) over the persistent item store
//   - Unified error handling with typed return codes
//
// Key Components:
//
//   - IItemStore Interface: CRUD on items, credential lookup, schema validation and an explicit
//     Open/Close lifecycle. The lifecycle exists because replication copies the backing file:
//     the owner closes the store, streams the file and reopens it.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     (RetCNotFound, RetCSchemaInvalid, ...) and descriptive messages. Errors compare
//     by code with errors.Is, e.g. errors.Is(err, store.ErrNotFound).
//
// Thread Safety:
//
//	Implementations are NOT required to be thread-safe. The inventory server confines the
//	store to its database worker goroutine, so there is a single writer by construction.
//
// Implementations:
//
//   - SQLite Store (sqlstore): the production implementation backed by a single SQLite file.
//     Available in the "github.com/ValentinKolb/dInv/lib/store/sqlstore" package.
package store
