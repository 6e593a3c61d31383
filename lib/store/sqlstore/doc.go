// Package sqlstore implements store.IItemStore on a single SQLite file (pure Go driver, no CGO).
//
// The store holds exactly one connection and is meant to be owned by one goroutine.
// It validates but never migrates the schema: CreateSchema and AddUser exist for bootstrapping
// a new database (dinv init-db) and for tests.
package sqlstore
