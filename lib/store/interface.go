package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Data Model
// --------------------------------------------------------------------------

// Item is a single inventory record.
// The ID is assigned by the store on insert and never changes afterward.
type Item struct {
	ID          int64
	Name        string
	Armor       int
	Health      int
	Mana        int
	SellPrice   int
	Damage      int
	CritChance  float64
	Range       int
	Description string
}

// Credential is a user entry of the store. It is read-only for the server.
type Credential struct {
	Username     string
	PasswordHash string
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IItemStore is the interface for the persistent item store.
// Implementations are not required to be thread-safe: the database worker is the only
// goroutine that ever touches a store.
type IItemStore interface {
	// Open opens the backing file. Opening an already open store is a no-op.
	Open() (err error)
	// Close closes the backing file so it is consistent on disk and can be copied.
	// Closing a closed store is a no-op.
	Close() (err error)
	// ValidateSchema checks that the items and users tables exist with the required columns.
	// A RetCSchemaInvalid error means the store is structurally unusable.
	ValidateSchema() (err error)
	// Path returns the path of the backing file.
	Path() string

	// PasswordHash returns the stored password hash of a user, RetCNotFound if the user does not exist.
	PasswordHash(username string) (hash string, err error)

	// GetAll returns every item ordered by id.
	GetAll() (items []Item, err error)
	// Get returns the item with the given id, RetCNotFound if there is none.
	Get(id int64) (item Item, err error)
	// Put inserts a new item. The ID of the given item is ignored, the assigned id is returned.
	Put(item Item) (id int64, err error)
	// Mod overwrites every mutable field of the item with the given ID, RetCNotFound if there is none.
	Mod(item Item) (err error)
	// Del deletes the item with the given id, RetCNotFound if there is none.
	Del(id int64) (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// ErrNotFound matches every *Error with code RetCNotFound via errors.Is
var ErrNotFound = &Error{Code: RetCNotFound}

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a store error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new store error with the given code and message wrapping err.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation (e.g. store closed).
	RetCNotFound                        // 3: No row with the given key.
	RetCSchemaInvalid                   // 4: Required tables or columns are missing.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCSchemaInvalid:
		return "SchemaInvalid"
	default:
		return "Unknown"
	}
}
