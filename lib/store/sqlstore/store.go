package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	_ "modernc.org/sqlite"
)

var log = logger.GetLogger("store")

// requiredColumns lists the columns the server depends on, per table.
var requiredColumns = map[string][]string{
	"items": {"id", "name", "armorPoints", "healthPoints", "manaPoints", "sellPrice", "damage", "critChance", "range", "description"},
	"users": {"username", "password"},
}

// Schema is the DDL used to bootstrap a new item database.
// The server itself never runs it, it only validates an existing file.
const Schema = `
CREATE TABLE IF NOT EXISTS items (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT    NOT NULL DEFAULT '',
	armorPoints  INTEGER NOT NULL DEFAULT 0,
	healthPoints INTEGER NOT NULL DEFAULT 0,
	manaPoints   INTEGER NOT NULL DEFAULT 0,
	sellPrice    INTEGER NOT NULL DEFAULT 0,
	damage       INTEGER NOT NULL DEFAULT 0,
	critChance   REAL    NOT NULL DEFAULT 0,
	"range"      INTEGER NOT NULL DEFAULT 0,
	description  TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL
);
`

const itemColumns = `id, name, armorPoints, healthPoints, manaPoints, sellPrice, damage, critChance, "range", description`

type storeImpl struct {
	path string
	db   *sql.DB
}

// NewSQLStore creates a store for the SQLite file at path. The file is not opened until Open is called.
func NewSQLStore(path string) store.IItemStore {
	return &storeImpl{path: path}
}

// CreateSchema opens the file at path (creating it and its parent directory if needed),
// creates the items and users tables if they do not exist and closes the file again.
func CreateSchema(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// AddUser inserts or replaces a user with an already hashed password.
func AddUser(path, username, passwordHash string) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO users (username, password) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET password = excluded.password`, username, passwordHash)
	if err != nil {
		return fmt.Errorf("adding user %q: %w", username, err)
	}
	return nil
}

// openDB opens a single connection pool on the file.
// The rollback journal keeps every committed transaction inside the main file, so a closed
// store can be copied byte for byte.
func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(DELETE)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Path() string {
	return s.path
}

func (s *storeImpl) Open() error {
	if s.db != nil {
		return nil
	}

	// sqlite would silently create an empty file, a missing store is a deployment error
	if _, err := os.Stat(s.path); err != nil {
		return store.WrapError(store.RetCInternalError, "database file not accessible", err)
	}

	db, err := openDB(s.path)
	if err != nil {
		return store.WrapError(store.RetCInternalError, "failed to open database", err)
	}
	s.db = db
	log.Debugf("opened %s", s.path)
	return nil
}

func (s *storeImpl) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return store.WrapError(store.RetCInternalError, "failed to close database", err)
	}
	log.Debugf("closed %s", s.path)
	return nil
}

func (s *storeImpl) ValidateSchema() error {
	if s.db == nil {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	for table, columns := range requiredColumns {
		rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return store.WrapError(store.RetCInternalError, "failed to read table info", err)
		}

		present := make(map[string]bool)
		for rows.Next() {
			var (
				cid       int
				name      string
				ctype     string
				notNull   int
				dfltValue sql.NullString
				pk        int
			)
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
				rows.Close()
				return store.WrapError(store.RetCInternalError, "failed to scan table info", err)
			}
			present[strings.ToLower(name)] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return store.WrapError(store.RetCInternalError, "failed to read table info", err)
		}

		if len(present) == 0 {
			return store.NewError(store.RetCSchemaInvalid, fmt.Sprintf("table %q does not exist", table))
		}
		for _, column := range columns {
			if !present[strings.ToLower(column)] {
				return store.NewError(store.RetCSchemaInvalid, fmt.Sprintf("table %q has no column %q", table, column))
			}
		}
	}
	return nil
}

func (s *storeImpl) PasswordHash(username string) (string, error) {
	if s.db == nil {
		return "", store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	var hash string
	err := s.db.QueryRow("SELECT password FROM users WHERE username = ?", username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NewError(store.RetCNotFound, fmt.Sprintf("user %q does not exist", username))
	}
	if err != nil {
		return "", store.WrapError(store.RetCInternalError, "failed to query user", err)
	}
	return hash, nil
}

func (s *storeImpl) GetAll() ([]store.Item, error) {
	if s.db == nil {
		return nil, store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	rows, err := s.db.Query("SELECT " + itemColumns + " FROM items ORDER BY id")
	if err != nil {
		return nil, store.WrapError(store.RetCInternalError, "failed to query items", err)
	}
	defer rows.Close()

	var items []store.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, store.WrapError(store.RetCInternalError, "failed to scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError(store.RetCInternalError, "failed to read items", err)
	}
	return items, nil
}

func (s *storeImpl) Get(id int64) (store.Item, error) {
	if s.db == nil {
		return store.Item{}, store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	item, err := scanItem(s.db.QueryRow("SELECT "+itemColumns+" FROM items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Item{}, store.NewError(store.RetCNotFound, fmt.Sprintf("item %d does not exist", id))
	}
	if err != nil {
		return store.Item{}, store.WrapError(store.RetCInternalError, "failed to query item", err)
	}
	return item, nil
}

func (s *storeImpl) Put(item store.Item) (int64, error) {
	if s.db == nil {
		return 0, store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	res, err := s.db.Exec(`INSERT INTO items (name, armorPoints, healthPoints, manaPoints, sellPrice, damage, critChance, "range", description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.Armor, item.Health, item.Mana, item.SellPrice, item.Damage, item.CritChance, item.Range, item.Description)
	if err != nil {
		return 0, store.WrapError(store.RetCInternalError, "failed to insert item", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, store.WrapError(store.RetCInternalError, "failed to read inserted id", err)
	}
	return id, nil
}

func (s *storeImpl) Mod(item store.Item) error {
	if s.db == nil {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	res, err := s.db.Exec(`UPDATE items SET name = ?, armorPoints = ?, healthPoints = ?, manaPoints = ?, sellPrice = ?,
		damage = ?, critChance = ?, "range" = ?, description = ? WHERE id = ?`,
		item.Name, item.Armor, item.Health, item.Mana, item.SellPrice, item.Damage, item.CritChance, item.Range, item.Description, item.ID)
	if err != nil {
		return store.WrapError(store.RetCInternalError, "failed to update item", err)
	}
	return expectOneRow(res, item.ID)
}

func (s *storeImpl) Del(id int64) error {
	if s.db == nil {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	res, err := s.db.Exec("DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return store.WrapError(store.RetCInternalError, "failed to delete item", err)
	}
	return expectOneRow(res, id)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (store.Item, error) {
	var (
		item        store.Item
		name        sql.NullString
		description sql.NullString
	)
	err := row.Scan(&item.ID, &name, &item.Armor, &item.Health, &item.Mana, &item.SellPrice,
		&item.Damage, &item.CritChance, &item.Range, &description)
	item.Name = name.String
	item.Description = description.String
	return item, err
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return store.WrapError(store.RetCInternalError, "failed to read affected rows", err)
	}
	if n == 0 {
		return store.NewError(store.RetCNotFound, fmt.Sprintf("item %d does not exist", id))
	}
	return nil
}
