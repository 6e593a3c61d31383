package sqlstore

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.IItemStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.db")
	require.NoError(t, CreateSchema(path))
	s := NewSQLStore(path)
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sword() store.Item {
	return store.Item{
		Name:        "Sword",
		Armor:       1,
		Health:      2,
		Mana:        3,
		SellPrice:   40,
		Damage:      12,
		CritChance:  0.25,
		Range:       2,
		Description: "A sharp blade",
	}
}

func TestOpenMissingFile(t *testing.T) {
	s := NewSQLStore(filepath.Join(t.TempDir(), "missing.db"))
	err := s.Open()
	require.Error(t, err)

	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCInternalError, storeErr.Code)
}

func TestValidateSchema(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := newTestStore(t)
		assert.NoError(t, s.ValidateSchema())
	})

	t.Run("missing tables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.db")
		db, err := openDB(path)
		require.NoError(t, err)
		_, err = db.Exec("CREATE TABLE other (x INTEGER)")
		require.NoError(t, err)
		require.NoError(t, db.Close())

		s := NewSQLStore(path)
		require.NoError(t, s.Open())
		defer s.Close()

		err = s.ValidateSchema()
		var storeErr *store.Error
		require.True(t, errors.As(err, &storeErr))
		assert.Equal(t, store.RetCSchemaInvalid, storeErr.Code)
	})

	t.Run("missing column", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "partial.db")
		db, err := openDB(path)
		require.NoError(t, err)
		_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT);
			CREATE TABLE users (username TEXT, password TEXT);`)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		s := NewSQLStore(path)
		require.NoError(t, s.Open())
		defer s.Close()

		err = s.ValidateSchema()
		var storeErr *store.Error
		require.True(t, errors.As(err, &storeErr))
		assert.Equal(t, store.RetCSchemaInvalid, storeErr.Code)
		assert.Contains(t, storeErr.Msg, "armorPoints")
	})
}

func TestCRUD(t *testing.T) {
	s := newTestStore(t)

	items, err := s.GetAll()
	require.NoError(t, err)
	assert.Empty(t, items)

	in := sword()
	in.ID = 999 // ignored on insert
	id, err := s.Put(in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := s.Get(id)
	require.NoError(t, err)
	in.ID = id
	assert.Equal(t, in, got)

	got.Name = "Great Sword"
	got.Damage = 30
	got.CritChance = 0.5
	require.NoError(t, s.Mod(got))

	modified, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, got, modified)

	require.NoError(t, s.Del(id))

	_, err = s.Get(id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIDsAreIncreasing(t *testing.T) {
	s := newTestStore(t)

	var last int64
	for i := 0; i < 20; i++ {
		id, err := s.Put(sword())
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}

	// ids of deleted rows are not handed out again
	require.NoError(t, s.Del(last))
	id, err := s.Put(sword())
	require.NoError(t, err)
	assert.Greater(t, id, last)

	items, err := s.GetAll()
	require.NoError(t, err)
	assert.Len(t, items, 20)
	for i := 1; i < len(items); i++ {
		assert.Less(t, items[i-1].ID, items[i].ID)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(42)
	assert.ErrorIs(t, err, store.ErrNotFound)

	missing := sword()
	missing.ID = 42
	assert.ErrorIs(t, s.Mod(missing), store.ErrNotFound)

	assert.ErrorIs(t, s.Del(42), store.ErrNotFound)
	assert.ErrorIs(t, s.Del(42), store.ErrNotFound)
}

func TestPasswordHash(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, AddUser(s.Path(), "esnyder", "$2a$10$hash"))

	hash, err := s.PasswordHash("esnyder")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$hash", hash)

	_, err = s.PasswordHash("nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCloseReopen(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Put(sword())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // no-op

	_, err = s.GetAll()
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCInvalidOperation, storeErr.Code)

	// the closed file is complete, a fresh handle sees the committed row
	db, err := sql.Open("sqlite", s.Path())
	require.NoError(t, err)
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
	require.NoError(t, db.Close())
	assert.Equal(t, 1, count)

	require.NoError(t, s.Open())
	require.NoError(t, s.Open()) // no-op

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Sword", got.Name)
}
