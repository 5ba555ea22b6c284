package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSQLiteStore(t *testing.T) BookStorage {
	t.Helper()
	testConfig := &Config{
		SQLite: SQLiteConfig{
			FilePath:    filepath.Join(t.TempDir(), "tmp.sqlite.db"),
			BusyTimeout: 5 * time.Second,
		},
	}
	db, err := GetSQLiteClient(testConfig)
	require.NoError(t, err, "failed in creating a test sqlite store")
	store := NewSQLiteBookStorage(zap.NewNop(), db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runBookStorageTests(t, newTestSQLiteStore(t))
}

// TestSQLiteStore_ForeignKeys ensures entries cannot reference a missing book.
func TestSQLiteStore_ForeignKeys(t *testing.T) {
	store := newTestSQLiteStore(t)
	err := store.AddAuthor(context.Background(), "9789999999999", "Nobody")
	assert.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_go\\`, escapeLike(`100% _go\`))
}

// TestSQLiteStore_SearchKeysMigration ensures a books table created without
// the folded search columns gets them filled for its existing rows.
func TestSQLiteStore_SearchKeysMigration(t *testing.T) {
	testConfig := &Config{
		SQLite: SQLiteConfig{
			FilePath:    filepath.Join(t.TempDir(), "old.sqlite.db"),
			BusyTimeout: 5 * time.Second,
		},
	}
	old, err := sql.Open("sqlite", "file:"+testConfig.SQLite.FilePath)
	require.NoError(t, err)
	_, err = old.Exec(`CREATE TABLE books (
        isbn        TEXT PRIMARY KEY,
        title       TEXT NOT NULL,
        subtitle    TEXT NOT NULL DEFAULT '',
        description TEXT NOT NULL DEFAULT '',
        image_url   TEXT NOT NULL DEFAULT '',
        created_at  TEXT NOT NULL DEFAULT '',
        updated_at  TEXT NOT NULL DEFAULT ''
    )`)
	require.NoError(t, err)
	_, err = old.Exec(`INSERT INTO books (isbn, title) VALUES (?, ?)`, "9782070360536", "Études de style")
	require.NoError(t, err)
	require.NoError(t, old.Close())

	db, err := GetSQLiteClient(testConfig)
	require.NoError(t, err)
	store := NewSQLiteBookStorage(zap.NewNop(), db)
	defer store.Close()

	books, err := store.Search(context.Background(), "études")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Études de style", books[0].Title)

	// a second open finds the columns and leaves the rows alone
	require.NoError(t, migrateSearchKeys(context.Background(), db))
}
