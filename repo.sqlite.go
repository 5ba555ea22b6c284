package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS books (
    isbn        TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    subtitle    TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    image_url   TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL DEFAULT '',
    title_key    TEXT NOT NULL DEFAULT '',
    subtitle_key TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS authors (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    isbn   TEXT NOT NULL REFERENCES books(isbn) ON DELETE CASCADE,
    author TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    isbn     TEXT NOT NULL REFERENCES books(isbn) ON DELETE CASCADE,
    category TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_authors_isbn ON authors(isbn);
CREATE INDEX IF NOT EXISTS idx_categories_isbn ON categories(isbn);
`

// searchKeyColumns are folded in Go with strings.ToLower so that the search
// matches the other stores for non ascii text, which LIKE does not fold.
var searchKeyColumns = []string{"title_key", "subtitle_key"}

type sqliteBookStorage struct {
	logger *zap.Logger
	db     *sql.DB
}

// GetSQLiteClient opens the sqlite database file and applies the schema.
func GetSQLiteClient(config *Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(config.SQLite.FilePath), 0o700); err != nil {
		return nil, fmt.Errorf("create database folder: %w", err)
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		config.SQLite.FilePath, config.SQLite.BusyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err = db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err = migrateSearchKeys(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate search keys: %w", err)
	}
	return db, nil
}

// migrateSearchKeys adds the folded search columns to a books table created
// without them and fills them for the existing rows.
func migrateSearchKeys(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('books')`)
	if err != nil {
		return err
	}
	present := map[string]bool{}
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		present[name] = true
	}
	if err = rows.Close(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	added := false
	for _, column := range searchKeyColumns {
		if present[column] {
			continue
		}
		if _, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE books ADD COLUMN %s TEXT NOT NULL DEFAULT ''`, column)); err != nil {
			return fmt.Errorf("add column %s: %w", column, err)
		}
		added = true
	}
	if !added {
		return nil
	}

	keys, err := tx.QueryContext(ctx, `SELECT isbn, title, subtitle FROM books`)
	if err != nil {
		return err
	}
	var books []Book
	for keys.Next() {
		var book Book
		if err = keys.Scan(&book.ISBN, &book.Title, &book.Subtitle); err != nil {
			keys.Close()
			return err
		}
		books = append(books, book)
	}
	if err = keys.Close(); err != nil {
		return err
	}
	for _, book := range books {
		if _, err = tx.ExecContext(ctx, `UPDATE books SET title_key = ?, subtitle_key = ? WHERE isbn = ?`,
			strings.ToLower(book.Title), strings.ToLower(book.Subtitle), book.ISBN); err != nil {
			return fmt.Errorf("fill search keys of %s: %w", book.ISBN, err)
		}
	}
	return tx.Commit()
}

// NewSQLiteBookStorage provides an instance of sqlite-based book storage.
func NewSQLiteBookStorage(logger *zap.Logger, db *sql.DB) BookStorage {
	return &sqliteBookStorage{logger: logger, db: db}
}

// Close closes the underlying database connection.
func (ss *sqliteBookStorage) Close() error {
	return ss.db.Close()
}

// Exists reports whether a book record is stored under the isbn.
func (ss *sqliteBookStorage) Exists(ctx context.Context, isbn string) (bool, error) {
	var n int
	err := ss.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM books WHERE isbn = ?`, isbn).Scan(&n)
	return n > 0, err
}

// GetOne retrieves a book record with its authors and categories.
func (ss *sqliteBookStorage) GetOne(ctx context.Context, isbn string) (Book, error) {
	var book Book
	err := ss.db.QueryRowContext(ctx,
		`SELECT isbn, title, subtitle, description, image_url, created_at, updated_at
         FROM books WHERE isbn = ?`, isbn,
	).Scan(&book.ISBN, &book.Title, &book.Subtitle, &book.Description, &book.ImageURL, &book.CreatedAt, &book.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, err
	}
	if err = ss.loadEntries(ctx, &book); err != nil {
		return Book{}, err
	}
	return book, nil
}

// Search lists the books whose title or subtitle contains the query.
func (ss *sqliteBookStorage) Search(ctx context.Context, query string) ([]Book, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := ss.db.QueryContext(ctx,
		`SELECT isbn, title, subtitle, description, image_url, created_at, updated_at
         FROM books
         WHERE title_key LIKE ? ESCAPE '\' OR subtitle_key LIKE ? ESCAPE '\'
         ORDER BY title_key, isbn`, pattern, pattern,
	)
	if err != nil {
		return nil, err
	}
	books := []Book{}
	for rows.Next() {
		var book Book
		if err = rows.Scan(&book.ISBN, &book.Title, &book.Subtitle, &book.Description, &book.ImageURL, &book.CreatedAt, &book.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		books = append(books, book)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	for i := range books {
		if err = ss.loadEntries(ctx, &books[i]); err != nil {
			return nil, err
		}
	}
	return books, nil
}

// Upsert replaces the book record or inserts it when it does not exist.
func (ss *sqliteBookStorage) Upsert(ctx context.Context, book Book) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO books (isbn, title, subtitle, description, image_url, created_at, updated_at, title_key, subtitle_key)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(isbn) DO UPDATE SET
            title = excluded.title,
            subtitle = excluded.subtitle,
            description = excluded.description,
            image_url = excluded.image_url,
            updated_at = excluded.updated_at,
            title_key = excluded.title_key,
            subtitle_key = excluded.subtitle_key`,
		book.ISBN, book.Title, book.Subtitle, book.Description, book.ImageURL, book.CreatedAt, book.UpdatedAt,
		strings.ToLower(book.Title), strings.ToLower(book.Subtitle),
	)
	return err
}

// AddAuthor appends one author entry to the book.
func (ss *sqliteBookStorage) AddAuthor(ctx context.Context, isbn, author string) error {
	_, err := ss.db.ExecContext(ctx, `INSERT INTO authors (isbn, author) VALUES (?, ?)`, isbn, author)
	return err
}

// AddCategory appends one category entry to the book.
func (ss *sqliteBookStorage) AddCategory(ctx context.Context, isbn, category string) error {
	_, err := ss.db.ExecContext(ctx, `INSERT INTO categories (isbn, category) VALUES (?, ?)`, isbn, category)
	return err
}

// Delete removes the book record. Authors and categories rows follow
// through the foreign keys cascade. Deleting a missing book is not an error.
func (ss *sqliteBookStorage) Delete(ctx context.Context, isbn string) error {
	_, err := ss.db.ExecContext(ctx, `DELETE FROM books WHERE isbn = ?`, isbn)
	return err
}

func (ss *sqliteBookStorage) loadEntries(ctx context.Context, book *Book) error {
	var err error
	book.Authors, err = ss.listColumn(ctx, `SELECT author FROM authors WHERE isbn = ? ORDER BY id`, book.ISBN)
	if err != nil {
		return err
	}
	book.Categories, err = ss.listColumn(ctx, `SELECT category FROM categories WHERE isbn = ? ORDER BY id`, book.ISBN)
	return err
}

func (ss *sqliteBookStorage) listColumn(ctx context.Context, query, isbn string) ([]string, error) {
	rows, err := ss.db.QueryContext(ctx, query, isbn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := []string{}
	for rows.Next() {
		var v string
		if err = rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// escapeLike escapes the LIKE wildcards so the query is matched literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
