package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

var (
	boltBooksBucket      = []byte("books")
	boltAuthorsBucket    = []byte("authors")
	boltCategoriesBucket = []byte("categories")
)

type boltBookStorage struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

// GetBoltDBClient setup the database and the buckets then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(config.BoltDB.FilePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create the database folder, %v", err)
	}
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{boltBooksBucket, boltAuthorsBucket, boltCategoriesBucket} {
			if _, errB := tx.CreateBucketIfNotExists(name); errB != nil {
				return fmt.Errorf("failed to create %s bucket: %v", name, errB)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up buckets: %v", err)
	}
	return db, nil
}

// NewBoltBookStorage provides an instance of bolt-based book storage.
func NewBoltBookStorage(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) BookStorage {
	return &boltBookStorage{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// Close shuts down the bolt-based book storage.
func (bs *boltBookStorage) Close() error {
	return bs.client.Close()
}

// Exists reports whether a book record is stored under the isbn.
func (bs *boltBookStorage) Exists(_ context.Context, isbn string) (bool, error) {
	var found bool
	err := bs.client.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(boltBooksBucket).Get([]byte(isbn)) != nil
		return nil
	})
	return found, err
}

// GetOne retrieves a book record with its authors and categories.
func (bs *boltBookStorage) GetOne(_ context.Context, isbn string) (Book, error) {
	var book Book
	err := bs.client.View(func(tx *bolt.Tx) error {
		result := tx.Bucket(boltBooksBucket).Get([]byte(isbn))
		if result == nil {
			return ErrBookNotFound
		}
		if err := json.Unmarshal(result, &book); err != nil {
			return err
		}
		book.Authors = boltListValues(tx.Bucket(boltAuthorsBucket), isbn)
		book.Categories = boltListValues(tx.Bucket(boltCategoriesBucket), isbn)
		return nil
	})
	if err != nil {
		return Book{}, err
	}
	return book, nil
}

// Search lists the books whose title or subtitle contains the query.
func (bs *boltBookStorage) Search(_ context.Context, query string) ([]Book, error) {
	books := []Book{}
	err := bs.client.View(func(tx *bolt.Tx) error {
		authors := tx.Bucket(boltAuthorsBucket)
		categories := tx.Bucket(boltCategoriesBucket)
		c := tx.Bucket(boltBooksBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var book Book
			if err := json.Unmarshal(v, &book); err != nil {
				return err
			}
			if !MatchesQuery(book, query) {
				continue
			}
			book.Authors = boltListValues(authors, string(k))
			book.Categories = boltListValues(categories, string(k))
			books = append(books, book)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortBooksByTitle(books)
	return books, nil
}

// Upsert replaces the book record or inserts it when it does not exist.
// Authors and categories are stored apart and left untouched.
func (bs *boltBookStorage) Upsert(_ context.Context, book Book) error {
	book.Authors, book.Categories = nil, nil
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return bs.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBooksBucket).Put([]byte(book.ISBN), bookBytes)
	})
}

// AddAuthor appends one author entry to the book.
func (bs *boltBookStorage) AddAuthor(_ context.Context, isbn, author string) error {
	return bs.appendValue(boltAuthorsBucket, isbn, author)
}

// AddCategory appends one category entry to the book.
func (bs *boltBookStorage) AddCategory(_ context.Context, isbn, category string) error {
	return bs.appendValue(boltCategoriesBucket, isbn, category)
}

// Delete removes the book record and its entries. Deleting a missing
// book is not an error.
func (bs *boltBookStorage) Delete(_ context.Context, isbn string) error {
	return bs.client.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(boltBooksBucket).Delete([]byte(isbn)); err != nil {
			return err
		}
		for _, name := range [][]byte{boltAuthorsBucket, boltCategoriesBucket} {
			err := tx.Bucket(name).DeleteBucket([]byte(isbn))
			if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
}

// appendValue stores value into the isbn sub-bucket of parent using the
// bucket sequence as key so the insertion order is kept.
func (bs *boltBookStorage) appendValue(parent []byte, isbn, value string) error {
	return bs.client.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(parent).CreateBucketIfNotExists([]byte(isbn))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, []byte(value))
	})
}

// boltListValues returns the values of the isbn sub-bucket of parent.
func boltListValues(parent *bolt.Bucket, isbn string) []string {
	values := []string{}
	if len(isbn) == 0 {
		return values
	}
	b := parent.Bucket([]byte(isbn))
	if b == nil {
		return values
	}
	_ = b.ForEach(func(_, v []byte) error {
		values = append(values, string(v))
		return nil
	})
	return values
}
