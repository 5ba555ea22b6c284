package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MatchesQuery reports whether the title or the subtitle of the book
// contains the query, ignoring case. An empty query matches every book.
func MatchesQuery(book Book, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(book.Title), q) ||
		strings.Contains(strings.ToLower(book.Subtitle), q)
}

// SortBooksByTitle orders books by title then isbn.
func SortBooksByTitle(books []Book) {
	sort.SliceStable(books, func(i, j int) bool {
		ti, tj := strings.ToLower(books[i].Title), strings.ToLower(books[j].Title)
		if ti != tj {
			return ti < tj
		}
		return books[i].ISBN < books[j].ISBN
	})
}

// NewBookStorage opens the storage selected by the configured driver.
func NewBookStorage(logger *zap.Logger, config *Config, redisClient *redis.Client) (BookStorage, error) {
	switch config.Storage.Driver {
	case StorageBolt:
		client, err := GetBoltDBClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to boltDB: %s", err)
		}
		return NewBoltBookStorage(logger, &config.BoltDB, client), nil
	case StorageSQLite:
		db, err := GetSQLiteClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %s", err)
		}
		return NewSQLiteBookStorage(logger, db), nil
	case StorageRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis storage requires a redis client")
		}
		return NewRedisBookStorage(logger, redisClient), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
}
