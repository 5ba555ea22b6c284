package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HBooks            string = "alexandria:books"
	LAuthorsPrefix    string = "alexandria:authors:"
	LCategoriesPrefix string = "alexandria:categories:"
)

type redisBookStorage struct {
	logger *zap.Logger
	client *redis.Client
}

// NewRedisBookStorage provides an instance of redis-based book storage.
func NewRedisBookStorage(logger *zap.Logger, client *redis.Client) BookStorage {
	return &redisBookStorage{
		logger: logger,
		client: client,
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,

		ContextTimeoutEnabled: true,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// Close is a no-op. The client is shared with the queue and owned by the App.
func (rs *redisBookStorage) Close() error {
	return nil
}

// Exists reports whether a book record is stored under the isbn.
func (rs *redisBookStorage) Exists(ctx context.Context, isbn string) (bool, error) {
	return rs.client.HExists(ctx, HBooks, isbn).Result()
}

// GetOne retrieves a book record with its authors and categories.
func (rs *redisBookStorage) GetOne(ctx context.Context, isbn string) (Book, error) {
	var book Book
	bookJSONString, err := rs.client.HGet(ctx, HBooks, isbn).Result()
	if err == redis.Nil {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, err
	}
	if err = json.Unmarshal([]byte(bookJSONString), &book); err != nil {
		return Book{}, err
	}
	if err = rs.loadEntries(ctx, &book); err != nil {
		return Book{}, err
	}
	return book, nil
}

// Search lists the books whose title or subtitle contains the query.
func (rs *redisBookStorage) Search(ctx context.Context, query string) ([]Book, error) {
	values, err := rs.client.HVals(ctx, HBooks).Result()
	if err != nil {
		return nil, err
	}
	books := []Book{}
	for _, bookJSONString := range values {
		var book Book
		if err = json.Unmarshal([]byte(bookJSONString), &book); err != nil {
			return nil, err
		}
		if !MatchesQuery(book, query) {
			continue
		}
		if err = rs.loadEntries(ctx, &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	SortBooksByTitle(books)
	return books, nil
}

// Upsert replaces the book record or inserts it when it does not exist.
func (rs *redisBookStorage) Upsert(ctx context.Context, book Book) error {
	book.Authors, book.Categories = nil, nil
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return rs.client.HSet(ctx, HBooks, book.ISBN, bookBytes).Err()
}

// AddAuthor appends one author entry to the book.
func (rs *redisBookStorage) AddAuthor(ctx context.Context, isbn, author string) error {
	return rs.client.RPush(ctx, LAuthorsPrefix+isbn, author).Err()
}

// AddCategory appends one category entry to the book.
func (rs *redisBookStorage) AddCategory(ctx context.Context, isbn, category string) error {
	return rs.client.RPush(ctx, LCategoriesPrefix+isbn, category).Err()
}

// Delete removes the book record and its entries. Deleting a missing
// book is not an error.
func (rs *redisBookStorage) Delete(ctx context.Context, isbn string) error {
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, HBooks, isbn)
		pipe.Del(ctx, LAuthorsPrefix+isbn, LCategoriesPrefix+isbn)
		return nil
	})
	return err
}

func (rs *redisBookStorage) loadEntries(ctx context.Context, book *Book) error {
	var err error
	if book.Authors, err = rs.client.LRange(ctx, LAuthorsPrefix+book.ISBN, 0, -1).Result(); err != nil {
		return err
	}
	book.Categories, err = rs.client.LRange(ctx, LCategoriesPrefix+book.ISBN, 0, -1).Result()
	return err
}
