package main

import (
	"context"
	"errors"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrInvalidISBN  = errors.New("invalid isbn")
)

// Book represents a catalogued book entity. It is keyed by its
// canonical 13 digits identifier.
type Book struct {
	ISBN        string   `json:"isbn"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl"`
	Authors     []string `json:"authors"`
	Categories  []string `json:"categories"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// BookStorage defines possible operations on book entity and its
// authors and categories entries.
type BookStorage interface {
	Exists(ctx context.Context, isbn string) (bool, error)
	GetOne(ctx context.Context, isbn string) (Book, error)
	Search(ctx context.Context, query string) ([]Book, error)
	Upsert(ctx context.Context, book Book) error
	AddAuthor(ctx context.Context, isbn, author string) error
	AddCategory(ctx context.Context, isbn, category string) error
	Delete(ctx context.Context, isbn string) error
	Close() error
}
