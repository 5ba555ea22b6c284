package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBookStorageTests checks the behavior every storage driver must share.
//
//nolint:funlen
func runBookStorageTests(t *testing.T, store BookStorage) {
	t.Helper()
	ctx := context.Background()
	goBook := Book{
		ISBN:        "9780134190440",
		Title:       "The Go Programming Language",
		Subtitle:    "Addison-Wesley Professional Computing",
		Description: "The authoritative resource.",
		ImageURL:    "http://books.example/go.jpg",
		CreatedAt:   "2023-07-02T00:00:00Z",
		UpdatedAt:   "2023-07-02T00:00:00Z",
	}
	rustBook := Book{ISBN: "9781718503106", Title: "the rust programming language", Subtitle: "2nd edition"}
	percentBook := Book{ISBN: "9780000000019", Title: "100% Go"}

	t.Run("Missing Book", func(t *testing.T) {
		exists, err := store.Exists(ctx, goBook.ISBN)
		require.NoError(t, err)
		assert.False(t, exists)
		_, err = store.GetOne(ctx, goBook.ISBN)
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("Upsert Book With Entries", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, goBook))
		require.NoError(t, store.AddAuthor(ctx, goBook.ISBN, "Alan Donovan"))
		require.NoError(t, store.AddAuthor(ctx, goBook.ISBN, "Brian Kernighan"))
		require.NoError(t, store.AddCategory(ctx, goBook.ISBN, "Computers"))

		exists, err := store.Exists(ctx, goBook.ISBN)
		require.NoError(t, err)
		assert.True(t, exists)

		book, err := store.GetOne(ctx, goBook.ISBN)
		require.NoError(t, err)
		assert.Equal(t, goBook.Title, book.Title)
		assert.Equal(t, goBook.Subtitle, book.Subtitle)
		assert.Equal(t, goBook.Description, book.Description)
		assert.Equal(t, goBook.ImageURL, book.ImageURL)
		assert.Equal(t, goBook.CreatedAt, book.CreatedAt)
		assert.Equal(t, []string{"Alan Donovan", "Brian Kernighan"}, book.Authors)
		assert.Equal(t, []string{"Computers"}, book.Categories)
	})

	t.Run("Upsert Keeps Entries", func(t *testing.T) {
		updated := goBook
		updated.Title = "The Go Programming Language (reprint)"
		require.NoError(t, store.Upsert(ctx, updated))
		book, err := store.GetOne(ctx, goBook.ISBN)
		require.NoError(t, err)
		assert.Equal(t, updated.Title, book.Title)
		assert.Len(t, book.Authors, 2)
		require.NoError(t, store.Upsert(ctx, goBook))
	})

	t.Run("Search Books", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, rustBook))
		require.NoError(t, store.Upsert(ctx, percentBook))

		all, err := store.Search(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, percentBook.ISBN, all[0].ISBN)
		assert.Equal(t, goBook.ISBN, all[1].ISBN)
		assert.Equal(t, rustBook.ISBN, all[2].ISBN)

		books, err := store.Search(ctx, "PROGRAMMING")
		require.NoError(t, err)
		assert.Len(t, books, 2)

		books, err = store.Search(ctx, "2nd")
		require.NoError(t, err)
		require.Len(t, books, 1)
		assert.Equal(t, rustBook.ISBN, books[0].ISBN)

		books, err = store.Search(ctx, "%")
		require.NoError(t, err)
		require.Len(t, books, 1)
		assert.Equal(t, percentBook.ISBN, books[0].ISBN)

		books, err = store.Search(ctx, "cobol")
		require.NoError(t, err)
		assert.Empty(t, books)
	})

	t.Run("Search Non Ascii Titles", func(t *testing.T) {
		etudes := Book{ISBN: "9782070360536", Title: "Études de style", Subtitle: "Exercices ÉCRITS"}
		require.NoError(t, store.Upsert(ctx, etudes))
		defer func() { require.NoError(t, store.Delete(ctx, etudes.ISBN)) }()

		for _, query := range []string{"études", "ÉTUDES", "écrits"} {
			books, err := store.Search(ctx, query)
			require.NoError(t, err)
			require.Len(t, books, 1, query)
			assert.Equal(t, etudes.ISBN, books[0].ISBN, query)
		}
	})

	t.Run("Delete Book Cascades", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, goBook.ISBN))
		_, err := store.GetOne(ctx, goBook.ISBN)
		assert.ErrorIs(t, err, ErrBookNotFound)

		require.NoError(t, store.Upsert(ctx, goBook))
		book, err := store.GetOne(ctx, goBook.ISBN)
		require.NoError(t, err)
		assert.Empty(t, book.Authors)
		assert.Empty(t, book.Categories)
	})

	t.Run("Delete Missing Book", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "9789999999999"))
	})
}

func TestMatchesQuery(t *testing.T) {
	book := Book{Title: "Dune", Subtitle: "Messiah"}
	assert.True(t, MatchesQuery(book, ""))
	assert.True(t, MatchesQuery(book, "dUN"))
	assert.True(t, MatchesQuery(book, "SIA"))
	assert.False(t, MatchesQuery(book, "herbert"))
}

func TestSortBooksByTitle(t *testing.T) {
	books := []Book{
		{ISBN: "3", Title: "beta"},
		{ISBN: "2", Title: "Alpha"},
		{ISBN: "1", Title: "alpha"},
	}
	SortBooksByTitle(books)
	assert.Equal(t, "1", books[0].ISBN)
	assert.Equal(t, "2", books[1].ISBN)
	assert.Equal(t, "3", books[2].ISBN)
}
