package main

import (
	"context"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	ExistsFunc      func(ctx context.Context, isbn string) (bool, error)
	GetOneFunc      func(ctx context.Context, isbn string) (Book, error)
	SearchFunc      func(ctx context.Context, query string) ([]Book, error)
	UpsertFunc      func(ctx context.Context, book Book) error
	AddAuthorFunc   func(ctx context.Context, isbn, author string) error
	AddCategoryFunc func(ctx context.Context, isbn, category string) error
	DeleteFunc      func(ctx context.Context, isbn string) error
}

func (m *MockBookStorage) Exists(ctx context.Context, isbn string) (bool, error) {
	return m.ExistsFunc(ctx, isbn)
}

func (m *MockBookStorage) GetOne(ctx context.Context, isbn string) (Book, error) {
	return m.GetOneFunc(ctx, isbn)
}

func (m *MockBookStorage) Search(ctx context.Context, query string) ([]Book, error) {
	return m.SearchFunc(ctx, query)
}

func (m *MockBookStorage) Upsert(ctx context.Context, book Book) error {
	return m.UpsertFunc(ctx, book)
}

func (m *MockBookStorage) AddAuthor(ctx context.Context, isbn, author string) error {
	return m.AddAuthorFunc(ctx, isbn, author)
}

func (m *MockBookStorage) AddCategory(ctx context.Context, isbn, category string) error {
	return m.AddCategoryFunc(ctx, isbn, category)
}

func (m *MockBookStorage) Delete(ctx context.Context, isbn string) error {
	return m.DeleteFunc(ctx, isbn)
}

func (m *MockBookStorage) Close() error {
	return nil
}

// fakeBookStorage is a map backed BookStorage which records calls.
type fakeBookStorage struct {
	mu        sync.Mutex
	books     map[string]Book
	deleted   []string
	failAfter int // fail the n-th row write when > 0
	writes    int
	failErr   error
}

func newFakeBookStorage() *fakeBookStorage {
	return &fakeBookStorage{books: make(map[string]Book)}
}

func (f *fakeBookStorage) write() error {
	f.writes++
	if f.failAfter > 0 && f.writes >= f.failAfter {
		return f.failErr
	}
	return nil
}

func (f *fakeBookStorage) Exists(_ context.Context, isbn string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.books[isbn]
	return ok, nil
}

func (f *fakeBookStorage) GetOne(_ context.Context, isbn string) (Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[isbn]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	return b, nil
}

func (f *fakeBookStorage) Search(_ context.Context, query string) ([]Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	books := []Book{}
	for _, b := range f.books {
		if MatchesQuery(b, query) {
			books = append(books, b)
		}
	}
	SortBooksByTitle(books)
	return books, nil
}

func (f *fakeBookStorage) Upsert(_ context.Context, book Book) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	prev := f.books[book.ISBN]
	book.Authors, book.Categories = prev.Authors, prev.Categories
	f.books[book.ISBN] = book
	return nil
}

func (f *fakeBookStorage) AddAuthor(_ context.Context, isbn, author string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	b := f.books[isbn]
	b.Authors = append(b.Authors, author)
	f.books[isbn] = b
	return nil
}

func (f *fakeBookStorage) AddCategory(_ context.Context, isbn, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	b := f.books[isbn]
	b.Categories = append(b.Categories, category)
	f.books[isbn] = b
	return nil
}

func (f *fakeBookStorage) Delete(_ context.Context, isbn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, isbn)
	delete(f.books, isbn)
	return nil
}

func (f *fakeBookStorage) Close() error {
	return nil
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `2023-07-02T00:00:00Z` in time.RFC3339 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}

// MockVolumesFinder returns a canned lookup result and counts the calls.
type MockVolumesFinder struct {
	mu    sync.Mutex
	Body  []byte
	Err   error
	Panic bool
	Calls []string
}

func (m *MockVolumesFinder) LookupISBN(_ context.Context, isbn string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, isbn)
	m.mu.Unlock()
	if m.Panic {
		panic("lookup exploded")
	}
	return m.Body, m.Err
}

func (m *MockVolumesFinder) CallsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockNetworkProber answers with a fixed reachability.
type MockNetworkProber struct {
	Up    bool
	Calls int
}

func (m *MockNetworkProber) Reachable(_ context.Context) bool {
	m.Calls++
	return m.Up
}

// MockCoverFetcher records the requested downloads.
type MockCoverFetcher struct {
	mu     sync.Mutex
	Folder string
	URLs   []string
	Err    error
}

func (m *MockCoverFetcher) Download(_ context.Context, isbn, coverURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.URLs = append(m.URLs, coverURL)
	return m.Path(isbn), m.Err
}

func (m *MockCoverFetcher) Path(isbn string) string {
	return m.Folder + "/" + isbn + ".jpg"
}

// MockQueue is a Queuer whose Push result is configurable.
type MockQueue struct {
	mu      sync.Mutex
	Pushed  []Job
	PushErr error
}

func (m *MockQueue) Push(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PushErr != nil {
		return m.PushErr
	}
	m.Pushed = append(m.Pushed, job)
	return nil
}

func (m *MockQueue) Pop(ctx context.Context) (Job, error) {
	<-ctx.Done()
	return Job{}, ctx.Err()
}
