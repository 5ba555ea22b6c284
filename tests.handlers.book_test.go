package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type handlerFixture struct {
	api     *APIHandler
	service *BookService
	storage *fakeBookStorage
	queue   Queuer
	bus     *EventBus
	covers  *MockCoverFetcher
}

func newTestConfig() *Config {
	config := &Config{Server: ServerConfig{Host: "localhost", Port: "8080"}}
	SetConfigDefaults(config)
	return config
}

func newHandlerFixture(t *testing.T, queue Queuer) *handlerFixture {
	t.Helper()
	if queue == nil {
		queue = NewMemoryQueue(8)
	}
	f := &handlerFixture{
		storage: newFakeBookStorage(),
		queue:   queue,
		bus:     NewEventBus(zap.NewNop()),
		covers:  &MockCoverFetcher{Folder: t.TempDir()},
	}
	config := newTestConfig()
	f.service = NewBookService(zap.NewNop(), config, BookServiceDeps{
		Clock:   NewMockClocker(),
		IDs:     NewMockUIDHandler("0", true),
		Storage: f.storage,
		Queue:   queue,
		Finder:  &MockVolumesFinder{Body: []byte(volumesFixture)},
		Prober:  &MockNetworkProber{Up: true},
		Events:  f.bus,
		Covers:  f.covers,
	})
	f.api = NewAPIHandler(zap.NewNop(), config, &Statistics{started: NewMockClocker().Now()},
		NewMockClocker(), NewMockUIDHandler("0", true), f.service, NewMetrics())
	return f
}

func decodeResponse(t *testing.T, res *http.Response) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	m := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(data, &m), string(data))
	return m
}

// TestStatusHandler ensures api handler can provides its status.
func TestStatusHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	f := newHandlerFixture(t, nil)
	f.api.Status(w, req, httprouter.Params{})
	res := w.Result()
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	m := decodeResponse(t, res)

	_, ok := m["requestid"]
	assert.True(t, ok)
	assert.Equal(t, "up & running since 0 mins", m["status"])
	assert.Equal(t, "Hello. Alexandria books catalog api is available. Enjoy :)", m["message"])
}

// TestFetchBookHandler ensures submissions are validated and queued.
//
//nolint:funlen
func TestFetchBookHandler(t *testing.T) {
	t.Run("should pass: isbn-10 is normalized and queued", func(t *testing.T) {
		f := newHandlerFixture(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/books", strings.NewReader(`{"isbn":"0-306-40615-2"}`))
		w := httptest.NewRecorder()
		f.api.FetchBook(w, req, httprouter.Params{})
		res := w.Result()
		defer res.Body.Close()

		assert.Equal(t, http.StatusAccepted, res.StatusCode)
		m := decodeResponse(t, res)
		assert.Equal(t, "Book fetch job accepted.", m["message"])
		job, ok := m["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "j:0", job["id"])
		assert.Equal(t, "fetch", job["kind"])
		assert.Equal(t, testISBN, job["isbn"])

		queued, err := f.queue.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testISBN, queued.ISBN)
	})

	t.Run("should fail: invalid payload", func(t *testing.T) {
		f := newHandlerFixture(t, nil)
		for _, body := range []string{`{"isbn":`, `{"isbn":"123"}`, `{}`} {
			req := httptest.NewRequest(http.MethodPost, "/v1/books", strings.NewReader(body))
			w := httptest.NewRecorder()
			f.api.FetchBook(w, req, httprouter.Params{})
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})

	t.Run("should fail: not normalizable", func(t *testing.T) {
		f := newHandlerFixture(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/books", strings.NewReader(`{"isbn":"978-030-640-615-X"}`))
		w := httptest.NewRecorder()
		f.api.FetchBook(w, req, httprouter.Params{})
		res := w.Result()
		defer res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "isbn provided is not valid", decodeResponse(t, res)["message"])
	})

	t.Run("should fail: queue full", func(t *testing.T) {
		f := newHandlerFixture(t, &MockQueue{PushErr: ErrQueueFull})
		req := httptest.NewRequest(http.MethodPost, "/v1/books", strings.NewReader(`{"isbn":"9780306406157"}`))
		w := httptest.NewRecorder()
		f.api.FetchBook(w, req, httprouter.Params{})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

// TestFetchBookHandler_Wait ensures the handler answers with the outcome
// of its own job once the worker completed it.
func TestFetchBookHandler_Wait(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewJobConsumer(zap.NewNop(), f.queue, f.service).Consume(ctx) }()

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/books?wait=true", bytes.NewBufferString(`{"isbn":"0306406152"}`)).WithContext(rctx)
	w := httptest.NewRecorder()
	f.api.FetchBook(w, req, httprouter.Params{})
	res := w.Result()
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	m := decodeResponse(t, res)
	result, ok := m["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "success", result["outcome"])
	book, ok := result["book"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "The Go Programming Language", book["title"])
	assert.Equal(t, 0, f.bus.Subscribers())
	f.service.Wait()
}

// TestFetchBookHandler_WaitIgnoresOtherJobs ensures a waiting submission gets
// its own outcome even when more events of other books than its buffer holds
// are published first.
func TestFetchBookHandler_WaitIgnoresOtherJobs(t *testing.T) {
	f := newHandlerFixture(t, &MockQueue{})
	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/books?wait=true", bytes.NewBufferString(`{"isbn":"0306406152"}`)).WithContext(rctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.api.FetchBook(w, req, httprouter.Params{})
	}()

	require.Eventually(t, func() bool { return f.bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 2*f.api.eventsBufferSize(); i++ {
		f.bus.Publish(Event{Kind: EventFetch, JobID: "j:other", ISBN: "9780000000019", Outcome: OutcomeSuccess})
		f.bus.Publish(Event{Kind: EventDelete, JobID: "j:other", ISBN: testISBN})
	}
	f.bus.Publish(Event{Kind: EventFetch, JobID: "j:0", ISBN: testISBN, Outcome: OutcomeNotFound})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiting submission missed its own event")
	}
	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	m := decodeResponse(t, res)
	result, ok := m["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "not found", result["outcome"])
	assert.Equal(t, 0, f.bus.Subscribers())
}

func TestSearchBooksHandler(t *testing.T) {
	f := newHandlerFixture(t, nil)
	require.NoError(t, f.storage.Upsert(context.Background(), Book{ISBN: testISBN, Title: "Go in Action"}))
	require.NoError(t, f.storage.Upsert(context.Background(), Book{ISBN: "9780000000019", Title: "Dune"}))

	t.Run("all books", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
		w := httptest.NewRecorder()
		f.api.SearchBooks(w, req, httprouter.Params{})
		res := w.Result()
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		m := decodeResponse(t, res)
		assert.Equal(t, float64(2), m["total"])
	})

	t.Run("filtered books", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/books?q=ACTION", nil)
		w := httptest.NewRecorder()
		f.api.SearchBooks(w, req, httprouter.Params{})
		res := w.Result()
		defer res.Body.Close()
		m := decodeResponse(t, res)
		assert.Equal(t, float64(1), m["total"])
		books, ok := m["data"].([]interface{})
		require.True(t, ok)
		assert.Equal(t, testISBN, books[0].(map[string]interface{})["isbn"])
	})

	t.Run("no match gives an empty list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/books?q=cobol", nil)
		w := httptest.NewRecorder()
		f.api.SearchBooks(w, req, httprouter.Params{})
		res := w.Result()
		defer res.Body.Close()
		m := decodeResponse(t, res)
		assert.Equal(t, float64(0), m["total"])
		assert.Equal(t, []interface{}{}, m["data"])
	})
}

func TestGetOneBookHandler(t *testing.T) {
	f := newHandlerFixture(t, nil)
	require.NoError(t, f.storage.Upsert(context.Background(), Book{ISBN: testISBN, Title: "Go in Action"}))

	testCases := []struct {
		name   string
		isbn   string
		status int
	}{
		{"stored isbn-13", testISBN, http.StatusOK},
		{"stored isbn-10", "0306406152", http.StatusOK},
		{"missing", "9780201633610", http.StatusNotFound},
		{"invalid", "abc", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/books/"+tc.isbn, nil)
			w := httptest.NewRecorder()
			f.api.GetOneBook(w, req, httprouter.Params{{Key: "isbn", Value: tc.isbn}})
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

// TestDeleteOneBook_MissingBook ensures deleting an unknown book is accepted.
func TestDeleteOneBook_MissingBook(t *testing.T) {
	f := newHandlerFixture(t, nil)
	req := httptest.NewRequest(http.MethodDelete, "/v1/books/0306406152", nil)
	w := httptest.NewRecorder()
	f.api.DeleteOneBook(w, req, httprouter.Params{{Key: "isbn", Value: "0306406152"}})
	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	job, err := f.queue.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, JobDelete, job.Kind)
	assert.Equal(t, testISBN, job.ISBN)
}

func TestGetBookCoverHandler(t *testing.T) {
	f := newHandlerFixture(t, nil)
	params := httprouter.Params{{Key: "isbn", Value: testISBN}}

	req := httptest.NewRequest(http.MethodGet, "/v1/books/"+testISBN+"/cover", nil)
	w := httptest.NewRecorder()
	f.api.GetBookCover(w, req, params)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, os.WriteFile(f.covers.Path(testISBN), []byte("jpeg-bytes"), 0o600))
	w = httptest.NewRecorder()
	f.api.GetBookCover(w, req, params)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg-bytes", w.Body.String())

	w = httptest.NewRecorder()
	f.api.GetBookCover(w, req, httprouter.Params{{Key: "isbn", Value: "123"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNormalizeISBNHandler(t *testing.T) {
	f := newHandlerFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/isbn/0-306-40615-2", nil)
	w := httptest.NewRecorder()
	f.api.NormalizeISBN(w, req, httprouter.Params{{Key: "isbn", Value: "0-306-40615-2"}})
	res := w.Result()
	defer res.Body.Close()

	m := decodeResponse(t, res)
	preview, ok := m["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0306406152", preview["cleaned"])
	assert.Equal(t, testISBN, preview["normalized"])
	assert.Equal(t, true, preview["valid"])
	assert.Equal(t, "standard", preview["policy"])
}

func TestStreamEventsHandler(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, EventsPath, nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.api.StreamEvents(w, req, httprouter.Params{})
	}()

	require.Eventually(t, func() bool { return f.bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	f.bus.Publish(Event{Kind: EventFetch, JobID: "j:7", ISBN: testISBN, Outcome: OutcomeNotFound})
	f.bus.Publish(Event{Kind: EventDelete, JobID: "j:8", ISBN: testISBN})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events stream did not stop")
	}
	assert.Equal(t, 0, f.bus.Subscribers())
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "id: j:7\nevent: fetch\ndata: ")
	assert.Contains(t, body, `"outcome":"not found"`)
	assert.Contains(t, body, "id: j:8\nevent: delete\n")
}

func TestStreamEventsHandler_Shutdown(t *testing.T) {
	f := newHandlerFixture(t, nil)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.api.StreamEvents(w, httptest.NewRequest(http.MethodGet, EventsPath, nil), httprouter.Params{})
	}()

	require.Eventually(t, func() bool { return f.bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	f.api.CloseStreams()
	f.api.CloseStreams()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events stream ignored the shutdown")
	}
	assert.Equal(t, 0, f.bus.Subscribers())
}
