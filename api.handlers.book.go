package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	EventsPath        = "/v1/events"
	eventsKeepAlive   = 15 * time.Second
	defaultEventsSize = 16
)

// FetchJobResult is the payload sent back when a fetch submission waited
// for the completion of its job.
type FetchJobResult struct {
	Job     Job          `json:"job"`
	Outcome FetchOutcome `json:"outcome"`
	Error   string       `json:"error,omitempty"`
	Book    *Book        `json:"book,omitempty"`
}

// ISBNPreview describes how a raw identifier would be submitted.
type ISBNPreview struct {
	Input      string         `json:"input"`
	Cleaned    string         `json:"cleaned"`
	Normalized string         `json:"normalized"`
	Valid      bool           `json:"valid"`
	Policy     ChecksumPolicy `json:"policy"`
}

func (api *APIHandler) eventsBufferSize() int {
	if api.config == nil || api.config.Events.BufferSize <= 0 {
		return defaultEventsSize
	}
	return api.config.Events.BufferSize
}

func (api *APIHandler) checksumPolicy() ChecksumPolicy {
	if api.config == nil || !api.config.ISBN.Checksum.IsValid() {
		return ChecksumStandard
	}
	return api.config.ISBN.Checksum
}

// FetchBook validates the submitted identifier and queues a fetch job for it.
// With `?wait=true` the response is only sent once the job completed.
//
//	@Summary	Queue a book fetch job
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		request	body		FetchBookRequest	true	"isbn-10 or isbn-13, spaces and hyphens allowed"
//	@Param		wait	query		bool				false	"answer once the job completed"
//	@Success	200		{object}	APIResponse{data=FetchJobResult}
//	@Success	202		{object}	APIResponse{data=Job}
//	@Failure	400		{object}	APIError
//	@Failure	503		{object}	APIError
//	@Router		/v1/books [post]
func (api *APIHandler) FetchBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	requestID := GetValueFromContext(ctx, RequestIDContextKey)
	logger := api.GetLoggerFromContext(ctx)

	var req FetchBookRequest
	if err := DecodeFetchBookRequestBody(r, &req); err != nil {
		logger.Error("failed to decode fetch book request", zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusBadRequest, "invalid fetch book request", err.Error())
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	isbn, err := PrepareISBN(req.ISBN, api.checksumPolicy())
	if err != nil {
		logger.Error("isbn provided is not valid", zap.String("book.isbn", req.ISBN), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusBadRequest, "isbn provided is not valid", map[string]string{"isbn": isbn})
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	wait := r.URL.Query().Get("wait") == "true"
	var events <-chan Event
	if wait {
		var cancel func()
		events, cancel = api.bookService.SubscribeFunc(api.eventsBufferSize(), func(ev Event) bool {
			return ev.Kind == EventFetch && ev.ISBN == isbn
		})
		defer cancel()
	}

	job, err := api.bookService.RequestFetch(ctx, isbn)
	if err != nil {
		api.writeEnqueueError(w, r, "failed to queue the book fetch", err)
		return
	}
	logger.Info("book fetch job queued", zap.String("job.id", job.ID), zap.String("book.isbn", isbn))

	if !wait {
		resp := GenericResponse(requestID, http.StatusAccepted, "Book fetch job accepted.", nil, job)
		if err = WriteResponse(ctx, w, resp); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Warn("stopped waiting for the fetch job", zap.String("job.id", job.ID), zap.Error(ctx.Err()))
			_ = writeCancelledStatus(ctx, w)
			return
		case ev, ok := <-events:
			if !ok {
				errResp := NewAPIError(requestID, http.StatusInternalServerError, "events stream closed before the job completed", job)
				if err = WriteErrorResponse(ctx, w, errResp); err != nil {
					logger.Error("failed to send error response", zap.Error(err))
				}
				return
			}
			if ev.Kind != EventFetch || ev.JobID != job.ID {
				continue
			}
			result := FetchJobResult{Job: job, Outcome: ev.Outcome, Error: ev.Error}
			if ev.Outcome == OutcomeSuccess || ev.Outcome == OutcomeAlreadyPresent {
				if book, gerr := api.bookService.GetOne(ctx, isbn); gerr == nil {
					result.Book = &book
				}
			}
			resp := GenericResponse(requestID, http.StatusOK, "Book fetch job completed.", nil, result)
			if err = WriteResponse(ctx, w, resp); err != nil {
				logger.Error("failed to send response", zap.Error(err))
			}
			return
		}
	}
}

func (api *APIHandler) writeEnqueueError(w http.ResponseWriter, r *http.Request, message string, err error) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	logger.Error(message, zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, ErrQueueFull) {
		status = http.StatusServiceUnavailable
	}
	errResp := NewAPIError(requestID, status, message, EmptyData)
	if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
		logger.Error("failed to send error response", zap.Error(err))
	}
}

// SearchBooks lists the stored books whose title or subtitle contains
// the `q` query parameter. An empty query lists all books.
//
//	@Summary	Search stored books
//	@Tags		books
//	@Produce	json
//	@Param		q	query		string	false	"case-insensitive substring of the title or the subtitle"
//	@Success	200	{object}	APIResponse{data=[]Book}
//	@Failure	500	{object}	APIError
//	@Router		/v1/books [get]
func (api *APIHandler) SearchBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	requestID := GetValueFromContext(ctx, RequestIDContextKey)
	logger := api.GetLoggerFromContext(ctx)
	query := r.URL.Query().Get("q")

	books, err := api.bookService.Search(ctx, query)
	if err != nil {
		logger.Error("failed to search books", zap.String("search.query", query), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to search books", EmptyData)
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	if books == nil {
		books = []Book{}
	}
	total := len(books)
	logger.Info("success to search books", zap.String("search.query", query), zap.Int("search.total", total))
	resp := GenericResponse(requestID, http.StatusOK, "Books fetched successfully.", &total, books)
	if err = WriteResponse(ctx, w, resp); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// GetOneBook returns the stored book of the cleaned identifier.
//
//	@Summary	Get one stored book
//	@Tags		books
//	@Produce	json
//	@Param		isbn	path		string	true	"isbn-10 or isbn-13"
//	@Success	200		{object}	APIResponse{data=Book}
//	@Failure	400		{object}	APIError
//	@Failure	404		{object}	APIError
//	@Router		/v1/books/{isbn} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	requestID := GetValueFromContext(ctx, RequestIDContextKey)
	logger := api.GetLoggerFromContext(ctx)

	isbn, err := PrepareISBN(ps.ByName("isbn"), api.checksumPolicy())
	if err != nil {
		logger.Error("isbn provided is not valid", zap.String("book.isbn", ps.ByName("isbn")))
		errResp := NewAPIError(requestID, http.StatusBadRequest, "isbn provided is not valid", Book{})
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	book, err := api.bookService.GetOne(ctx, isbn)
	if errors.Is(err, ErrBookNotFound) {
		logger.Error("book does not exist", zap.String("book.isbn", isbn))
		errResp := NewAPIError(requestID, http.StatusNotFound, "book does not exist", Book{})
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	if err != nil {
		logger.Error("failed to get book", zap.String("book.isbn", isbn), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get the book", Book{})
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	logger.Info("success to get book", zap.String("book.isbn", isbn))
	resp := GenericResponse(requestID, http.StatusOK, "Book fetched successfully.", nil, book)
	if err = WriteResponse(ctx, w, resp); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// DeleteOneBook queues a delete job. The identifier is cleaned and
// normalized but not validated, a missing book is not an error.
//
//	@Summary	Queue a book delete job
//	@Tags		books
//	@Produce	json
//	@Param		isbn	path		string	true	"isbn-10 or isbn-13"
//	@Success	202		{object}	APIResponse{data=Job}
//	@Failure	503		{object}	APIError
//	@Router		/v1/books/{isbn} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	requestID := GetValueFromContext(ctx, RequestIDContextKey)
	logger := api.GetLoggerFromContext(ctx)
	isbn := NormalizeISBNWithPolicy(CleanISBN(ps.ByName("isbn")), api.checksumPolicy())

	job, err := api.bookService.RequestDelete(ctx, isbn)
	if err != nil {
		api.writeEnqueueError(w, r, "failed to queue the book deletion", err)
		return
	}
	logger.Info("book delete job queued", zap.String("job.id", job.ID), zap.String("book.isbn", isbn))
	resp := GenericResponse(requestID, http.StatusAccepted, "Book delete job accepted.", nil, job)
	if err = WriteResponse(ctx, w, resp); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// GetBookCover serves the locally saved cover image of a book.
//
//	@Summary	Get the saved cover image of a book
//	@Tags		books
//	@Produce	jpeg
//	@Param		isbn	path		string	true	"isbn-10 or isbn-13"
//	@Success	200		{file}		file
//	@Failure	400		{object}	APIError
//	@Failure	404		{object}	APIError
//	@Router		/v1/books/{isbn}/cover [get]
func (api *APIHandler) GetBookCover(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	requestID := GetValueFromContext(ctx, RequestIDContextKey)
	logger := api.GetLoggerFromContext(ctx)

	isbn, err := PrepareISBN(ps.ByName("isbn"), api.checksumPolicy())
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusBadRequest, "isbn provided is not valid", EmptyData)
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	path := api.bookService.CoverPath(isbn)
	if path == "" {
		errResp := NewAPIError(requestID, http.StatusNotFound, "covers are disabled", EmptyData)
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	if _, err = os.Stat(path); err != nil {
		logger.Debug("cover not available", zap.String("book.isbn", isbn), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusNotFound, "book cover does not exist", EmptyData)
		if err = WriteErrorResponse(ctx, w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	http.ServeFile(w, r, path)
}

// NormalizeISBN previews the identifier which would be submitted for
// the raw input without queueing anything.
//
//	@Summary	Preview the normalized form of an identifier
//	@Tags		isbn
//	@Produce	json
//	@Param		isbn	path		string	true	"raw identifier"
//	@Success	200		{object}	APIResponse{data=ISBNPreview}
//	@Router		/v1/isbn/{isbn} [get]
func (api *APIHandler) NormalizeISBN(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	requestID := GetValueFromContext(ctx, RequestIDContextKey)
	raw := ps.ByName("isbn")
	policy := api.checksumPolicy()
	cleaned := CleanISBN(raw)
	normalized := NormalizeISBNWithPolicy(cleaned, policy)
	preview := ISBNPreview{
		Input:      raw,
		Cleaned:    cleaned,
		Normalized: normalized,
		Valid:      IsCanonicalISBN(normalized),
		Policy:     policy,
	}
	resp := GenericResponse(requestID, http.StatusOK, "ISBN normalized successfully.", nil, preview)
	if err := WriteResponse(ctx, w, resp); err != nil {
		api.GetLoggerFromContext(ctx).Error("failed to send response", zap.Error(err))
	}
}

// StreamEvents pushes the job events as server-sent events until the
// client goes away.
//
//	@Summary	Stream job events as server-sent events
//	@Tags		events
//	@Produce	event-stream
//	@Success	200	{object}	Event	"one event per completed job"
//	@Router		/v1/events [get]
func (api *APIHandler) StreamEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	logger := api.GetLoggerFromContext(ctx)
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("http: failed to clear the write deadline", zap.Error(err))
	}

	events, cancel := api.bookService.Subscribe(api.eventsBufferSize())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Error("http: events streaming not supported", zap.Error(err))
		return
	}

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("events stream closed by client")
			return
		case <-api.streamsDone:
			logger.Debug("events stream closed by server shutdown")
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("failed to encode event", zap.Error(err))
				continue
			}
			if _, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.JobID, ev.Kind, data); err != nil {
				logger.Debug("failed to write event", zap.Error(err))
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
