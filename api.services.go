package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

var _ BookServiceProvider = (*BookService)(nil)

// BookServiceProvider is the set of book operations exposed to the api.
type BookServiceProvider interface {
	JobProcessor
	RequestFetch(ctx context.Context, isbn string) (Job, error)
	RequestDelete(ctx context.Context, isbn string) (Job, error)
	GetOne(ctx context.Context, isbn string) (Book, error)
	Search(ctx context.Context, query string) ([]Book, error)
	Subscribe(size int) (<-chan Event, func())
	SubscribeFunc(size int, match func(Event) bool) (<-chan Event, func())
	CoverPath(isbn string) string
}

// EventBroker publishes events and lets listeners subscribe to them.
type EventBroker interface {
	Notifier
	Subscribe(size int) (<-chan Event, func())
	SubscribeFunc(size int, match func(Event) bool) (<-chan Event, func())
}

// BookServiceDeps lists the collaborators of the BookService. Covers and
// Metrics are optional.
type BookServiceDeps struct {
	Clock   Clocker
	IDs     UIDHandler
	Storage BookStorage
	Queue   Queuer
	Finder  VolumesFinder
	Prober  NetworkProber
	Events  EventBroker
	Covers  CoverFetcher
	Metrics *Metrics
}

// BookService runs the fetch and delete workflows and serves the
// catalog read operations.
type BookService struct {
	logger     *zap.Logger
	config     *Config
	clock      Clocker
	ids        UIDHandler
	storage    BookStorage
	queue      Queuer
	finder     VolumesFinder
	prober     NetworkProber
	events     EventBroker
	covers     CoverFetcher
	metrics    *Metrics
	background sync.WaitGroup
}

func NewBookService(logger *zap.Logger, config *Config, deps BookServiceDeps) *BookService {
	return &BookService{
		logger:  logger,
		config:  config,
		clock:   deps.Clock,
		ids:     deps.IDs,
		storage: deps.Storage,
		queue:   deps.Queue,
		finder:  deps.Finder,
		prober:  deps.Prober,
		events:  deps.Events,
		covers:  deps.Covers,
		metrics: deps.Metrics,
	}
}

// RequestFetch queues a fetch job for the isbn. The identifier is expected
// to be normalized already, it is validated by the worker.
func (bs *BookService) RequestFetch(ctx context.Context, isbn string) (Job, error) {
	return bs.enqueue(ctx, JobFetch, isbn)
}

// RequestDelete queues a delete job for the isbn.
func (bs *BookService) RequestDelete(ctx context.Context, isbn string) (Job, error) {
	return bs.enqueue(ctx, JobDelete, isbn)
}

func (bs *BookService) enqueue(ctx context.Context, kind JobKind, isbn string) (Job, error) {
	job := Job{
		ID:          bs.ids.Generate(JobIDPrefix),
		Kind:        kind,
		ISBN:        isbn,
		SubmittedAt: bs.clock.Now().UTC(),
	}
	if err := bs.queue.Push(ctx, job); err != nil {
		bs.logger.Error("service: failed to push job to queue",
			zap.String("job.id", job.ID),
			zap.String("job.kind", string(kind)),
			zap.Error(err),
		)
		return job, err
	}
	bs.metrics.ObserveEnqueued(kind)
	return job, nil
}

// Fetch runs the fetch workflow of the job and publishes exactly one
// fetch event carrying the outcome. Errors and panics never escape.
func (bs *BookService) Fetch(ctx context.Context, job Job) (outcome FetchOutcome) {
	var cause error
	logger := bs.logger.With(zap.String("job.id", job.ID), zap.String("book.isbn", job.ISBN))
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeOtherFailure
			cause = fmt.Errorf("panic: %v", r)
		}
		if outcome.IsFailure() {
			logger.Warn("service: fetch failed", zap.String("fetch.outcome", string(outcome)), zap.Error(cause))
		} else {
			logger.Info("service: fetch completed", zap.String("fetch.outcome", string(outcome)))
		}
		bs.metrics.ObserveOutcome(outcome)
		event := Event{
			Kind:    EventFetch,
			JobID:   job.ID,
			ISBN:    job.ISBN,
			Outcome: outcome,
			At:      bs.clock.Now().UTC(),
		}
		if cause != nil {
			event.Error = cause.Error()
		}
		bs.events.Publish(event)
	}()

	outcome, cause = bs.fetch(ctx, job.ISBN)
	return outcome
}

func (bs *BookService) fetch(ctx context.Context, isbn string) (FetchOutcome, error) {
	if !IsCanonicalISBN(isbn) {
		return OutcomeInvalid, fmt.Errorf("%w: %q", ErrInvalidISBN, isbn)
	}

	exists, err := bs.storage.Exists(ctx, isbn)
	if err != nil {
		return OutcomeOtherFailure, fmt.Errorf("existence check: %w", err)
	}
	if exists {
		return OutcomeAlreadyPresent, nil
	}

	start := time.Now()
	body, err := bs.finder.LookupISBN(ctx, isbn)
	bs.metrics.ObserveLookup(start)
	if err != nil {
		return bs.classifyLookupError(ctx, err), err
	}

	volume, err := ParseVolume(body)
	if errors.Is(err, ErrNoItems) {
		return OutcomeNotFound, err
	}
	if err != nil {
		return OutcomeOtherFailure, err
	}

	if err = bs.persist(ctx, isbn, volume); err != nil {
		return OutcomeOtherFailure, err
	}
	bs.downloadCover(isbn, volume.Thumbnail)
	return OutcomeSuccess, nil
}

// classifyLookupError maps a failed lookup to its outcome. Only a failed
// connection checks the connectivity: reachable network means the server
// failed, no network means a network failure. A completed exchange with an
// unexpected status or no body is an other failure whatever the status.
func (bs *BookService) classifyLookupError(ctx context.Context, err error) FetchOutcome {
	if !errors.Is(err, ErrConnection) {
		return OutcomeOtherFailure
	}
	if bs.prober.Reachable(ctx) {
		return OutcomeServerFailure
	}
	return OutcomeNetworkFailure
}

// persist writes the book then each author and category row on its own.
// A failure stops the loop and leaves the rows already written in place.
func (bs *BookService) persist(ctx context.Context, isbn string, volume Volume) error {
	now := bs.clock.Now().UTC().Format(time.RFC3339)
	book := Book{
		ISBN:        isbn,
		Title:       volume.Title,
		Subtitle:    volume.Subtitle,
		Description: volume.Description,
		ImageURL:    volume.Thumbnail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := bs.storage.Upsert(ctx, book); err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	for _, author := range volume.Authors {
		if err := bs.storage.AddAuthor(ctx, isbn, author); err != nil {
			return fmt.Errorf("save author %q: %w", author, err)
		}
	}
	for _, category := range volume.Categories {
		if err := bs.storage.AddCategory(ctx, isbn, category); err != nil {
			return fmt.Errorf("save category %q: %w", category, err)
		}
	}
	return nil
}

// downloadCover starts a best-effort download of the cover image.
func (bs *BookService) downloadCover(isbn, coverURL string) {
	if bs.covers == nil || coverURL == "" {
		return
	}
	bs.background.Add(1)
	go func() {
		defer bs.background.Done()
		path, err := bs.covers.Download(context.Background(), isbn, coverURL)
		if err != nil {
			bs.logger.Warn("service: cover download failed", zap.String("book.isbn", isbn), zap.Error(err))
			return
		}
		bs.logger.Debug("service: cover saved", zap.String("book.isbn", isbn), zap.String("cover.path", path))
	}()
}

// Delete removes the book of the job when an identifier is provided and
// always publishes a delete event carrying that identifier.
func (bs *BookService) Delete(ctx context.Context, job Job) {
	logger := bs.logger.With(zap.String("job.id", job.ID), zap.String("book.isbn", job.ISBN))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("service: delete panicked", zap.Any("error", r))
		}
		bs.metrics.ObserveDelete()
		bs.events.Publish(Event{
			Kind:  EventDelete,
			JobID: job.ID,
			ISBN:  job.ISBN,
			At:    bs.clock.Now().UTC(),
		})
	}()

	if job.ISBN == "" {
		return
	}
	if err := bs.storage.Delete(ctx, job.ISBN); err != nil {
		logger.Error("service: failed to delete book", zap.Error(err))
		return
	}
	if bs.covers != nil && IsCanonicalISBN(job.ISBN) {
		if err := os.Remove(bs.covers.Path(job.ISBN)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("service: failed to remove cover", zap.Error(err))
		}
	}
	logger.Info("service: book deleted")
}

func (bs *BookService) GetOne(ctx context.Context, isbn string) (Book, error) {
	return bs.storage.GetOne(ctx, isbn)
}

func (bs *BookService) Search(ctx context.Context, query string) ([]Book, error) {
	return bs.storage.Search(ctx, query)
}

// Subscribe registers a listener of job events.
func (bs *BookService) Subscribe(size int) (<-chan Event, func()) {
	return bs.events.Subscribe(size)
}

// SubscribeFunc registers a listener of the job events accepted by match.
func (bs *BookService) SubscribeFunc(size int, match func(Event) bool) (<-chan Event, func()) {
	return bs.events.SubscribeFunc(size, match)
}

// CoverPath returns the local cover location or an empty string when
// covers are disabled.
func (bs *BookService) CoverPath(isbn string) string {
	if bs.covers == nil {
		return ""
	}
	return bs.covers.Path(isbn)
}

// Wait blocks until the background cover downloads are done.
func (bs *BookService) Wait() {
	bs.background.Wait()
}
