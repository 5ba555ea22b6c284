package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	redisClient    *redis.Client
	storage        BookStorage
	bookService    *BookService
	cleanups       []func()
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp(configFile, envFile string) (*App, error) {
	config, err := LoadAndInitConfigs(configFile, envFile, GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	// Setup the logging module with size based log files rotation.
	clock := NewClock(config.IsProduction)
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, NewTickClock(clock))
	cleanups := []func(){
		func() { _ = flusher() },
		func() { _ = logWriter.Close() },
	}
	fail := func(err error) (*App, error) {
		for _, f := range cleanups {
			f()
		}
		return nil, err
	}

	// Connect to redis only when one of the drivers needs it.
	var redisClient *redis.Client
	if config.Storage.Driver == StorageRedis || config.Queue.Driver == QueueRedis {
		redisClient, err = GetRedisClient(config)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis server: %s", err))
		}
	}

	storage, err := NewBookStorage(logger, config, redisClient)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return fail(err)
	}

	queue, err := NewQueue(config, redisClient)
	if err != nil {
		_ = storage.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return fail(err)
	}

	metrics := NewMetrics()
	var covers CoverFetcher
	if config.Covers.Enabled {
		covers = NewCoverStore(logger, &config.Covers)
	}

	bookService := NewBookService(logger, config, BookServiceDeps{
		Clock:   clock,
		IDs:     NewIDsHandler(),
		Storage: storage,
		Queue:   queue,
		Finder:  NewGoogleBooksClient(logger, &config.GoogleBooks),
		Prober:  NewNetworkProber(logger, &config.Probe),
		Events:  NewEventBus(logger),
		Covers:  covers,
		Metrics: metrics,
	})
	consumer := NewJobConsumer(logger, queue, bookService)

	stats := &Statistics{
		version:   config.GitTag,
		container: IsAppRunningInDocker(),
		started:   clock.Now(),
		runtime:   runtime.Version(),
		platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		stats.version = config.GitCommit
	}
	apiService := NewAPIHandler(logger, config, stats, clock, NewIDsHandler(), bookService, metrics)

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(), apiService.NewMiddlewareMap())

	// Build the api server definition.
	srv := &http.Server{
		Addr:           net.JoinHostPort(config.Server.Host, config.Server.Port),
		Handler:        TimeoutMiddleware(router, config.Server.RequestTimeout),
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}
	srv.RegisterOnShutdown(apiService.CloseStreams)

	return &App{
		logger:         logger,
		config:         config,
		server:         srv,
		redisClient:    redisClient,
		storage:        storage,
		bookService:    bookService,
		cleanups:       cleanups,
		queueConsumers: []func(ctx context.Context) error{consumer.Consume},
	}, nil
}

// Run starts the api web server, the queue consumer and a goroutine which is
// responsible to stop them. The storage is closed once they all returned.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)

	app.bookService.Wait()
	if cerr := app.storage.Close(); cerr != nil {
		app.logger.Error("failed to close the storage", zap.Error(cerr))
	}
	if app.redisClient != nil {
		_ = app.redisClient.Close()
	}
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.String("app.storage", app.config.Storage.Driver),
			zap.String("app.queue", app.config.Queue.Driver),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
