package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startRedisDockerContainer(t *testing.T) (string, func()) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("redis", "7.0.10-alpine", nil)
	if err != nil {
		t.Fatalf("Failed to start redis: %+v", err)
	}

	// build address the container is listening on
	addr := net.JoinHostPort("localhost", resource.GetPort("6379/tcp"))

	// ensure to wait for the container to be ready
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr, ContextTimeoutEnabled: true})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})

	if err != nil {
		t.Fatalf("Failed to ping Redis: %+v", err)
	}

	destroyFunc := func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return addr, destroyFunc
}

func TestRedisStoreAndQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping docker based test in short mode")
	}
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	client, err := GetRedisClient(&Config{Redis: RedisConfig{Host: host, Port: port}})
	require.NoError(t, err)
	defer client.Close()

	t.Run("Store", func(t *testing.T) {
		runBookStorageTests(t, NewRedisBookStorage(zap.NewNop(), client))
	})

	t.Run("Queue FIFO", func(t *testing.T) {
		q := NewRedisQueue(client, "alexandria:test:jobs")
		ctx := context.Background()
		submitted := time.Date(2023, 7, 2, 0, 0, 0, 0, time.UTC)
		require.NoError(t, q.Push(ctx, Job{ID: "j:1", Kind: JobFetch, ISBN: testISBN, SubmittedAt: submitted}))
		require.NoError(t, q.Push(ctx, Job{ID: "j:2", Kind: JobDelete, ISBN: testISBN}))

		job, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, "j:1", job.ID)
		assert.Equal(t, JobFetch, job.Kind)
		assert.Equal(t, testISBN, job.ISBN)
		assert.True(t, submitted.Equal(job.SubmittedAt))

		job, err = q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, "j:2", job.ID)
	})

	t.Run("Queue Pop Cancelled", func(t *testing.T) {
		q := NewRedisQueue(client, "alexandria:test:empty")
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := q.Pop(ctx)
		assert.Error(t, err)
	})
}
