package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// steppingClock moves one second forward on each call.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (sc *steppingClock) Now() time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.now = sc.now.Add(time.Second)
	return sc.now
}

func TestCreateLogFilePath(t *testing.T) {
	ts := time.Date(2023, 7, 2, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "20230702.090503.dev.log"), CreateLogFilePath("logs", false, ts))
	assert.Equal(t, filepath.Join("logs", "20230702.090503.prod.log"), CreateLogFilePath("logs", true, ts))
}

func TestRSyncWrite(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "logs")
	clock := &steppingClock{now: NewMockClocker().Now()}
	w := NewRSyncWriter(&Config{LogFolder: folder, LogMaxSize: 1}, clock)
	defer w.Close()

	chunk := bytes.Repeat([]byte("a"), megabyte/2+1)
	for i := 0; i < 3; i++ {
		n, err := w.Write(chunk)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	require.NoError(t, w.Sync())

	entries, err := os.ReadDir(folder)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = w.Write(bytes.Repeat([]byte("a"), megabyte+1))
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "logs")
	config := &Config{LogFolder: folder, LogMaxSize: 1, IsProduction: true, GitTag: "v0.1.0"}
	clock := NewMockClocker()
	w := NewRSyncWriter(config, clock)
	defer w.Close()

	logger, flush := SetupLogging(config, w, NewTickClock(clock))
	logger.Info("catalog ready", zap.String("book.isbn", testISBN))
	require.NoError(t, flush())

	data, err := os.ReadFile(CreateLogFilePath(folder, true, clock.Now()))
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, `"msg":"catalog ready"`)
	assert.Contains(t, line, `"book.isbn":"9780306406157"`)
	assert.Contains(t, line, `"app.tag":"v0.1.0"`)
	assert.Contains(t, line, `"ts":"2023-07-02T00:00:00.000Z"`)
}

func TestIDsHandler(t *testing.T) {
	h := NewIDsHandler()
	id := h.Generate(RequestIDPrefix)
	assert.True(t, strings.HasPrefix(id, "r:"))
	assert.True(t, h.IsValid(id, RequestIDPrefix))
	assert.False(t, h.IsValid(id, JobIDPrefix))
	assert.False(t, h.IsValid("r:not-a-uuid", RequestIDPrefix))
	assert.False(t, h.IsValid("", RequestIDPrefix))
	assert.NotEqual(t, id, h.Generate(RequestIDPrefix))
}

func TestClock(t *testing.T) {
	assert.Equal(t, time.UTC, NewClock(true).Now().Location())
	assert.Equal(t, time.Local, NewClock(false).Now().Location())

	tc := NewTickClock(NewMockClocker())
	assert.Equal(t, NewMockClocker().Now(), tc.Now())
	ticker := tc.NewTicker(time.Millisecond)
	defer ticker.Stop()
	<-ticker.C
}
