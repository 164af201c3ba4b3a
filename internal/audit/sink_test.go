package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWriter is a thread-safe mock writer.
type mockWriter struct {
	mu     sync.Mutex
	events []*Event
	fails  int
}

func (w *mockWriter) WriteEvent(event *Event) error {
	return w.WriteBatch([]*Event{event})
}

func (w *mockWriter) WriteBatch(events []*Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fails > 0 {
		w.fails--
		return errors.New("sink unavailable")
	}
	w.events = append(w.events, events...)
	return nil
}

func (w *mockWriter) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBatchSink(t *testing.T) {
	mock := &mockWriter{}
	sink := NewBatchSink(mock, BatchOptions{Size: 5, Interval: 100 * time.Millisecond, Logger: quietLogger()})
	defer sink.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.WriteEvent(&Event{ID: fmt.Sprintf("obj-%d", i)}))
	}
	assert.Equal(t, 0, mock.len())

	// Interval flush.
	assert.Eventually(t, func() bool { return mock.len() == 3 }, time.Second, 10*time.Millisecond)

	// Size flush.
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.WriteEvent(&Event{ID: fmt.Sprintf("batch-%d", i)}))
	}
	assert.Eventually(t, func() bool { return mock.len() == 8 }, time.Second, 5*time.Millisecond)
}

func TestBatchSink_CloseFlushes(t *testing.T) {
	mock := &mockWriter{}
	sink := NewBatchSink(mock, BatchOptions{Size: 100, Interval: time.Hour, Logger: quietLogger()})

	require.NoError(t, sink.WriteEvent(&Event{ID: "pending"}))
	require.NoError(t, sink.Close())
	assert.Equal(t, 1, mock.len())
	require.NoError(t, sink.Close())
}

func TestBatchSink_Retries(t *testing.T) {
	mock := &mockWriter{fails: 2}
	sink := NewBatchSink(mock, BatchOptions{
		Size:         100,
		Interval:     time.Hour,
		RetryCount:   2,
		RetryBackoff: time.Millisecond,
		Logger:       quietLogger(),
	})

	require.NoError(t, sink.WriteEvent(&Event{ID: "retried"}))
	require.NoError(t, sink.Close())
	assert.Equal(t, 1, mock.len())
}

func TestHTTPSink(t *testing.T) {
	var (
		mu       sync.Mutex
		captured []*Event
		header   string
		requests atomic.Int32
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var events []*Event
		if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		captured = append(captured, events...)
		header = r.Header.Get("X-Test")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewHTTPSink(ts.URL, map[string]string{"X-Test": "true"}, codecs.NewJSONIter())

	require.NoError(t, sink.WriteEvent(&Event{Operation: OpCreateDataKey, ID: "obj"}))
	require.NoError(t, sink.WriteBatch([]*Event{{ID: "a"}, {ID: "b"}}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 3)
	assert.Equal(t, OpCreateDataKey, captured[0].Operation)
	assert.Equal(t, "true", header)
	assert.Equal(t, int32(2), requests.Load())
}

func TestHTTPSink_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := NewHTTPSink(ts.URL, nil, codecs.NewStdJSON()).WriteEvent(&Event{ID: "obj"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink := NewFileSink(path, codecs.NewJSONIter())

	require.NoError(t, sink.WriteEvent(&Event{Operation: OpPutEnvelope, ID: "one"}))
	require.NoError(t, sink.WriteEvent(&Event{Operation: OpDeleteEnvelope, ID: "two"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)

	var second Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, OpDeleteEnvelope, second.Operation)
	assert.Equal(t, "two", second.ID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriterSink(t *testing.T) {
	var buf strings.Builder
	sink := NewWriterSink(&buf, codecs.NewStdJSON())

	require.NoError(t, sink.WriteEvent(&Event{Operation: OpDecryptDataKey, ID: "obj", Success: true}))
	assert.JSONEq(t,
		`{"timestamp":"0001-01-01T00:00:00Z","operation":"datakey.decrypt","id":"obj","success":true,"duration_ms":0}`,
		buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
