package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/sirupsen/logrus"
)

// BatchWriter is implemented by sinks that can write several events at once.
type BatchWriter interface {
	WriteBatch(events []*Event) error
}

// BatchOptions configures a BatchSink.
type BatchOptions struct {
	Size         int
	Interval     time.Duration
	RetryCount   int
	RetryBackoff time.Duration
	Logger       *logrus.Logger
}

// BatchSink buffers events and flushes them to the wrapped writer when the
// buffer fills or the flush interval elapses.
type BatchSink struct {
	wrapped       EventWriter
	buffer        []*Event
	bufferSize    int
	flushInterval time.Duration
	retryCount    int
	retryBackoff  time.Duration
	logger        *logrus.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// NewBatchSink starts a batched sink. Close must be called to flush the
// remaining events.
func NewBatchSink(wrapped EventWriter, opts BatchOptions) *BatchSink {
	if opts.Size <= 0 {
		opts.Size = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	s := &BatchSink{
		wrapped:       wrapped,
		buffer:        make([]*Event, 0, opts.Size),
		bufferSize:    opts.Size,
		flushInterval: opts.Interval,
		retryCount:    opts.RetryCount,
		retryBackoff:  opts.RetryBackoff,
		logger:        opts.Logger,
		closeChan:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// WriteEvent adds an event to the batch.
func (s *BatchSink) WriteEvent(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, event)
	if len(s.buffer) >= s.bufferSize {
		events := s.drainLocked()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.writeWithRetry(events)
		}()
	}
	return nil
}

// Close stops the flush loop and flushes remaining events.
func (s *BatchSink) Close() error {
	s.closeOnce.Do(func() { close(s.closeChan) })
	s.wg.Wait()
	if closer, ok := s.wrapped.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (s *BatchSink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.closeChan:
			s.flush()
			return
		}
	}
}

func (s *BatchSink) flush() {
	s.mu.Lock()
	events := s.drainLocked()
	s.mu.Unlock()

	if len(events) > 0 {
		_ = s.writeWithRetry(events)
	}
}

// drainLocked returns the buffered events and empties the buffer.
// Caller must hold s.mu.
func (s *BatchSink) drainLocked() []*Event {
	if len(s.buffer) == 0 {
		return nil
	}
	events := make([]*Event, len(s.buffer))
	copy(events, s.buffer)
	s.buffer = s.buffer[:0]
	return events
}

func (s *BatchSink) writeWithRetry(events []*Event) error {
	var err error
	for i := 0; i <= s.retryCount; i++ {
		if bw, ok := s.wrapped.(BatchWriter); ok {
			err = bw.WriteBatch(events)
		} else {
			err = nil
			for _, event := range events {
				if e := s.wrapped.WriteEvent(event); e != nil {
					err = e
				}
			}
		}
		if err == nil {
			return nil
		}
		if i < s.retryCount {
			time.Sleep(s.retryBackoff * time.Duration(1<<uint(i)))
		}
	}

	s.logger.WithError(err).WithFields(logrus.Fields{
		"events":  len(events),
		"retries": s.retryCount,
	}).Error("Failed to flush audit events")
	return err
}

// HTTPSink posts events as a JSON array to an HTTP endpoint.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
	codec    codecs.Codec
}

// NewHTTPSink creates a new HTTP sink.
func NewHTTPSink(endpoint string, headers map[string]string, codec codecs.Codec) *HTTPSink {
	return &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		headers:  headers,
		codec:    codec,
	}
}

// WriteEvent writes a single event.
func (s *HTTPSink) WriteEvent(event *Event) error {
	return s.WriteBatch([]*Event{event})
}

// WriteBatch writes a batch of events in one request.
func (s *HTTPSink) WriteBatch(events []*Event) error {
	data, err := s.codec.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal audit events: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http sink returned status: %s", resp.Status)
	}
	return nil
}

// FileSink appends events to a file, one JSON document per line.
type FileSink struct {
	path  string
	codec codecs.Codec
	mu    sync.Mutex
}

// NewFileSink creates a new file sink.
func NewFileSink(path string, codec codecs.Codec) *FileSink {
	return &FileSink{path: path, codec: codec}
}

// WriteEvent writes a single event.
func (s *FileSink) WriteEvent(event *Event) error {
	data, err := s.codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// WriterSink writes events to an io.Writer, one JSON document per line.
type WriterSink struct {
	w     io.Writer
	codec codecs.Codec
	mu    sync.Mutex
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer, codec codecs.Codec) *WriterSink {
	return &WriterSink{w: w, codec: codec}
}

// WriteEvent writes a single event.
func (s *WriterSink) WriteEvent(event *Event) error {
	data, err := s.codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(data, '\n'))
	return err
}
