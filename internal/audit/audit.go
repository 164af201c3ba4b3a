package audit

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/kenneth/base64-type/internal/config"
	"github.com/sirupsen/logrus"
)

// Operation names an audited key operation.
type Operation string

const (
	// OpCreateDataKey is the generation and wrapping of a new data key.
	OpCreateDataKey Operation = "datakey.create"
	// OpDecryptDataKey is the unwrapping of a stored data key.
	OpDecryptDataKey Operation = "datakey.decrypt"
	// OpPutEnvelope is the upload of a caller-supplied envelope.
	OpPutEnvelope Operation = "envelope.put"
	// OpDeleteEnvelope is the removal of a stored envelope.
	OpDeleteEnvelope Operation = "envelope.delete"
)

// Event is a single audit record.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Operation  Operation         `json:"operation"`
	ID         string            `json:"id,omitempty"`
	KeyID      string            `json:"key_id,omitempty"`
	KeyVersion int               `json:"key_version,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Logger records audit events.
type Logger interface {
	// Log records event. Sink failures never fail the audited operation.
	Log(event *Event)

	// Events returns the most recent events, oldest first.
	Events() []*Event

	// Close flushes and closes the underlying sink.
	Close() error
}

// EventWriter writes audit events to a destination.
type EventWriter interface {
	WriteEvent(event *Event) error
}

type auditLogger struct {
	mu         sync.Mutex
	events     []*Event
	maxEvents  int
	writer     EventWriter
	redactKeys []string
	logger     *logrus.Logger
}

// NewLogger creates an audit logger that keeps the last maxEvents events in
// memory and forwards every event to writer.
func NewLogger(maxEvents int, writer EventWriter, redactKeys []string, logger *logrus.Logger) Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if writer == nil {
		writer = NewWriterSink(os.Stdout, codecs.NewJSONIter())
	}
	return &auditLogger{
		events:     make([]*Event, 0, maxEvents),
		maxEvents:  maxEvents,
		writer:     writer,
		redactKeys: redactKeys,
		logger:     logger,
	}
}

// NewLoggerFromConfig builds the audit logger described by cfg. A disabled
// configuration yields a logger that drops every event.
func NewLoggerFromConfig(cfg config.AuditConfig, codec codecs.Codec, logger *logrus.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Discard(), nil
	}

	var writer EventWriter
	switch cfg.Sink.Type {
	case config.SinkHTTP:
		writer = NewHTTPSink(cfg.Sink.Endpoint, cfg.Sink.Headers, codec)
	case config.SinkFile:
		writer = NewFileSink(cfg.Sink.FilePath, codec)
	case config.SinkStdout, "":
		writer = NewWriterSink(os.Stdout, codec)
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Sink.Type)
	}

	if cfg.Sink.BatchSize > 0 || cfg.Sink.FlushInterval > 0 {
		writer = NewBatchSink(writer, BatchOptions{
			Size:         cfg.Sink.BatchSize,
			Interval:     cfg.Sink.FlushInterval,
			RetryCount:   cfg.Sink.RetryCount,
			RetryBackoff: cfg.Sink.RetryBackoff,
			Logger:       logger,
		})
	}

	return NewLogger(cfg.MaxEvents, writer, cfg.RedactMetadataKeys, logger), nil
}

func (l *auditLogger) Log(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Metadata = l.redactMetadata(event.Metadata)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.WriteEvent(event); err != nil {
		l.logger.WithError(err).WithField("operation", event.Operation).Warn("Failed to write audit event")
	}

	if l.maxEvents <= 0 {
		return
	}
	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
}

func (l *auditLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}

func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// redactMetadata masks configured keys, copying the map only when needed.
func (l *auditLogger) redactMetadata(metadata map[string]string) map[string]string {
	if len(l.redactKeys) == 0 || len(metadata) == 0 {
		return metadata
	}

	var clone map[string]string
	for _, key := range l.redactKeys {
		if _, ok := metadata[key]; !ok {
			continue
		}
		if clone == nil {
			clone = make(map[string]string, len(metadata))
			for k, v := range metadata {
				clone[k] = v
			}
		}
		clone[key] = "[REDACTED]"
	}
	if clone == nil {
		return metadata
	}
	return clone
}

type discard struct{}

// Discard returns a Logger that drops every event.
func Discard() Logger { return discard{} }

func (discard) Log(*Event)       {}
func (discard) Events() []*Event { return nil }
func (discard) Close() error     { return nil }
