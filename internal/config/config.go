package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kenneth/base64-type/internal/b64"
	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreS3     = "s3"
)

// KeyProviderStatic is the only key provider currently supported.
const KeyProviderStatic = "static"

// Config holds the daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Keys    KeysConfig    `yaml:"keys"`
	Store   StoreConfig   `yaml:"store"`
	Tracing TracingConfig `yaml:"tracing"`
	Audit   AuditConfig   `yaml:"audit"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KeysConfig holds the master keys used to wrap data keys.
type KeysConfig struct {
	Provider      string            `yaml:"provider"`
	ActiveVersion int               `yaml:"active_version"`
	MasterKeys    []MasterKeyConfig `yaml:"master_keys"`
}

// MasterKeyConfig is one versioned master key. Key is standard base64 and
// must decode to exactly 32 bytes; padding may be omitted.
type MasterKeyConfig struct {
	Version int        `yaml:"version"`
	Key     b64.Base64 `yaml:"key"`
}

// StoreConfig selects where key envelopes are persisted.
type StoreConfig struct {
	Type  string      `yaml:"type"`
	Codec string      `yaml:"codec"`
	Redis RedisConfig `yaml:"redis"`
	S3    S3Config    `yaml:"s3"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// S3Config holds settings for storing envelopes as S3 object metadata.
type S3Config struct {
	Provider     string `yaml:"provider"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TracingConfig configures OpenTelemetry request tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Audit sink types.
const (
	SinkStdout = "stdout"
	SinkFile   = "file"
	SinkHTTP   = "http"
)

// AuditConfig configures the key operation audit trail.
type AuditConfig struct {
	Enabled            bool       `yaml:"enabled"`
	MaxEvents          int        `yaml:"max_events"`
	Sink               SinkConfig `yaml:"sink"`
	RedactMetadataKeys []string   `yaml:"redact_metadata_keys"`
}

// SinkConfig selects where audit events are written. A positive BatchSize or
// FlushInterval buffers events before they reach the sink.
type SinkConfig struct {
	Type          string            `yaml:"type"`
	FilePath      string            `yaml:"file_path"`
	Endpoint      string            `yaml:"endpoint"`
	Headers       map[string]string `yaml:"headers"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Keys: KeysConfig{
			Provider: KeyProviderStatic,
		},
		Store: StoreConfig{
			Type:  StoreMemory,
			Codec: codecs.NameJSONIter,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "keywrap:envelope:",
			},
			S3: S3Config{
				Provider: "aws",
				Prefix:   "envelopes/",
				Region:   "us-east-1",
			},
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "keywrapd",
			SampleRatio: 1,
		},
		Audit: AuditConfig{
			MaxEvents: 1000,
			Sink: SinkConfig{
				Type: SinkStdout,
			},
		},
	}
}

// Load reads the YAML file at path (if any) over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LISTEN_ADDR":    &c.Server.ListenAddr,
		"LOG_LEVEL":      &c.Logging.Level,
		"LOG_FORMAT":     &c.Logging.Format,
		"STORE_TYPE":     &c.Store.Type,
		"REDIS_ADDR":     &c.Store.Redis.Addr,
		"REDIS_PASSWORD": &c.Store.Redis.Password,
		"S3_BUCKET":      &c.Store.S3.Bucket,
		"S3_ENDPOINT":    &c.Store.S3.Endpoint,
		"S3_REGION":      &c.Store.S3.Region,
		"S3_ACCESS_KEY":  &c.Store.S3.AccessKey,
		"S3_SECRET_KEY":  &c.Store.S3.SecretKey,

		"OTEL_EXPORTER_OTLP_ENDPOINT": &c.Tracing.Endpoint,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("MASTER_KEY"); ok && v != "" && len(c.Keys.MasterKeys) == 0 {
		key, err := b64.DecodeBase64(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MASTER_KEY: %w", err)
		}
		c.Keys.MasterKeys = []MasterKeyConfig{{Version: 1, Key: key}}
		if c.Keys.ActiveVersion == 0 {
			c.Keys.ActiveVersion = 1
		}
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("server.listen_addr is required"))
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	errs = append(errs, c.Keys.validate()...)
	errs = append(errs, c.Store.validate()...)
	errs = append(errs, c.Tracing.validate()...)
	errs = append(errs, c.Audit.validate()...)

	return errors.Join(errs...)
}

func (k *KeysConfig) validate() []error {
	var errs []error

	if k.Provider != KeyProviderStatic {
		errs = append(errs, fmt.Errorf("keys.provider %q is not supported", k.Provider))
	}
	if len(k.MasterKeys) == 0 {
		return append(errs, fmt.Errorf("keys.master_keys: at least one master key is required"))
	}

	seen := make(map[int]bool, len(k.MasterKeys))
	for i, mk := range k.MasterKeys {
		if mk.Version <= 0 {
			errs = append(errs, fmt.Errorf("keys.master_keys[%d]: version must be positive", i))
		}
		if seen[mk.Version] {
			errs = append(errs, fmt.Errorf("keys.master_keys[%d]: duplicate version %d", i, mk.Version))
		}
		seen[mk.Version] = true
		if _, err := mk.Key.Array32(); err != nil {
			errs = append(errs, fmt.Errorf("keys.master_keys[%d] (version %d): %w", i, mk.Version, err))
		}
	}
	if !seen[k.ActiveVersion] {
		errs = append(errs, fmt.Errorf("keys.active_version %d does not match any master key", k.ActiveVersion))
	}
	return errs
}

func (s *StoreConfig) validate() []error {
	var errs []error

	if _, err := codecs.ByName(s.Codec); err != nil {
		errs = append(errs, fmt.Errorf("store.codec: %w", err))
	}

	switch s.Type {
	case StoreMemory:
	case StoreRedis:
		if s.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("store.redis.addr is required"))
		}
		if s.Redis.TTL < 0 {
			errs = append(errs, fmt.Errorf("store.redis.ttl must not be negative"))
		}
	case StoreS3:
		if s.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("store.s3.bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.type %q is not supported (memory, redis, s3)", s.Type))
	}
	return errs
}

func (t *TracingConfig) validate() []error {
	if !t.Enabled {
		return nil
	}
	var errs []error
	switch t.Exporter {
	case "stdout":
	case "otlp":
		if t.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing.endpoint is required for the otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", t.Exporter))
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0, 1]"))
	}
	return errs
}

func (a *AuditConfig) validate() []error {
	if !a.Enabled {
		return nil
	}
	var errs []error
	if a.MaxEvents < 0 {
		errs = append(errs, fmt.Errorf("audit.max_events must not be negative"))
	}
	switch a.Sink.Type {
	case SinkStdout:
	case SinkFile:
		if a.Sink.FilePath == "" {
			errs = append(errs, fmt.Errorf("audit.sink.file_path is required for the file sink"))
		}
	case SinkHTTP:
		if a.Sink.Endpoint == "" {
			errs = append(errs, fmt.Errorf("audit.sink.endpoint is required for the http sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.sink.type must be stdout, file or http, got %q", a.Sink.Type))
	}
	if a.Sink.RetryCount < 0 {
		errs = append(errs, fmt.Errorf("audit.sink.retry_count must not be negative"))
	}
	return errs
}

// Logger builds a logrus logger from the logging section.
func (l LoggingConfig) Logger() (*logrus.Logger, error) {
	logger := logrus.New()
	if err := l.Apply(logger); err != nil {
		return nil, err
	}
	return logger, nil
}

// Apply sets the level and formatter of an existing logger.
func (l LoggingConfig) Apply(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	if l.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}
