// Command keywrapd serves data key wrapping and base64 conversion over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kenneth/base64-type/internal/api"
	"github.com/kenneth/base64-type/internal/audit"
	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/kenneth/base64-type/internal/config"
	"github.com/kenneth/base64-type/internal/crypto"
	"github.com/kenneth/base64-type/internal/metrics"
	"github.com/kenneth/base64-type/internal/s3"
	"github.com/kenneth/base64-type/internal/store"
	"github.com/kenneth/base64-type/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		watch       = flag.Bool("watch", false, "Reload the logging section when the config file changes")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "keywrapd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, watch bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := cfg.Logging.Logger()
	if err != nil {
		return err
	}
	metrics.SetVersion(version)

	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())

	tp, err := tracing.Setup(ctx, cfg.Tracing, version, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	keys, err := newKeyManager(cfg.Keys)
	if err != nil {
		return err
	}
	defer keys.Close(context.Background())
	m.SetActiveKeyVersion(cfg.Keys.ActiveVersion)

	codec, err := codecs.ByName(cfg.Store.Codec)
	if err != nil {
		return err
	}

	st, err := newStore(ctx, cfg.Store, codec)
	if err != nil {
		return err
	}
	defer st.Close()

	trail, err := audit.NewLoggerFromConfig(cfg.Audit, codec, logger)
	if err != nil {
		return fmt.Errorf("failed to set up audit log: %w", err)
	}
	defer trail.Close()

	handler := api.NewHandler(keys, st, logger, m,
		api.WithCodec(codec),
		api.WithStoreBackend(cfg.Store.Type),
		api.WithAudit(trail),
		api.WithHealthDetails(crypto.DetectCapabilities()),
	)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      api.NewRouter(handler, logger, m, tp.Tracer()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if watch && configPath != "" {
		w, err := config.NewWatcher(configPath, logger)
		if err != nil {
			return err
		}
		go func() {
			_ = w.Run(ctx, func(next *config.Config) {
				if err := next.Logging.Apply(logger); err != nil {
					logger.WithError(err).Warn("Ignoring logging change")
					return
				}
				logger.WithField("level", next.Logging.Level).Info("Logging configuration reloaded")
			})
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":           cfg.Server.ListenAddr,
			"store":          cfg.Store.Type,
			"codec":          cfg.Store.Codec,
			"active_version": cfg.Keys.ActiveVersion,
			"version":        version,
		}).Info("Starting keywrapd")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func newKeyManager(cfg config.KeysConfig) (*crypto.StaticKeyManager, error) {
	keys := make([]crypto.StaticKey, 0, len(cfg.MasterKeys))
	for _, mk := range cfg.MasterKeys {
		keys = append(keys, crypto.StaticKey{Version: mk.Version, Key: mk.Key})
	}
	km, err := crypto.NewStaticKeyManager(crypto.StaticKeyOptions{
		Keys:          keys,
		ActiveVersion: cfg.ActiveVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager: %w", err)
	}
	return km, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig, codec codecs.Codec) (store.EnvelopeStore, error) {
	switch cfg.Type {
	case config.StoreRedis:
		return store.NewRedisStore(store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
			Codec:    codec,
		})
	case config.StoreS3:
		client, err := s3.NewClient(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		return s3.NewEnvelopeStore(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return store.NewMemoryStore(), nil
	}
}
