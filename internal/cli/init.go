// Package cli provides common initialization for the olyfo binaries:
// environment loading, logging, configuration, backend and session setup,
// and signal handling.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/backend"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/cache"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/config"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/session"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// Bootstrap loads .env and the configuration and builds the logger.
// validate is the check to run, e.g. (*config.Config).Validate; the
// process exits when it fails.
func Bootstrap(validate func(*config.Config) error) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg)
	if validate != nil {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed", log.FieldError, err)
			os.Exit(1)
		}
	}
	return cfg, logger
}

// OpenBackend creates the configured data backend or exits.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldBackend, cfg.DataBackend, log.FieldError, err)
		os.Exit(1)
	}
	return res
}

// OpenSessions builds the session manager on the configured store. In-memory
// sessions are registered with caches for sweeping. The returned function
// releases the store.
func OpenSessions(ctx context.Context, logger *log.Logger, cfg *config.Config, auth store.Authenticator, caches *cache.Manager) (*session.Manager, func()) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
		secret = session.RandomSecret()
	}
	codec, err := session.NewTokenCodec(secret)
	if err != nil {
		logger.Error("Invalid session secret", log.FieldError, err)
		os.Exit(1)
	}

	var (
		st      session.Store
		release = func() {}
	)
	switch cfg.SessionStore {
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to connect session store", "store", "redis", log.FieldError, err)
			os.Exit(1)
		}
		st = rs
		release = func() { _ = rs.Close() }
	default:
		ms := session.NewMemoryStore(10000)
		if caches != nil {
			caches.Register(ms.Cache())
		}
		st = ms
	}

	m, err := session.NewManager(session.Options{
		Authenticator: auth,
		Store:         st,
		Codec:         codec,
		TTL:           cfg.SessionTTL,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("Failed to create session manager", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Session store ready", "store", cfg.SessionStore, "ttl", cfg.SessionTTL.String())
	return m, release
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs with a context bounded by timeout before the returned context is
// cancelled; done is closed once cleanup has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
		close(done)
	}()

	return ctx, done
}
