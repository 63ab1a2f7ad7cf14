package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/ecgdrive/internal/config"
	"github.com/teemow/ecgdrive/internal/credentials"
	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/redisstore"
	"github.com/teemow/ecgdrive/internal/reports"
)

// app wires the credential store, authorizer, Drive client and uploader
// from a validated configuration.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	redis   *redis.Client
	store   credentials.Store
	pending google.PendingStore
	stop    func()

	auth     *google.Authorizer
	drive    *drive.Client
	uploader *reports.Uploader
}

// newApp builds the components. metrics may be nil.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*app, error) {
	a := &app{cfg: cfg, logger: logger, stop: func() {}}

	key, err := credentials.DeriveEncryptionKey(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid token encryption key: %w", err)
	}
	enc, err := credentials.NewTokenEncryption(key)
	if err != nil {
		return nil, err
	}
	if !enc.Enabled() {
		logger.Warn("Token encryption disabled, set ECGDRIVE_TOKEN_ENCRYPTION_KEY to encrypt stored tokens")
	}

	switch cfg.Storage {
	case config.StorageRedis:
		a.redis, err = redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.store = redisstore.NewTokenStore(a.redis, cfg.RedisPrefix, enc)
		a.pending = redisstore.NewPendingStore(a.redis, cfg.RedisPrefix)
	default:
		a.store = credentials.NewFileStore(cfg.TokenFile, enc)
		mem := google.NewMemoryPendingStore(logger)
		a.pending = mem
		a.stop = mem.Stop
	}

	oauthConfig, err := google.LoadClientConfig(cfg.ClientOptions())
	if err != nil {
		a.Close()
		return nil, err
	}

	audit := instrumentation.NewAuditLogger(logger, instrumentation.DefaultConfig().AuditLogging)

	a.auth = google.NewAuthorizer(oauthConfig, a.store, a.pending,
		google.WithRefreshMargin(cfg.RefreshMargin),
		google.WithLogger(logger),
		google.WithMetrics(metrics),
		google.WithAuditLogger(audit),
		google.WithGrantChangeHook(func() {
			if a.drive != nil {
				a.drive.ForgetFolders()
			}
		}))

	a.drive, err = drive.NewClient(ctx, a.auth, a.auth,
		drive.WithLogger(logger),
		drive.WithMetrics(metrics),
		drive.WithRetryPolicy(cfg.RetryPolicy()),
		drive.WithResumableThreshold(cfg.ResumableThreshold))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.uploader = reports.NewUploader(a.drive, a.auth,
		reports.WithFolderLayout(cfg.Layout()),
		reports.WithRootFolder(cfg.RootFolder),
		reports.WithLogger(logger),
		reports.WithMetrics(metrics),
		reports.WithAuditLogger(audit))

	return a, nil
}

// Close stops background work and closes the Redis connection.
func (a *app) Close() {
	a.stop()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis connection", "error", err)
		}
	}
}
