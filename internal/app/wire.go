package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pablito-AI/playmark-mvp/internal/auth"
	s3blob "github.com/Pablito-AI/playmark-mvp/internal/blob/s3"
	"github.com/Pablito-AI/playmark-mvp/internal/cache/redis"
	"github.com/Pablito-AI/playmark-mvp/internal/config"
	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/notify"
	"github.com/Pablito-AI/playmark-mvp/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. Optional
// backends (redis, s3) leave their fields nil when disabled; the services
// degrade gracefully without them.
type Dependencies struct {
	Ledger   domain.Ledger
	PgClient *postgres.Client

	RedisClient *redis.Client
	PoolCache   domain.PoolCache
	Leaderboard domain.LeaderboardCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	BlobWriter domain.BlobWriter

	Verifier *auth.TokenVerifier
	Admins   domain.AdminPolicy
	Notifier *notify.Notifier
}

// Wire constructs the concrete dependency implementations from the
// configuration, returning them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.PgClient = pgClient
	deps.Ledger = postgres.NewLedger(pgClient.Pool())

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RedisClient = redisClient
		deps.PoolCache = redis.NewPoolCache(redisClient)
		deps.Leaderboard = redis.NewLeaderboard(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 archive storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Identity ---
	deps.Verifier = auth.NewTokenVerifier(cfg.Auth.TokenSecret)
	deps.Admins = auth.NewEmailPolicy(cfg.Auth.AdminEmails)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
