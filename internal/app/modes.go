package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Pablito-AI/playmark-mvp/internal/server"
	"github.com/Pablito-AI/playmark-mvp/internal/server/handler"
	"github.com/Pablito-AI/playmark-mvp/internal/server/ws"
	"github.com/Pablito-AI/playmark-mvp/internal/service"
)

// shutdownGrace is how long in-flight requests get to finish on shutdown.
const shutdownGrace = 10 * time.Second

// ServeMode runs the HTTP API, the WebSocket hub, the lifecycle sweep loop,
// and the archive cron until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub needs the signal bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	var cachePinger handler.Pinger
	if deps.RedisClient != nil {
		cachePinger = deps.RedisClient
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.PgClient, cachePinger, a.logger),
		Markets:     handler.NewMarketHandler(svcs.markets, svcs.bets, a.logger),
		Bets:        handler.NewBetHandler(svcs.bets, a.logger),
		Profile:     handler.NewProfileHandler(svcs.users, a.logger),
		Leaderboard: handler.NewLeaderboardHandler(svcs.stats, a.logger),
		Admin:       handler.NewAdminHandler(svcs.resolver, svcs.markets, deps.Admins, a.logger),
		Cron:        handler.NewCronHandler(svcs.lifecycle, a.cfg.Auth.CronSecret, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, deps.Verifier, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Lifecycle sweep loop.
	g.Go(func() error {
		return svcs.lifecycle.RunLoop(ctx, a.cfg.Ledger.SweepInterval.Duration)
	})

	// Archive cron, only with blob storage.
	if svcs.archiver != nil {
		g.Go(func() error {
			return svcs.archiver.RunCron(ctx, a.cfg.Ledger.ArchiveInterval.Duration)
		})
	}

	return g.Wait()
}

// SweepMode runs a single lifecycle sweep and exits, for deployments that
// schedule sweeps externally instead of running the loop.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	lifecycle := service.NewLifecycleService(deps.Ledger, deps.LockManager, a.logger)
	n, err := lifecycle.CloseExpired(ctx)
	if err != nil {
		return fmt.Errorf("app: sweep: %w", err)
	}
	a.logger.InfoContext(ctx, "sweep complete", slog.Int64("closed", n))
	return nil
}

// services bundles the constructed engines.
type services struct {
	bets      *service.BetService
	markets   *service.MarketService
	users     *service.UserService
	stats     *service.StatsService
	resolver  *service.ResolveService
	lifecycle *service.LifecycleService
	archiver  *service.ArchiveService
}

func (a *App) buildServices(deps *Dependencies) *services {
	var archiver *service.ArchiveService
	var resolveArchiver service.Archiver
	if deps.BlobWriter != nil {
		archiver = service.NewArchiveService(deps.Ledger, deps.BlobWriter, a.logger)
		resolveArchiver = archiver
	}

	return &services{
		bets: service.NewBetService(
			deps.Ledger, deps.PoolCache, deps.Leaderboard, deps.SignalBus, a.logger),
		markets: service.NewMarketService(
			deps.Ledger, deps.PoolCache, deps.RateLimiter, deps.Admins, a.logger),
		users: service.NewUserService(deps.Ledger, deps.Leaderboard, a.logger),
		stats: service.NewStatsService(deps.Ledger, deps.Leaderboard, a.logger),
		resolver: service.NewResolveService(
			deps.Ledger, deps.Admins, deps.PoolCache, deps.Leaderboard,
			deps.SignalBus, deps.Notifier, resolveArchiver, a.logger),
		lifecycle: service.NewLifecycleService(deps.Ledger, deps.LockManager, a.logger),
		archiver:  archiver,
	}
}
