// Package server initializes and runs the download service: it opens the
// database, migrates it, connects object storage and the optional rate
// limiter, then runs the gRPC, HTTP and sweeper loops until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/dlkeeper/internal/server/config"
	"github.com/dmitrijs2005/dlkeeper/internal/server/httpserver"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/dlkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dlkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/dlkeeper/internal/server/grpc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	closers    []func() error
	grpcServer *gs.GRPCServer
	httpServer *httpserver.HTTPServer
	sweeper    *services.Sweeper
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, err
	}
	proxies, err := config.ParseProxies(c.TrustedProxies)
	if err != nil {
		return nil, err
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := blobstore.NewS3Store(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, closers: []func() error{db.Close}}

	var limiter ratelimit.Limiter
	if c.RedisAddr != "" {
		client, err := ratelimit.Connect(ctx, c.RedisAddr)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		limiter = ratelimit.NewRedisLimiter(client, c.RateLimitPerMinute, time.Minute)
	} else {
		logger.Warn(ctx, "rate limiting disabled, no redis address configured")
	}

	m := metrics.New()

	resolver := services.NewFileKeyResolver(db, rm, c.DefaultFileKey, logger)
	issuer := services.NewIssuerService(db, rm, resolver, c, m, logger)
	catalog := services.NewCatalogService(db, rm, logger)
	redemption := services.NewRedemptionService(db, rm, m, logger)
	downloads := services.NewDownloadService(redemption, store, m, logger)

	app.grpcServer = gs.NewGRPCServer(c.GRPCAddr, logger, issuer, catalog, c.SecretKey)
	app.httpServer = httpserver.NewHTTPServer(c.HTTPAddr, logger, downloads, redemption, limiter, m, c.RequestTimeout)
	app.httpServer.SetTrustedProxies(proxies)
	app.sweeper = services.NewSweeper(db, rm, c.SweepInterval, m, logger)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(context.Background(), "close error", "error", err)
		}
	}
}

// Run blocks until a signal arrives or one of the servers fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.grpcServer.Run(ctx); err != nil {
			app.logger.Error(ctx, "grpc server stopped", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.Run(ctx); err != nil {
			app.logger.Error(ctx, "http server stopped", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	app.close()
	app.logger.Info(context.Background(), "App stopped")
}
