package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"OptEdge/internal/domain/repository"
	"OptEdge/internal/service/marketdata"
	"OptEdge/pkg/config"
	xhttp "OptEdge/pkg/http"
	applogger "OptEdge/pkg/logger"
)

// App encapsulates the application lifecycle: source chain warm-up, HTTP
// serving and graceful teardown of every side channel.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	resolver   *marketdata.Resolver
	journal    repository.Journal
	publisher  repository.Publisher
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	resolver *marketdata.Resolver,
	journal repository.Journal,
	publisher repository.Publisher,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		handler:   handler,
		resolver:  resolver,
		journal:   journal,
		publisher: publisher,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm up the source chain. Failures are per-source and non-fatal.
	a.resolver.Open(ctx)
	a.log.Info("market data resolver ready",
		applogger.Strings("symbols", a.cfg.MarketData.Symbols),
	)

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.resolver.Close(); err != nil {
		a.log.Warn("resolver close error", applogger.Error(err))
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("journal close error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
