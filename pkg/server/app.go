package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "ScalpPulse/internal/domain/repository"
	"ScalpPulse/internal/session"
	"ScalpPulse/pkg/config"
	xhttp "ScalpPulse/pkg/http"
	applogger "ScalpPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle: the redis command
// listener, the session manager and the HTTP status server.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	manager    *session.Manager
	commands   drepo.CommandSource
	audit      drepo.AuditSink
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	manager *session.Manager,
	commands drepo.CommandSource,
	audit drepo.AuditSink,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		manager:  manager,
		commands: commands,
		audit:    audit,
		httpServer: xhttp.NewServer(httpHandler,
			xhttp.WithPort(cfg.Server.Port),
			xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		),
	}
}

// Run starts the application and blocks until interrupted or the command
// listener fails.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- a.commands.Listen(ctx, a.manager.HandleCommand)
	}()
	a.log.Info("command listener started",
		applogger.String("environment", a.cfg.Environment),
	)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		a.log.Info("shutdown signal received")
	case err := <-listenErr:
		if err != nil {
			a.log.Error("command listener failed", applogger.Error(err))
			a.shutdown(ctx)
			return err
		}
		a.log.Info("command listener stopped")
	}

	a.shutdown(ctx)
	return nil
}

// shutdown stops sessions first so every SESSION_STOPPED event is published
// before the bus goes away.
func (a *App) shutdown(ctx context.Context) {
	a.log.Info("shutting down...")

	a.manager.StopAll(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Warn("audit sink close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
