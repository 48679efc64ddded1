// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/config"
	"github.com/Shivanand-hulikatti/event-lottery/internal/database"
	"github.com/Shivanand-hulikatti/event-lottery/internal/handler"
	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/random"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
	"github.com/Shivanand-hulikatti/event-lottery/internal/scheduler"
	"github.com/Shivanand-hulikatti/event-lottery/internal/service"
	"github.com/Shivanand-hulikatti/event-lottery/internal/telemetry"
)

const serviceName = "event-lottery"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	shutdownTelemetry, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// ── 2. Connect to storage ────────────────────────────────────────────
	var docs repository.Documents
	if dsn := cfg.PostgresDSN(); dsn != "" {
		pool, err := database.NewPool(ctx, dsn, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("database schema: %w", err)
		}
		docs = repository.NewPostgresDocuments(pool)
		logger.Info("connected to PostgreSQL")
	} else {
		docs = repository.NewMemoryDocuments()
		logger.Warn("no database configured, documents are kept in memory")
	}

	inboxDB, err := database.OpenSQLite(cfg.NotificationsDBPath)
	if err != nil {
		return fmt.Errorf("notifications store: %w", err)
	}
	defer inboxDB.Close()
	inbox := repository.NewNotificationRepository(inboxDB)

	shuffler, err := random.NewShuffler()
	if err != nil {
		return fmt.Errorf("seed shuffler: %w", err)
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	syncOpts := service.SyncOptions{
		Backoff:     cfg.ProfileSyncBackoff,
		IdleTimeout: cfg.ProfileSyncIdle,
		Logger:      logger.With("component", "profile-sync"),
	}
	users := service.NewController[model.User, *model.User](service.NewUserProfileStore(docs), model.NewUser, syncOpts)
	organizers := service.NewController[model.Organizer, *model.Organizer](service.NewOrganizerStore(docs), model.NewOrganizer, syncOpts)
	defer users.Close()
	defer organizers.Close()
	go logSyncEvents(logger, "user", users.Events())
	go logSyncEvents(logger, "organizer", organizers.Events())

	fanout := service.NewNotificationFanout(inbox, cfg.NotifyConcurrency, logger)
	invitations := service.NewInvitationService(docs, logger)
	reconciler := service.NewReconciler(docs, invitations, logger)

	h := handler.New(handler.Services{
		Events:        service.NewEventService(docs, organizers, fanout, logger),
		Entrants:      service.NewEntrantListStore(docs, logger),
		Draws:         service.NewLotteryDrawEngine(docs, shuffler, fanout, logger),
		Invitations:   invitations,
		Profiles:      service.NewProfileService(docs, users, organizers),
		Notifications: inbox,
	}, logger)

	// ── 4. Background jobs ───────────────────────────────────────────────
	jobs := scheduler.New(logger, 30*time.Second)
	if err := jobs.Add("reconcile-invitations", cfg.ReconcileSchedule, func(ctx context.Context) error {
		report, err := reconciler.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Debug("reconcile sweep", "report", report)
		return nil
	}); err != nil {
		return err
	}
	jobs.Start()

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := newServer(fmt.Sprintf(":%s", cfg.Port), handler.NewRouter(h))

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newServer builds the HTTP server. Request contexts derive from a base
// context that Shutdown cancels, so long-lived countdown streams end instead
// of holding shutdown open until its deadline.
func newServer(addr string, h http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

func logSyncEvents(logger *slog.Logger, kind string, events <-chan service.SyncEvent) {
	for ev := range events {
		if ev.Err != nil {
			logger.Warn("profile sync failed", "kind", kind, "id", ev.ID, "attempt", ev.Attempt, "error", ev.Err)
			continue
		}
		logger.Debug("profile synced", "kind", kind, "id", ev.ID, "attempt", ev.Attempt, "existence", ev.Existence.String())
	}
}
