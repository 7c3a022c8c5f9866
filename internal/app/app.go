package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"geotech-lab-api/internal/cache"
	"geotech-lab-api/internal/config"
	"geotech-lab-api/internal/database"
	"geotech-lab-api/internal/event"
	"geotech-lab-api/internal/handler"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/ratelimit"
	"geotech-lab-api/internal/repository"
	"geotech-lab-api/internal/router"
	"geotech-lab-api/internal/service"
	"geotech-lab-api/internal/websocket"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := db.EnsureSchema(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}
	slog.Info("database ready")

	checks := map[string]handler.HealthCheck{"database": db.Health}

	var (
		revocations service.RevocationCache
		limiter     ratelimit.Store
		sweepers    []service.Sweeper
	)
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })

		revocations = cache.NewRevocationCache(client)
		limiter = ratelimit.NewRedisStore(client, "")
		checks["redis"] = redisPing(client)
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	} else {
		memory := ratelimit.NewMemoryStore(nil)
		limiter = memory
		sweepers = append(sweepers, memory)
		slog.Info("redis not configured, using in-process rate limiting")
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	authLogRepo := repository.NewAuthLogRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	apiqueRepo := repository.NewApiqueRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	requestRepo := repository.NewServiceRequestRepository(pool)
	expenseRepo := repository.NewExpenseRepository(pool)

	issuer, err := service.NewTokenIssuer(service.TokenConfig{
		Secret:      cfg.JWTSecret,
		Issuer:      cfg.JWTIssuer,
		AccessTTL:   cfg.JWTAccessTTL,
		RefreshTTL:  cfg.JWTRefreshTTL,
		RememberTTL: cfg.JWTRefreshRememberTTL,
	}, tokenRepo)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	sessions := service.NewSessionRegistry(sessionRepo, revocations, cfg.JWTAccessTTL)
	lockout := service.NewLockoutTracker(model.LockoutPolicy{
		MaxAttempts: cfg.LockoutMaxAttempts,
		Window:      cfg.LockoutWindow,
	}, attemptRepo, userRepo)

	authService, err := service.NewAuthService(userRepo, tokenRepo, issuer, sessions, lockout, authLogRepo, service.AuthServiceConfig{
		BcryptCost: cfg.BcryptCost,
		ResetTTL:   cfg.PasswordResetTTL,
	})
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		if err := authService.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to create bootstrap admin: %w", err)
		}
	}

	bus := event.NewBus()
	authLogService := service.NewAuthLogService(authLogRepo)
	userService := service.NewUserService(userRepo, authService, lockout, authLogRepo)
	catalogService := service.NewCatalogService(catalogRepo)
	requestService := service.NewServiceRequestService(requestRepo, catalogRepo, bus)
	projectService := service.NewProjectService(projectRepo, bus)
	apiqueService := service.NewApiqueService(apiqueRepo, projectRepo, bus)
	profileService := service.NewProfileService(profileRepo, projectRepo, bus)
	expenseService := service.NewExpenseService(expenseRepo)

	background, stopBackground := context.WithCancel(context.Background())
	a.cleanupFuncs = append(a.cleanupFuncs, stopBackground)

	hub := websocket.NewHub(bus)
	go hub.Run(background)

	maintenance := service.NewMaintenanceService(service.MaintenanceConfig{
		Interval:               cfg.MaintenanceInterval,
		SessionIdleTimeout:     cfg.SessionInactivityTimeout,
		AuthLogRetention:       cfg.AuthLogRetention,
		FailedAttemptRetention: cfg.FailedAttemptRetention,
	}, sessions, tokenRepo, lockout, authLogService, sweepers...)
	maintenance.Start(background)

	handler.ExposeInternalErrors(cfg.IsDevelopment())

	appRouter := router.New(cfg, authService, limiter, router.Handlers{
		Health:         handler.NewHealthHandler(checks),
		Auth:           handler.NewAuthHandler(authService, cfg.TrustProxy, cfg.IsDevelopment()),
		User:           handler.NewUserHandler(userService, cfg.TrustProxy),
		AuthLog:        handler.NewAuthLogHandler(authLogService),
		Catalog:        handler.NewCatalogHandler(catalogService),
		ServiceRequest: handler.NewServiceRequestHandler(requestService),
		Project:        handler.NewProjectHandler(projectService),
		Apique:         handler.NewApiqueHandler(apiqueService),
		Profile:        handler.NewProfileHandler(profileService),
		Expense:        handler.NewExpenseHandler(expenseService),
		WebSocket:      hub.ServeWS(websocket.NewUpgrader(cfg.CORSOrigins)),
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func redisPing(client *redis.Client) handler.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

// cleanup releases resources in reverse order of acquisition.
func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
