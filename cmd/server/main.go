package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/pprofhandler"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/storefront/api/handler"
	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/config"
	"github.com/fastygo/storefront/internal/eventbus"
	"github.com/fastygo/storefront/internal/infrastructure/deadletter"
	"github.com/fastygo/storefront/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/storefront/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/storefront/internal/infrastructure/redis"
	"github.com/fastygo/storefront/internal/locking"
	"github.com/fastygo/storefront/internal/metrics"
	"github.com/fastygo/storefront/internal/middleware"
	"github.com/fastygo/storefront/internal/relay"
	"github.com/fastygo/storefront/internal/router"
	"github.com/fastygo/storefront/internal/services"
	"github.com/fastygo/storefront/internal/services/lifecycle"
	"github.com/fastygo/storefront/pkg/clock"
	"github.com/fastygo/storefront/pkg/httpcontext"
	"github.com/fastygo/storefront/pkg/logger"
	"github.com/fastygo/storefront/repository"
	"github.com/fastygo/storefront/repository/memory"
	"github.com/fastygo/storefront/repository/postgres"
	redisRepo "github.com/fastygo/storefront/repository/redis"
	authUC "github.com/fastygo/storefront/usecase/auth"
	catalogUC "github.com/fastygo/storefront/usecase/catalog"
	purchaseUC "github.com/fastygo/storefront/usecase/purchase"
	userUC "github.com/fastygo/storefront/usecase/user"
)

type repositories struct {
	users     repository.UserRepository
	products  repository.ProductRepository
	purchases repository.PurchaseRepository
	sessions  repository.SessionRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
		NodeID:   cfg.NodeID,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	clk := clock.NewRealClock()

	var (
		pool  *pgxpool.Pool
		repos repositories
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}

		pool, err = pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName+"-"+cfg.NodeID, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})

		sessionClient, err := redisInfra.NewClient(cfg.Redis)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.RegisterCloser("redis_sessions", sessionClient.Close)

		repos = repositories{
			users:     postgres.NewUserRepository(pool),
			products:  postgres.NewProductRepository(pool),
			purchases: postgres.NewPurchaseRepository(pool),
			sessions:  redisRepo.NewSessionRepository(sessionClient, cfg.Redis.SessionTTL),
		}
	case config.StorageMemory:
		store := memory.NewStore()
		if err := memory.Seed(appCtx, store); err != nil {
			zapLogger.Fatal("memory seed failed", zap.Error(err))
		}
		repos = repositories{
			users:     store.Users(),
			products:  store.Products(),
			purchases: store.Purchases(),
			sessions:  memory.NewSessionRepository(cfg.Redis.SessionTTL),
		}
		zapLogger.Warn("running on in-memory storage; data is lost on restart")
	}

	deadLetters, err := deadletter.Open(cfg.DeadLetter.Path)
	if err != nil {
		zapLogger.Fatal("failed to open dead-letter store", zap.Error(err))
	}
	manager.RegisterCloser("deadletter", deadLetters.Close)

	cleaner, err := deadletter.NewCleaner(deadLetters, deadletter.CleanerConfig{
		Retention: time.Duration(cfg.DeadLetter.RetentionHours) * time.Hour,
		Interval:  cfg.DeadLetter.CleanupInterval,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to schedule dead-letter cleanup", zap.Error(err))
	}
	cleaner.Start()
	manager.RegisterStopper("deadletter_cleaner", cleaner.Stop)

	// Relay connections are created lazily: an unreachable broker puts the
	// relay into local mode instead of aborting startup.
	publisher, err := redisInfra.NewLazyClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("invalid redis configuration", zap.Error(err))
	}
	subscriber, err := redisInfra.NewLazyClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("invalid redis configuration", zap.Error(err))
	}

	eventRelay := relay.NewRedis(publisher, subscriber, cfg.Redis.Channel, zapLogger, relay.WithDeadLetter(deadLetters))
	dispatcher := eventbus.NewDispatcher(cfg.EventBus.Workers, zapLogger)
	bus := eventbus.New(cfg.NodeID, dispatcher, eventRelay, zapLogger)
	bus.Start()
	manager.Register("eventbus", bus.Close)

	ledger := locking.NewLedger(bus, clk, zapLogger)
	reaper, err := locking.NewReaper(ledger, locking.ReaperConfig{
		MaxAge:   cfg.Locking.MaxAge,
		Interval: cfg.Locking.ReapInterval,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to schedule lock reaper", zap.Error(err))
	}
	reaper.Start()
	manager.RegisterStopper("lock_reaper", reaper.Stop)

	mon := monitor.New(monitor.Dependencies{
		Postgres:   pool,
		Redis:      publisher,
		DeadLetter: deadLetters,
		Relay:      eventRelay,
	}, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = uuid.NewString()
		zapLogger.Warn("JWT_SECRET not set; using a random per-process secret")
	}
	tokens := authUC.NewTokens(secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)

	authUseCase := authUC.New(repos.users, repos.sessions, tokens, cfg.Redis.SessionTTL, clk, zapLogger)
	authUseCase.OnSessionClosed(func(ctx context.Context, sessionID string) {
		ledger.ReleaseScope(ctx, sessionID)
	})
	userUseCase := userUC.New(repos.users, bus, zapLogger)
	catalogUseCase := catalogUC.New(repos.products, bus, zapLogger)
	purchaseUseCase := purchaseUC.New(repos.purchases, repos.products, repos.users, bus, clk, zapLogger)

	bus.Register(services.NewSessionGuard(userUseCase, authUseCase, cfg.Context.RequestTimeout, zapLogger))

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:       apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Purchase:   apiHandler.NewPurchaseHandler(purchaseUseCase, userUseCase, ctxAdapter, zapLogger),
		Lock:       apiHandler.NewLockHandler(ledger, ctxAdapter, zapLogger),
		User:       apiHandler.NewUserHandler(userUseCase, ctxAdapter, zapLogger),
		Product:    apiHandler.NewProductHandler(catalogUseCase, ctxAdapter, zapLogger),
		Message:    apiHandler.NewMessageHandler(bus, clk, ctxAdapter, zapLogger),
		DeadLetter: apiHandler.NewDeadLetterHandler(deadLetters, ctxAdapter, zapLogger),
		Health:     apiHandler.NewHealthHandler(mon, cfg.NodeID, ctxAdapter, zapLogger),
	}
	if cfg.HTTP.EnableMetrics {
		handlers.Metrics = metrics.Handler()
	}
	if cfg.HTTP.EnablePprof {
		handlers.Pprof = pprofhandler.PprofHandler
	}

	authMiddleware := middleware.JWTAuth(authUseCase, cfg.Context.RequestTimeout, zapLogger)
	r := router.New(handlers, authMiddleware)

	// Runs right after the HTTP server stops, while the bus can still relay.
	manager.Register("shutdown_notice", func(ctx context.Context) error {
		bus.Post(ctx, domain.ShutdownEvent{})
		return nil
	})

	server := &fasthttp.Server{
		Handler:            r.Handler,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		Concurrency:        cfg.HTTP.MaxConn,
		Name:               cfg.AppName,
		CloseOnShutdown:    true,
		MaxRequestBodySize: 1 << 20,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("node_id", cfg.NodeID),
			zap.String("storage", cfg.Storage),
		)
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
