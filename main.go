package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"campus-chat/internal/auth"
	"campus-chat/internal/cache"
	"campus-chat/internal/chat"
	"campus-chat/internal/config"
	"campus-chat/internal/db"
	"campus-chat/internal/grpcserver"
	"campus-chat/internal/handlers"
	"campus-chat/internal/invalidation"
	"campus-chat/internal/logging"
	"campus-chat/internal/middleware"
	"campus-chat/internal/observability"
	"campus-chat/internal/rabbitmq"
	"campus-chat/internal/repositories"
	"campus-chat/internal/tasks"
	"campus-chat/internal/telemetry"
	"campus-chat/internal/views"
	"campus-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.App.Name, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.App.Name, cfg.Otel.Endpoint, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	database, err := db.Connect(ctx, cfg.DB.DSN, cfg.DB.Migrate, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	backend := connectCache(ctx, cfg, logger)

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.AuditExchange, logger)
	defer auditPublisher.Close()
	logger.Info("audit publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(auditPublisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(auditPublisher)))
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.AMQP.AuditRouting, cfg.App.Name, cfg.App.Env, logger)

	if cfg.AMQP.URL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.EventExchange)
		if err != nil {
			logger.Warn("ws event publisher disabled", zap.Error(err))
		} else {
			observability.SetPublisher(eventPublisher, logger)
			defer eventPublisher.Close()
		}
	}

	messageRepo := repositories.NewMessageRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	userRepo := repositories.NewUserRepo(database)
	builder := views.NewBuilder(repositories.NewViewRepo(database))

	dispatcher := tasks.NewDispatcher(logger)
	queue := tasks.NewQueue(ctx, tasks.Options{
		Backend:   cfg.Tasks.Backend,
		URL:       cfg.AMQP.URL,
		Exchange:  cfg.Tasks.Exchange,
		Queue:     cfg.Tasks.Queue,
		Workers:   cfg.Tasks.Workers,
		QueueSize: cfg.Tasks.QueueSize,
		Timeout:   cfg.Tasks.Timeout,
	}, dispatcher, logger)
	logger.Info("task queue ready", zap.String("mode", tasks.Mode(queue)))

	warmer := invalidation.NewWarmer(builder, backend, backend, invalidation.WarmerOptions{
		TTL:               cfg.Cache.TTL,
		TrackingTTL:       cfg.Cache.TrackingTTL,
		DashboardCooldown: cfg.Cache.DashboardCooldown,
	}, logger)
	coordinator := invalidation.NewCoordinator(backend, backend, queue, logger)
	invalidation.Register(dispatcher, coordinator, warmer)

	hub := ws.NewHub(logger)
	chatService := chat.NewService(roomRepo, messageRepo, backend, coordinator, hub, logger, chat.WithAuditor(auditEmitter))
	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret, userRepo, backend, cfg.Auth.Timeout, logger)

	viewHandler := handlers.NewViewHandler(builder, backend, backend, queue, cfg.Cache.TrackingTTL, logger)
	messageHandler := handlers.NewMessageHandler(chatService)
	invalidationHandler := handlers.NewInvalidationHandler(coordinator)
	roomWS := ws.NewRoomWebSocketHandler(hub, chatService, validator, ws.SessionConfig{
		SendBuffer:      cfg.WS.SendBuffer,
		WriteWait:       cfg.WS.WriteWait,
		PongWait:        cfg.WS.PongWait,
		PingPeriod:      cfg.WS.PingPeriod,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
	}, logger)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.App.Name))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "task_queue": tasks.Mode(queue)})
	})

	authMiddleware := middleware.AuthMiddleware(validator)

	router.GET("/rooms/:room_id", authMiddleware, viewHandler.RoomDetail)
	router.GET("/home", authMiddleware, viewHandler.Dashboard)
	router.GET("/users/:user_id", authMiddleware, viewHandler.UserProfile)
	router.POST("/rooms/:room_id/messages", authMiddleware, messageHandler.PostMessage)
	router.DELETE("/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.POST("/internal/invalidations", invalidationHandler.PostChange)

	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.App.DebugRoutes)

	httpServer := &http.Server{Addr: ":" + cfg.App.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	grpcServer := grpcserver.New(cfg.App.Name, logger)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.Serve(grpcListener)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		grpcServer.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.Shutdown()
		if qerr := queue.Close(); qerr != nil {
			logger.Warn("task queue close failed", zap.Error(qerr))
		}
		if terr := shutdownTracing(shutdownCtx); terr != nil {
			logger.Warn("tracing shutdown failed", zap.Error(terr))
		}
		return err
	})

	grpcServer.SetServing(true)
	return g.Wait()
}

// connectCache returns Redis when it answers a ping and the in-process store otherwise.
func connectCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) cache.Backend {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := cache.NewRedisStore(client)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, using in-memory cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return cache.NewMemoryStore()
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return store
}
