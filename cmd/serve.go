package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-server/internal/auth"
	"chat-server/internal/config"
	"chat-server/internal/db"
	grpcserver "chat-server/internal/grpc"
	"chat-server/internal/handlers"
	"chat-server/internal/logging"
	"chat-server/internal/middleware"
	"chat-server/internal/models"
	"chat-server/internal/observability"
	"chat-server/internal/rabbitmq"
	"chat-server/internal/repositories"
	"chat-server/internal/repositories/memory"
	"chat-server/internal/retention"
	"chat-server/internal/telemetry"
	"chat-server/internal/ws"
)

const shutdownNotice = "Server is restarting"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, websocket and gRPC health servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log.Level, cfg.Server.Environment)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

type stores struct {
	users    repositories.UserRepository
	messages repositories.MessageRepository
	friends  repositories.FriendRepository
	groups   repositories.GroupRepository
	close    func() error
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stores, error) {
	if cfg.Database.Memory {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := memory.New()
		return stores{users: mem, messages: mem, friends: mem, groups: mem, close: func() error { return nil }}, nil
	}

	database, err := db.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return stores{}, err
	}
	if err := db.Migrate(ctx, database, logger); err != nil {
		database.Close()
		return stores{}, err
	}
	logger.Info("postgres connected", zap.String("host", dsnHost(cfg.Database.DSN)))
	return stores{
		users:    repositories.NewUserRepo(database),
		messages: repositories.NewMessageRepo(database),
		friends:  repositories.NewFriendRepo(database),
		groups:   repositories.NewGroupRepo(database),
		close:    database.Close,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	publisher := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
	defer func() { _ = publisher.Close() }()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingAudit, cfg.Tracing.ServiceName, cfg.Server.Environment, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authn := middleware.NewAuthenticator(tokens, st.users)
	hub := ws.NewHub(ws.NewRegistry(), logger)
	presence := ws.NewPresence(hub, logger)
	router := ws.NewRouter(hub, presence, st.messages, st.users, st.groups, audit, cfg.WS.HistoryLimit, logger)
	wsHandler := ws.NewUserWebSocketHandler(presence, router, authn, ws.ClientOptions{
		SendBuffer:     cfg.WS.SendBuffer,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		EventsPerSec:   cfg.WS.EventsPerSec,
		EventBurst:     cfg.WS.EventBurst,
	}, logger)

	sweeper, err := retention.New(st.messages, router, cfg.Retention.Schedule, logger)
	if err != nil {
		return err
	}
	stopSweeper := sweeper.Start(ctx)
	defer stopSweeper()

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.Tracing.ServiceName),
		logging.GinLogger(logger),
		observability.HTTPMetricsMiddleware(),
	)
	registerRoutes(engine, routeDeps{
		auth:     handlers.NewAuthHandler(st.users, tokens, cfg.Auth.BootstrapAdmins, audit, logger),
		profile:  handlers.NewProfileHandler(st.users, hub, cfg.Auth.AdminTag, audit, logger),
		friends:  handlers.NewFriendHandler(st.friends, hub, logger),
		groups:   handlers.NewGroupHandler(st.groups, st.users, audit, logger),
		channels: handlers.NewChannelHandler(st.messages, router, hub, logger),
		ws:       wsHandler,
		authn:    authn,
	})
	handlers.RegisterDebugRoutes(engine, audit, !cfg.IsProduction())

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	health := grpcserver.NewHealthServer(logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := health.ListenAndServe(cfg.Server.GRPCAddr); err != nil {
			errCh <- err
		}
	}()
	health.SetServing(true)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	disconnectAll(hub, logger)
	health.Stop()
	return runErr
}

// disconnectAll closes hijacked websocket connections, which http.Server
// shutdown does not track.
func disconnectAll(hub *ws.Hub, logger *zap.Logger) {
	clients := hub.Registry().Clients()
	for _, c := range clients {
		hub.SendTo(c, models.SystemEvent{Type: models.OutSystem, Content: shutdownNotice})
		c.Close()
	}
	logger.Info("websocket clients closed", zap.Int("count", len(clients)))
}

func dsnHost(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return u.Host
}
