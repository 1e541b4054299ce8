package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"slotengine/internal/availability"
	"slotengine/internal/config"
	"slotengine/internal/events"
	"slotengine/internal/events/kafkapub"
	"slotengine/internal/hold"
	"slotengine/internal/maintenance"
	"slotengine/internal/service/scheduling"
	"slotengine/internal/store"
	"slotengine/internal/store/memory"
	"slotengine/internal/store/postgres"
	"slotengine/internal/telemetry"
	"slotengine/internal/transport/api"
	grpcTransport "slotengine/internal/transport/grpc"
	httpTransport "slotengine/internal/transport/http"
)

const serviceName = "slotengine-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info(
		"starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("storage", cfg.StorageDriver),
		slog.String("notify_mode", cfg.NotifyMode),
		slog.String("log_level", cfg.LogLevel),
	)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: cfg.OTelServiceName, Endpoint: cfg.OTelEndpoint})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	holds, closeHolds, err := openHolds(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeHolds()

	bus := events.NewBus()
	defer bus.Close()
	notifier := events.Fanout{bus}

	var feed *events.Feed
	if cfg.NotifyMode == "poll" || cfg.NotifyMode == "both" {
		feed = events.NewFeed(cfg.FeedSize)
		notifier = append(notifier, feed)
	}
	if cfg.NotifyMode == "push" || cfg.NotifyMode == "both" {
		pub := kafkapub.New(kafkapub.Config{
			Brokers:      strings.Join(cfg.KafkaBrokers, ","),
			Topic:        cfg.KafkaTopic,
			WriteTimeout: 5 * time.Second,
		}, log)
		if pub != nil {
			notifier = append(notifier, pub)
			defer func() {
				if err := pub.Close(); err != nil {
					log.Warn("kafka publisher close failed", slog.Any("err", err))
				}
			}()
		}
	}

	windows, err := availability.NewCached(availability.NewStoreSource(st), availability.DefaultCacheSize)
	if err != nil {
		return err
	}
	defer windows.Watch(bus)()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	svc := scheduling.NewService(st, scheduling.Config{
		Location:    loc,
		HorizonDays: cfg.HorizonDays,
		WeeksAhead:  cfg.WeeksAhead,
		LowWater:    cfg.LowWater,
		HoldTTL:     cfg.HoldTTL,
	},
		scheduling.WithAvailability(windows),
		scheduling.WithHolds(holds),
		scheduling.WithNotifier(notifier),
		scheduling.WithLogger(log),
	)

	var changeFeed api.ChangeFeed
	if feed != nil {
		changeFeed = feed
	}
	handler := api.NewHandler(svc, changeFeed)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(handler, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}

	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(httpTransport.NewServer(handler, log).Router(), "slotengine"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	maint, err := maintenance.New(svc, maintenance.Config{
		ExtendSpec:      cfg.ExtendCron,
		MaterializeSpec: cfg.MaterializeCron,
		AuditSpec:       cfg.AuditCron,
		RepairSpec:      cfg.RepairCron,
		Location:        loc,
	}, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return maint.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdown(log, grpcServer, httpServer, cfg.ShutdownTimeout)
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.StorageDriver == "memory" {
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, nil, err
	}
	closeDB := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}
	if cfg.DatabaseMigrate {
		if err := postgres.Migrate(db.DB, log); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return postgres.NewRepo(db), closeDB, nil
}

func openHolds(ctx context.Context, cfg config.Config, log *slog.Logger) (hold.Store, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured; slot holds are process-local")
		return hold.NewMemory(time.Now), func() {}, nil
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		log.Error("redis connection failed", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
		return nil, nil, err
	}
	return hold.NewRedis(rdb, cfg.HoldPrefix), func() {
		if err := rdb.Close(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
	}, nil
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, gs *grpc.Server, hs *http.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		log.Warn("http shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		gs.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
