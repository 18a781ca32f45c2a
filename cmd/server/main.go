package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/seckill-cache/internal/adapter/handler"
	"github.com/rl1809/seckill-cache/internal/adapter/storage"
	"github.com/rl1809/seckill-cache/internal/codec"
	"github.com/rl1809/seckill-cache/internal/config"
	"github.com/rl1809/seckill-cache/internal/core/cache"
	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/core/idgen"
	"github.com/rl1809/seckill-cache/internal/core/lock"
	"github.com/rl1809/seckill-cache/internal/core/service"
	"github.com/rl1809/seckill-cache/internal/logger"
	"github.com/rl1809/seckill-cache/internal/metrics"
	"github.com/rl1809/seckill-cache/internal/workerpool"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	err = run(cfg, log)
	if err != nil {
		log.Error("Server exited with error", zap.Error(err))
	}
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting seckill service",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("grpc_addr", cfg.Server.GRPCAddr),
		zap.String("cache_strategy", cfg.Cache.Strategy),
		zap.String("cache_codec", cfg.Cache.Codec))

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	log.Info("Connected to MySQL")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if cfg.MySQL.Migrate {
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info("Connected to Redis")
	kv := storage.NewRedisAdapter(rdb)

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// Cache rebuild workers
	pool := workerpool.NewWorkerPool(workerpool.Config{
		Name:       "cache-rebuild",
		MaxWorkers: cfg.Cache.RebuildWorkers,
		Logger:     log,
	})

	strategy, err := cache.ParseStrategy(cfg.Cache.Strategy)
	if err != nil {
		return err
	}
	cacheClient := cache.NewClient(kv, pool, cache.Options{
		NullTTL: cfg.Cache.NullTTL,
		LockTTL: cfg.Cache.LockTTL,
		LockRetry: lock.RetryPolicy{
			InitialInterval: cfg.Cache.LockRetry.InitialInterval,
			MaxInterval:     cfg.Cache.LockRetry.MaxInterval,
			MaxAttempts:     cfg.Cache.LockRetry.MaxAttempts,
			MaxElapsed:      cfg.Cache.LockRetry.MaxElapsed,
		},
		RebuildTimeout: cfg.Cache.RebuildTimeout,
		Logger:         log,
		Metrics:        m,
	})

	shopCodec, err := newCodec[domain.Shop](cfg.Cache)
	if err != nil {
		return err
	}
	voucherCodec, err := newCodec[domain.SeckillVoucher](cfg.Cache)
	if err != nil {
		return err
	}
	shopTypeCodec, err := newCodec[domain.ShopType](cfg.Cache)
	if err != nil {
		return err
	}

	// Initialize services
	shopService := service.NewShopService(mysqlAdapter,
		cache.NewTyped[int64, domain.Shop](cacheClient, shopCodec),
		service.ShopConfig{Strategy: strategy, TTL: cfg.Cache.ShopTTL, Logger: log})
	shopTypeService := service.NewShopTypeService(mysqlAdapter, kv, shopTypeCodec, cfg.Cache.ShopTypeTTL, log)
	orderService := service.NewVoucherOrderService(mysqlAdapter,
		cache.NewTyped[int64, domain.SeckillVoucher](cacheClient, voucherCodec),
		lock.NewLocker(kv),
		idgen.NewGenerator(kv, idgen.WithMetrics(m)),
		service.VoucherOrderConfig{
			VoucherTTL:   cfg.Seckill.VoucherTTL,
			OrderLockTTL: cfg.Seckill.OrderLockTTL,
			Logger:       log,
			Metrics:      m,
		})

	if strategy == cache.StrategyLogicalExpire {
		for _, id := range cfg.Cache.WarmShopIDs {
			if err := shopService.Warm(ctx, id, cfg.Cache.ShopTTL); err != nil {
				log.Warn("Failed to warm shop cache", zap.Int64("shop_id", id), zap.Error(err))
			}
		}
		log.Info("Shop cache warmed", zap.Int("count", len(cfg.Cache.WarmShopIDs)))
	}

	// Initialize gRPC server
	grpcHandler := handler.NewGRPCHandler(orderService, log, m)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcHandler.UnaryInterceptor))
	grpcHandler.Register(grpcServer)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.SeckillServiceName, healthpb.HealthCheckResponse_SERVING)

	// Initialize HTTP server
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	httpHandler := handler.NewHTTPHandler(shopService, shopTypeService, orderService, log, m)
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      httpHandler.Router(metricsHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 2)

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			log.Info("gRPC server listening", zap.String("address", cfg.Server.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				serverErrors <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if cfg.Server.HTTPAddr != "" {
		go func() {
			log.Info("HTTP server listening", zap.String("address", cfg.Server.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Received signal", zap.String("signal", sig.String()))
	case runErr = <-serverErrors:
		log.Error("Server error", zap.Error(runErr))
	}

	log.Info("Shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	log.Info("gRPC server stopped")

	// Let in-flight rebuilds finish before the connections close
	if err := pool.Stop(cfg.Cache.RebuildTimeout); err != nil {
		log.Warn("Rebuild pool stop", zap.Error(err))
	}
	log.Info("Rebuild workers stopped", zap.Uint64("completed", pool.Stats().CompletedTasks))

	return runErr
}

func newCodec[V any](cfg config.CacheConfig) (codec.Codec[V], error) {
	inner, err := codec.New[V](cfg.Codec)
	if err != nil {
		return nil, err
	}
	return codec.Limit[V]{Inner: inner, MaxDecode: cfg.MaxValueBytes}, nil
}
