package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/pubsub"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/realtime"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository/postgresql"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/server"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/service"
)

// bridgeRunner is a Bridge with a subscription loop of its own.
type bridgeRunner interface {
	realtime.Bridge
	Run(ctx context.Context) error
}

func main() {
	cfg := config.Load()

	log := logger.New(cfg.Env)
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		zap.L().Fatal("database init failed", zap.Error(err))
	}
	defer database.Close()

	orderRepo := postgresql.NewOrderRepo(database)
	userRepo := postgresql.NewUserRepo(database)
	sessionRepo := postgresql.NewSessionRepo(database)
	menuRepo := postgresql.NewMenuRepo(database)
	reviewRepo := postgresql.NewReviewRepo(database)
	paymentRepo := postgresql.NewPaymentRepo(database)

	orderCache := cache.NewOrderCache(orderRepo)
	if err := orderCache.LoadInitialData(ctx); err != nil {
		zap.L().Warn("order cache warmup failed, starting cold", zap.Error(err))
	}

	hub := realtime.NewHub(nil, cfg.SendBuffer)

	var bridge bridgeRunner
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		bridge = pubsub.NewRedisBridge(rdb, hub, orderCache)
		zap.L().Info("using redis bridge", zap.String("addr", cfg.RedisAddr))
	} else {
		bridge = pubsub.NewConsoleBridge()
		zap.L().Warn("REDIS_ADDR not set, events stay on this instance")
	}
	hub.SetBridge(bridge)

	var producer kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewWriterProducer(cfg.KafkaBrokers)
		zap.L().Info("using kafka producer", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		producer = kafka.NewConsoleProducer()
		zap.L().Warn("KAFKA_BROKERS not set, order events go to the console")
	}
	appender := kafka.NewAppender(producer, kafka.OrderEventsTopic, 256)

	verifier := auth.NewVerifier(cfg.JWTSecret, sessionRepo, cfg.VerifyTimeout)

	svc := service.New(orderRepo, menuRepo, orderCache, hub, appender)
	gate := realtime.NewGate(verifier, hub, svc)

	srv := server.New(svc, userRepo, sessionRepo, menuRepo, reviewRepo, paymentRepo,
		verifier, gate, cfg.TokenTTL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appender.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return srv.Run(gctx, cfg.HTTPPort)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("http shutdown failed", zap.Error(err))
		}
		hub.Shutdown()
		appender.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
	zap.L().Info("server stopped")
}
