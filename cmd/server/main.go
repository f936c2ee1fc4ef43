package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"walletcore/internal/config"
	"walletcore/internal/handler"
	"walletcore/internal/infrastructure/cache"
	"walletcore/internal/infrastructure/database"
	"walletcore/internal/infrastructure/lock"
	"walletcore/internal/infrastructure/mq"
	"walletcore/internal/job"
	"walletcore/internal/service"
	"walletcore/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)

	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	locker := lock.NewRedisLocker(
		redisClient,
		cfg.Business.LockTTL(),
		cfg.Business.LockRetryInterval(),
		cfg.Business.LockMaxRetries,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, cfg, logger)
	go outboxSender.Start(ctx)

	reconciler := service.NewReconciler(db, cfg, logger)
	reconcileSweep := job.NewReconcileSweep(db, reconciler, cfg, logger)
	go reconcileSweep.Start(ctx)

	router := handler.SetupRouter(db, locker, cfg, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infow("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("shutdown error", "err", err)
	}

	logger.Info("server stopped")
}
