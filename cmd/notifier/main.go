package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	contracts "clubportal/contracts/mq"
	"clubportal/internal/config"
	"clubportal/internal/handler"
	"clubportal/internal/httpserver"
	"clubportal/internal/mqhandler"
	"clubportal/internal/repository"
	"clubportal/internal/service"
	"clubportal/pkg/db"
	"clubportal/pkg/logger"
	"clubportal/pkg/mailer"
	"clubportal/pkg/mq"
	redisclient "clubportal/pkg/redis"
	"clubportal/pkg/util"
)

const notificationQueue = "notification.created.q"

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	log.Info("Starting notifier service")

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	if err := publisher.EnsureDLQ(contracts.RoutingKeyNotificationCreated); err != nil {
		log.Fatal("Failed to declare DLQ", zap.Error(err))
	}

	// Repositories
	memberRepo := repository.NewMemberRepository(dbConn)
	runRepo := repository.NewRunRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	emailLogRepo := repository.NewEmailLogRepository(dbConn)

	// Email pipeline
	transport := mailer.NewSendGridClient(cfg.Email.SendGridKey, cfg.Email.FromName, cfg.Email.FromEmail, log)
	quota := service.NewQuotaTracker(emailLogRepo, cfg.Email.DailyLimit)
	dispatcher := service.NewDispatcher(quota, emailLogRepo, transport, cfg.SendDelay(), log)

	// Digest scheduler
	weekday, err := service.ParseWeekday(cfg.Digest.Weekday)
	if err != nil {
		log.Fatal("Invalid digest weekday", zap.Error(err))
	}
	resolver := service.NewRecipientResolver(memberRepo)
	marker := util.NewDayMarker(rdb, "digest:sent")
	scheduler := service.NewDigestScheduler(runRepo, resolver, dispatcher, marker, weekday, cfg.DigestTick(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Start(ctx)

	// MQ consumer
	deduper := util.NewDeduper(rdb, time.Hour, log)
	createdHandler := mqhandler.NewNotificationCreatedHandler(notificationRepo, runRepo, dispatcher, deduper, publisher, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, notificationQueue, contracts.RoutingKeyNotificationCreated, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	consumer.SetHandler(createdHandler.Handle)
	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Consumer failed", zap.Error(err))
		}
	}()
	defer consumer.Close()

	// Operational HTTP surface
	digestHandler := handler.NewDigestHandler(scheduler, log)
	router := httpserver.NewNotifierRouter(digestHandler, cfg.JWT.Secret, dbConn, publisher)
	go func() {
		log.Info("Starting notifier HTTP server", zap.String("port", cfg.Notifier.Port))
		if err := router.Run(cfg.Notifier.Port); err != nil {
			log.Fatal("Server start failed", zap.Error(err))
		}
	}()

	log.Info("Notifier ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifier")
	scheduler.Stop()
	consumer.Stop()
	cancel()
}
