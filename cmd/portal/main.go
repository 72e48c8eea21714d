package main

import (
	"go.uber.org/zap"

	"clubportal/internal/config"
	"clubportal/internal/handler"
	"clubportal/internal/httpserver"
	"clubportal/internal/repository"
	"clubportal/internal/service"
	"clubportal/pkg/db"
	"clubportal/pkg/logger"
	"clubportal/pkg/mq"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	memberRepo := repository.NewMemberRepository(dbConn)
	runRepo := repository.NewRunRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	emailLogRepo := repository.NewEmailLogRepository(dbConn)

	// Services
	resolver := service.NewRecipientResolver(memberRepo)
	quota := service.NewQuotaTracker(emailLogRepo, cfg.Email.DailyLimit)
	notifications := service.NewNotificationService(notificationRepo, resolver, publisher, log)

	// Handlers
	notificationHandler := handler.NewNotificationHandler(notifications, quota, runRepo, log)

	router := httpserver.NewPortalRouter(notificationHandler, cfg.JWT.Secret, dbConn, publisher)

	log.Info("Starting portal API", zap.String("port", cfg.Portal.Port))
	if err := router.Run(cfg.Portal.Port); err != nil {
		log.Fatal("Server start failed", zap.Error(err))
	}
}
