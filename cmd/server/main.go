package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/p2p-market-backend/internal/config"
	"github.com/ignatzorin/p2p-market-backend/internal/db"
	"github.com/ignatzorin/p2p-market-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/p2p-market-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/p2p-market-backend/internal/http/router"
	"github.com/ignatzorin/p2p-market-backend/internal/logger"
	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
	"github.com/ignatzorin/p2p-market-backend/internal/service"
	"github.com/ignatzorin/p2p-market-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	productRepo := repository.NewProductRepository(dbConn)
	orderRepo := repository.NewOrderRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)
	statsRepo := repository.NewStatsRepository(dbConn)
	pointsRepo := repository.NewPointsRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	cache := service.NewCacheService()
	notificationService := service.NewNotificationService(notificationRepo)
	pointsService := service.NewPointsService(pointsRepo, notificationService)
	pointsService.SetCache(cache)
	authService := service.NewAuthService(userRepo, tokenManager, pointsService)
	productService := service.NewProductService(productRepo)
	orderService := service.NewOrderService(orderRepo, productRepo, pointsService, notificationService)
	disputeService := service.NewDisputeService(disputeRepo, orderRepo, pointsService, notificationService)
	reviewService := service.NewReviewService(reviewRepo, orderRepo, pointsService, notificationService)
	reputationService := service.NewReputationService(statsRepo, reviewRepo, orderRepo, disputeRepo, pointsService, notificationService, cfg.RecomputeWorkers)
	reputationService.SetCache(cache)
	leaderboardService := service.NewLeaderboardService(pointsRepo)
	leaderboardService.SetCache(cache)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()
	notificationService.SetHub(hub)

	// Фоновые задачи: пересчёт репутации, снапшоты рейтингов, чистка сессий.
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		runPeriodically(ctx, cfg.ReputationRecomputeInterval, func(ctx context.Context) {
			if err := reputationService.RecomputeAll(ctx); err != nil && logger.Log != nil {
				logger.Log.WithField("error", err.Error()).Error("main: ошибка пересчёта репутации")
			}
		})
	})
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		runPeriodically(ctx, cfg.LeaderboardSnapshotInterval, func(ctx context.Context) {
			if err := leaderboardService.SnapshotAll(ctx); err != nil && logger.Log != nil {
				logger.Log.WithField("error", err.Error()).Error("main: ошибка снапшота рейтингов")
			}
		})
	})
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		runPeriodically(ctx, cfg.SessionCleanupInterval, func(ctx context.Context) {
			deleted, err := userRepo.DeleteExpiredSessions(ctx)
			if err != nil && logger.Log != nil {
				logger.Log.WithField("error", err.Error()).Error("main: ошибка чистки сессий")
				return
			}
			if deleted > 0 && logger.Log != nil {
				logger.Log.WithField("deleted", deleted).Info("main: удалены истёкшие сессии")
			}
		})
	})
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		runPeriodically(ctx, cfg.StuckOrderCheckInterval, func(ctx context.Context) {
			reportStuckOrders(ctx, orderRepo, cfg.StuckOrderThreshold)
		})
	})

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	productHandler := httpHandlers.NewProductHandler(productService)
	orderHandler := httpHandlers.NewOrderHandler(orderService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	reviewHandler := httpHandlers.NewReviewHandler(reviewService)
	reputationHandler := httpHandlers.NewReputationHandler(reputationService)
	pointsHandler := httpHandlers.NewPointsHandler(pointsService)
	leaderboardHandler := httpHandlers.NewLeaderboardHandler(leaderboardService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		productHandler,
		orderHandler,
		disputeHandler,
		reviewHandler,
		reputationHandler,
		pointsHandler,
		leaderboardHandler,
		notificationHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// runPeriodically вызывает fn каждый interval до отмены контекста.
func runPeriodically(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// reportStuckOrders логирует заказы, зависшие в промежуточном статусе
// дольше порога. Это сигнал для ручного разбора, автоматических действий нет.
func reportStuckOrders(ctx context.Context, orders *repository.OrderRepository, threshold time.Duration) {
	for _, status := range []string{
		models.OrderStatusPaymentPending,
		models.OrderStatusPaid,
		models.OrderStatusShipped,
		models.OrderStatusDisputed,
	} {
		count, err := orders.CountStuck(ctx, status, threshold)
		if err != nil {
			if logger.Log != nil {
				logger.Log.WithField("error", err.Error()).Error("main: ошибка проверки зависших заказов")
			}
			return
		}
		if count > 0 && logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"status": status,
				"count":  count,
			}).Warn("main: обнаружены зависшие заказы")
		}
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
