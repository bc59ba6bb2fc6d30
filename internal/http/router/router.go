package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-market-backend/internal/config"
	"github.com/ignatzorin/p2p-market-backend/internal/http/handlers"
	"github.com/ignatzorin/p2p-market-backend/internal/http/middleware"
	"github.com/ignatzorin/p2p-market-backend/internal/service"
)

// SetupRouter собирает все маршруты приложения.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	productHandler *handlers.ProductHandler,
	orderHandler *handlers.OrderHandler,
	disputeHandler *handlers.DisputeHandler,
	reviewHandler *handlers.ReviewHandler,
	reputationHandler *handlers.ReputationHandler,
	pointsHandler *handlers.PointsHandler,
	leaderboardHandler *handlers.LeaderboardHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/products", productHandler.ListProducts)
	api.GET("/products/:id", middleware.UUIDValidator("id"), productHandler.GetProduct)
	api.GET("/users/:id/reviews", middleware.UUIDValidator("id"), reviewHandler.ListUserReviews)
	api.GET("/users/:id/reputation", middleware.UUIDValidator("id"), reputationHandler.GetSellerReputation)
	api.GET("/sellers/top", reputationHandler.TopSellers)
	api.GET("/leaderboards", leaderboardHandler.GetSnapshot)
	api.GET("/points/leaderboard", pointsHandler.Leaderboard)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.POST("/products", productHandler.CreateProduct)
		protected.GET("/products/my", productHandler.ListMyProducts)
		protected.PUT("/products/:id", middleware.UUIDValidator("id"), productHandler.UpdateProduct)

		protected.POST("/orders", orderHandler.CreateOrder)
		protected.GET("/orders", orderHandler.ListMyOrders)
		protected.GET("/orders/:id", middleware.UUIDValidator("id"), orderHandler.GetOrder)
		protected.POST("/orders/:id/transition", middleware.UUIDValidator("id"), orderHandler.Transition)
		protected.GET("/orders/:id/history", middleware.UUIDValidator("id"), orderHandler.GetStatusHistory)
		protected.POST("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.RaiseDispute)
		protected.GET("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.GetOrderDispute)
		protected.GET("/orders/:id/reviews", middleware.UUIDValidator("id"), reviewHandler.ListOrderReviews)

		protected.GET("/disputes", disputeHandler.ListMyDisputes)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.GetDispute)
		protected.POST("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.AddMessage)
		protected.GET("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.ListMessages)

		protected.POST("/reviews", reviewHandler.CreateReview)

		protected.GET("/points/balance", pointsHandler.Balance)
		protected.GET("/points/history", pointsHandler.History)
		protected.POST("/points/spend", pointsHandler.Spend)
		protected.GET("/points/referral", pointsHandler.MyReferralCode)
		protected.POST("/points/referral/apply", pointsHandler.ApplyReferral)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
	}

	// Административные маршруты
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.GET("/disputes", disputeHandler.ListOpenDisputes)
		admin.POST("/disputes/:id/review", middleware.UUIDValidator("id"), disputeHandler.TakeInReview)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)
		admin.POST("/orders/:id/escrow-events", middleware.UUIDValidator("id"), orderHandler.ReportEscrowEvent)
		admin.POST("/users/:id/verify", middleware.UUIDValidator("id"), reputationHandler.GrantVerifiedBadge)
		admin.POST("/reputation/recompute", reputationHandler.Recompute)
		admin.POST("/leaderboards/snapshot", leaderboardHandler.Snapshot)
	}

	return r
}
