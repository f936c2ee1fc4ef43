package handler

import (
	"walletcore/internal/config"
	"walletcore/internal/infrastructure/lock"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter wires middleware and routes.
func SetupRouter(db *gorm.DB, locker lock.Locker, cfg *config.Config, logger *zap.SugaredLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	h := NewHandler(db, locker, cfg, logger)

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/reconcile", h.Reconcile)
			account.POST("/kyc", h.UpdateKYC)
		}

		event := api.Group("/event")
		{
			event.POST("/deposit", h.SubmitDeposit)
			event.POST("/withdraw", h.SubmitWithdraw)
			event.POST("/buy", h.SubmitBuy)
			event.POST("/swap", h.SubmitSwap)
			event.GET("/detail", h.GetEvent)
			event.GET("/list", h.ListEvents)
		}

		entry := api.Group("/entry")
		{
			entry.GET("/list", h.ListEntries)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/event/approve", h.ApproveEvent)
			admin.POST("/event/reject", h.RejectEvent)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
