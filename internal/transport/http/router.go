package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/abakirov/outdialer/internal/transport/http/handler"
	"github.com/abakirov/outdialer/internal/transport/http/middleware"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, schedulerHandler *handler.SchedulerHandler, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(hmacKey)

	scheduler := r.Group("/scheduler", authMW)
	scheduler.GET("/config", schedulerHandler.GetConfig)
	scheduler.PATCH("/config", schedulerHandler.UpdateConfig)
	scheduler.GET("/pending-customers", schedulerHandler.PendingCustomers)
	scheduler.GET("/scheduled-calls", schedulerHandler.ListCalls)
	scheduler.POST("/scheduled-calls", schedulerHandler.CreateCall)
	scheduler.DELETE("/scheduled-calls/:id", schedulerHandler.CancelCall)
	scheduler.GET("/stats", schedulerHandler.Stats)
	scheduler.POST("/trigger-now", schedulerHandler.TriggerNow)
	scheduler.DELETE("/cleanup", schedulerHandler.Cleanup)

	return r
}
