package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/modelforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/modelforge-backend/internal/http/middleware"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	PredictorHandler *httpH.PredictorHandler
	WorkerHandler    *httpH.WorkerHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.Trace())
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Predictors
		if cfg.PredictorHandler != nil {
			api.POST("/predictors", cfg.PredictorHandler.Learn)
			api.GET("/predictors", cfg.PredictorHandler.List)
			api.GET("/predictors/:name", cfg.PredictorHandler.Get)
			api.POST("/predictors/:name/update", cfg.PredictorHandler.Retrain)
			api.PUT("/predictors/:name/json_ai", cfg.PredictorHandler.EditJSONAI)
		}

		// Workers
		if cfg.WorkerHandler != nil {
			api.GET("/workers", cfg.WorkerHandler.List)
			api.DELETE("/workers/:pid", cfg.WorkerHandler.Kill)
			api.POST("/reconcile", cfg.WorkerHandler.Reconcile)
		}
	}

	return r
}
