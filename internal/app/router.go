package app

import (
	httpserver "github.com/yungbote/modelforge-backend/internal/http"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

func wireRouter(log *logger.Logger, h Handlers) httpserver.RouterConfig {
	return httpserver.RouterConfig{
		Log:              log,
		PredictorHandler: h.Predictor,
		WorkerHandler:    h.Worker,
		HealthHandler:    h.Health,
	}
}
